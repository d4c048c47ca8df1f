package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Place is a resolved location. Any field may be nil.
type Place struct {
	City    *string `json:"city,omitempty"`
	State   *string `json:"state,omitempty"`
	Country *string `json:"country,omitempty"`
}

// Geocoder resolves coordinates to a place. Reverse returns nil when the
// lookup fails or times out; it never returns an error.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) *Place
}

// Nominatim talks to a Nominatim-compatible reverse geocoding endpoint with a
// client-side rate limit and an in-memory result cache.
type Nominatim struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache
}

func NewNominatim(baseURL string, timeout time.Duration, rps int) *Nominatim {
	if rps <= 0 {
		rps = 1
	}
	return &Nominatim{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "photovault/1.0",
		timeout:    timeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		cache:      cache.New(24*time.Hour, time.Hour),
	}
}

type nominatimResponse struct {
	Address struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		State        string `json:"state"`
		Country      string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// cache key at ~100m resolution
func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 3, 64) + "," + strconv.FormatFloat(lon, 'f', 3, 64)
}

func (n *Nominatim) Reverse(ctx context.Context, lat, lon float64) *Place {
	key := cacheKey(lat, lon)
	if v, ok := n.cache.Get(key); ok {
		return v.(*Place)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	place, err := n.lookup(ctx, lat, lon)
	if err != nil {
		log.Printf("geocode: WARNING reverse lookup for %s failed: %v", key, err)
		return nil
	}
	n.cache.Set(key, place, cache.DefaultExpiration)
	return place
}

func (n *Nominatim) lookup(ctx context.Context, lat, lon float64) (*Place, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "10")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("nominatim: %s", body.Error)
	}

	a := body.Address
	return &Place{
		City:    firstNonEmpty(a.City, a.Town, a.Village, a.Municipality),
		State:   firstNonEmpty(a.State),
		Country: firstNonEmpty(a.Country),
	}, nil
}

func firstNonEmpty(values ...string) *string {
	for _, v := range values {
		if v != "" {
			s := v
			return &s
		}
	}
	return nil
}
