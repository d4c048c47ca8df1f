package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReverseParsesAddressAndCaches(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"address":{"town":"Honfleur","state":"Normandy","country":"France"}}`)
	}))
	defer srv.Close()

	g := NewNominatim(srv.URL, time.Second, 100)
	p := g.Reverse(context.Background(), 49.4189, 0.2331)
	require.NotNil(t, p)
	assert.Equal(t, "Honfleur", *p.City)
	assert.Equal(t, "Normandy", *p.State)
	assert.Equal(t, "France", *p.Country)

	p = g.Reverse(context.Background(), 49.41891, 0.23312)
	require.NotNil(t, p)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReverseReturnsNilOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := NewNominatim(srv.URL, 50*time.Millisecond, 100)
	assert.Nil(t, g.Reverse(context.Background(), 1, 2))
}

func TestReverseReturnsNilOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewNominatim(srv.URL, time.Second, 100)
	assert.Nil(t, g.Reverse(context.Background(), 1, 2))
}
