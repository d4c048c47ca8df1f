package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// model input side, longest edge
const inputSize = 224

// Client calls an HTTP inference service exposing
//
//	POST /embed/image  (image/jpeg body)
//	POST /embed/text   ({"text": "..."})
//
// both answering {"embedding": [...]}.
type Client struct {
	baseURL    string
	dim        int
	httpClient *http.Client
}

func NewClient(baseURL string, dim int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		dim:        dim,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (c *Client) Dimension() int {
	return c.dim
}

func (c *Client) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	small := imaging.Fit(img, inputSize, inputSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, small, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("failed to encode image for embedding: %w", err)
	}
	return c.post(ctx, "/embed/image", "image/jpeg", &buf)
}

func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal text request: %w", err)
	}
	return c.post(ctx, "/embed/text", "application/json", bytes.NewReader(body))
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	var out embedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, out.Error)
	}
	if err := CheckDimension(out.Embedding, c.dim); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}
