// Package gallery mirrors downloaded media into a Sanity-compatible content
// store: image files become assets, each upload gets a cosplayerImage
// document, and one cosplayer document per username carries the aggregate.
package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"

	"coshub/config"
)

// Client talks to the CMS HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	dataset    string
	apiVersion string
	token      string
	enabled    bool
}

// NewClient builds a client from the gallery configuration. An explicit
// BaseURL overrides the project-id derived endpoint.
func NewClient(cfg config.GalleryConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.api.sanity.io", cfg.ProjectID)
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "2024-01-01"
	}
	dataset := cfg.Dataset
	if dataset == "" {
		dataset = "production"
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		dataset:    dataset,
		apiVersion: apiVersion,
		token:      cfg.Token,
		enabled:    cfg.BaseURL != "" || cfg.ProjectID != "",
	}
}

// Enabled reports whether the client has somewhere to talk to.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Query runs a GROQ query with named parameters and decodes the result into
// out.
func (c *Client) Query(ctx context.Context, groq string, params map[string]any, out any) error {
	q := url.Values{}
	q.Set("query", groq)
	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode query param %s: %w", name, err)
		}
		q.Set("$"+name, string(encoded))
	}

	endpoint := fmt.Sprintf("%s/v%s/data/query/%s?%s", c.baseURL, c.apiVersion, c.dataset, q.Encode())

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	err := c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &envelope)
	})
	if err != nil {
		return err
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("decode query result: %w", err)
	}
	return nil
}

// UploadImage streams an image to the asset endpoint and returns the asset
// document id. Uploads are retried; the filename-level dedup upstream keeps
// a retried duplicate harmless.
func (c *Client) UploadImage(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/v%s/assets/images/%s?filename=%s",
		c.baseURL, c.apiVersion, c.dataset, url.QueryEscape(filename))

	var envelope struct {
		Document struct {
			ID string `json:"_id"`
		} `json:"document"`
	}
	err := c.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("build upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		c.authorize(req)
		return c.do(req, &envelope)
	})
	if err != nil {
		return "", err
	}
	if envelope.Document.ID == "" {
		return "", fmt.Errorf("upload of %s returned no asset id", filename)
	}
	return envelope.Document.ID, nil
}

// Mutate posts a mutation batch.
func (c *Client) Mutate(ctx context.Context, mutations []map[string]any) error {
	endpoint := fmt.Sprintf("%s/v%s/data/mutate/%s", c.baseURL, c.apiVersion, c.dataset)
	body := map[string]any{"mutations": mutations}
	return c.withRetry(ctx, func() error {
		return c.doJSON(ctx, http.MethodPost, endpoint, body, nil)
	})
}

func (c *Client) withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gallery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("gallery API returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
