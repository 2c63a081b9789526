package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the stock local Ollama endpoint.
	DefaultBaseURL = "http://127.0.0.1:11434"

	// statusSuccess terminates a pull progress stream.
	statusSuccess = "success"
)

// Client is a minimal Ollama API client covering what the entrypoint needs:
// listing models (liveness) and pulling the backend model (provisioning).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a client for the given base URL. Requests carry their own
// context deadlines; the http.Client itself has no global timeout.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: tr, Timeout: 0},
	}
}

// BaseURL reports the endpoint this client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Model is one entry in the /api/tags response.
type Model struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// Tags lists the models installed on the daemon via GET /api/tags.
func (c *Client) Tags(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating tags request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying %s/api/tags: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tags returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("parsing tags response: %w", err)
	}
	return tags.Models, nil
}

// Version reports the daemon version via GET /api/version.
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", fmt.Errorf("creating version request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying %s/api/version: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version returned status %d", resp.StatusCode)
	}
	var v struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", fmt.Errorf("parsing version response: %w", err)
	}
	return v.Version, nil
}

// PullProgress is one NDJSON line of a streaming pull.
type PullProgress struct {
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Err       string `json:"error,omitempty"`
}

type pullRequest struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// Pull downloads a model via POST /api/pull, invoking progress for every
// decoded stream line. The daemon treats an already-present model as an
// immediate success, which is what makes repeated container starts cheap.
func (c *Client) Pull(ctx context.Context, model string, progress func(PullProgress)) error {
	if model == "" {
		return errors.New("model name must not be empty")
	}
	body, err := json.Marshal(pullRequest{Model: model, Stream: true})
	if err != nil {
		return fmt.Errorf("marshaling pull request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("pulling %s: %w", model, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("pull returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	// The response is a stream of JSON lines ending with {"status":"success"}.
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sawSuccess := false
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var p PullProgress
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("parsing pull progress line %q: %w", string(line), err)
		}
		if p.Err != "" {
			return fmt.Errorf("pull failed: %s", p.Err)
		}
		if progress != nil {
			progress(p)
		}
		if p.Status == statusSuccess {
			sawSuccess = true
		}
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("reading pull stream: %w", err)
	}
	if !sawSuccess {
		return fmt.Errorf("pull stream for %s ended without success status", model)
	}
	return nil
}
