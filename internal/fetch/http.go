// Package fetch retrieves entities from the remote collection over HTTP.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the collection endpoint of the reference deployment.
	DefaultBaseURL = "https://pokeapi.co/api/v2/pokemon"
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 8 << 20
	userAgent    = "dexnav/1.0"
)

// HTTPFetcher issues GET <base-url>/<id> and decodes the JSON body.
type HTTPFetcher struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(f *HTTPFetcher) { f.token = strings.TrimSpace(token) }
}

// WithHTTPClient replaces the transport client. The fetcher still applies
// its own per-request timeout through the request context.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewHTTPFetcher creates a fetcher for baseURL. An empty baseURL selects
// DefaultBaseURL.
func NewHTTPFetcher(baseURL string, opts ...Option) *HTTPFetcher {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	f := &HTTPFetcher{
		baseURL:    baseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BaseURL returns the normalised endpoint.
func (f *HTTPFetcher) BaseURL() string { return f.baseURL }

// Timeout returns the per-fetch bound.
func (f *HTTPFetcher) Timeout() time.Duration { return f.timeout }

// URLFor returns the resource URL for id.
func (f *HTTPFetcher) URLFor(id int) string {
	return f.baseURL + "/" + strconv.Itoa(id)
}

// wireEntity mirrors the subset of the remote JSON document we read.
type wireEntity struct {
	ID      *int   `json:"id"`
	Name    string `json:"name"`
	Height  int    `json:"height"`
	Weight  int    `json:"weight"`
	Sprites *struct {
		FrontDefault *string `json:"front_default"`
	} `json:"sprites"`
}

// Fetch retrieves the entity for id.
func (f *HTTPFetcher) Fetch(ctx context.Context, id int) (Entity, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	started := time.Now()
	url := f.URLFor(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entity{}, &Error{Kind: KindTransport, ID: id, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Entity{}, f.classify(ctx, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		f.logger.Debug("fetch rejected", "id", id, "status", resp.StatusCode, "elapsed", time.Since(started))
		return Entity{}, &Error{Kind: KindHTTPStatus, ID: id, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Entity{}, f.classify(ctx, id, fmt.Errorf("read response: %w", err))
	}

	entity, err := decodeEntity(id, body)
	if err != nil {
		return Entity{}, &Error{Kind: KindDecode, ID: id, Err: err}
	}
	f.logger.Debug("fetch ok", "id", id, "name", entity.Name, "elapsed", time.Since(started))
	return entity, nil
}

func (f *HTTPFetcher) classify(ctx context.Context, id int, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, ID: id, Timeout: f.timeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, ID: id, Timeout: f.timeout, Err: err}
	}
	return &Error{Kind: KindTransport, ID: id, Err: err}
}

func decodeEntity(id int, body []byte) (Entity, error) {
	var w wireEntity
	if err := json.Unmarshal(body, &w); err != nil {
		return Entity{}, fmt.Errorf("unmarshal entity: %w", err)
	}
	if w.ID == nil {
		return Entity{}, errors.New("missing id")
	}
	if *w.ID != id {
		return Entity{}, fmt.Errorf("id mismatch: requested %d, got %d", id, *w.ID)
	}
	if strings.TrimSpace(w.Name) == "" {
		return Entity{}, errors.New("missing name")
	}
	e := Entity{ID: *w.ID, Name: w.Name, Height: w.Height, Weight: w.Weight}
	if w.Sprites != nil && w.Sprites.FrontDefault != nil {
		e.ImageRef = *w.Sprites.FrontDefault
	}
	return e, nil
}
