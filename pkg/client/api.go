package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crazymaax404/ro-mvp-hunter/pkg/api/handlers"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/records"
	"github.com/crazymaax404/ro-mvp-hunter/pkg/repositories/models"
)

const (
	DefaultAPIServerURL = "http://localhost:9090"
)

// Backend stores the death records of the signed-in user.
type Backend interface {
	ListDeaths(ctx context.Context) ([]*models.DeathRecord, error)
	SetDeath(ctx context.Context, mvpID string, deathTime time.Time, position *models.MapPosition) (*models.DeathRecord, error)
	ClearDeath(ctx context.Context, mvpID string) error
	ClearAllDeaths(ctx context.Context) (int, error)
}

// TokenSource provides the bearer token for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

var _ Backend = &APIClient{}

// APIClient is a Backend over the records REST API.
type APIClient struct {
	url    string
	http   *http.Client
	tokens TokenSource
}

type NewAPIClientOptions struct {
	URL        string
	HTTPClient *http.Client
	Tokens     TokenSource
}

func NewAPIClient(opts NewAPIClientOptions) *APIClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &APIClient{
		url:    strings.TrimSuffix(opts.URL, "/"),
		http:   httpClient,
		tokens: opts.Tokens,
	}
}

// StreamURL is the WebSocket URL of the change feed.
func (c *APIClient) StreamURL() string {
	u := c.url + "/deaths/stream"
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u
}

func (c *APIClient) ListDeaths(ctx context.Context) ([]*models.DeathRecord, error) {
	entries := []records.Entry{}
	if err := c.do(ctx, http.MethodGet, "/deaths", nil, &entries); err != nil {
		return nil, fmt.Errorf("failed to list deaths: %w", err)
	}
	out := make([]*models.DeathRecord, 0, len(entries))
	for _, e := range entries {
		if e.DeathRecord != nil {
			out = append(out, e.DeathRecord)
		}
	}
	return out, nil
}

func (c *APIClient) SetDeath(ctx context.Context, mvpID string, deathTime time.Time, position *models.MapPosition) (*models.DeathRecord, error) {
	body := &handlers.SetDeathRequest{
		DeathTime:   &deathTime,
		MapPosition: position,
	}
	record := &models.DeathRecord{}
	if err := c.do(ctx, http.MethodPut, "/deaths/"+url.PathEscape(mvpID), body, record); err != nil {
		return nil, fmt.Errorf("failed to set death of %s: %w", mvpID, err)
	}
	return record, nil
}

func (c *APIClient) ClearDeath(ctx context.Context, mvpID string) error {
	if err := c.do(ctx, http.MethodDelete, "/deaths/"+url.PathEscape(mvpID), nil, nil); err != nil {
		return fmt.Errorf("failed to clear death of %s: %w", mvpID, err)
	}
	return nil
}

func (c *APIClient) ClearAllDeaths(ctx context.Context) (int, error) {
	response := &handlers.ClearAllResponse{}
	if err := c.do(ctx, http.MethodDelete, "/deaths", nil, response); err != nil {
		return 0, fmt.Errorf("failed to clear deaths: %w", err)
	}
	return response.Deleted, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body, response interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}
