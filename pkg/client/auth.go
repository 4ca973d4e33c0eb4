package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	authhandlers "github.com/crazymaax404/ro-mvp-hunter/pkg/auth/handlers"
)

const (
	DefaultAuthServerURL = "http://localhost:8080"
)

// Session is a signed-in user with the tokens to act on their behalf.
type Session struct {
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	IDToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// AuthClient talks to the auth server's form-encoded endpoints.
type AuthClient struct {
	url  string
	http *http.Client
	now  func() time.Time
}

type NewAuthClientOptions struct {
	URL string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewAuthClient(opts NewAuthClientOptions) *AuthClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthClient{
		url:  strings.TrimSuffix(opts.URL, "/"),
		http: httpClient,
		now:  now,
	}
}

func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	values := url.Values{}
	values.Set("email", email)
	values.Set("password", password)

	response := &authhandlers.LoginResponseBody{}
	if err := c.post(ctx, "/login", values, response); err != nil {
		return nil, fmt.Errorf("failed to login: %w", err)
	}
	return &Session{
		UserID:       response.LocalID,
		Email:        response.Email,
		IDToken:      response.IDToken,
		RefreshToken: response.RefreshToken,
		ExpiresAt:    c.expiresAt(response.ExpiresIn),
	}, nil
}

func (c *AuthClient) SignUp(ctx context.Context, email, password string) (*Session, error) {
	values := url.Values{}
	values.Set("email", email)
	values.Set("password", password)

	response := &authhandlers.RegisterResponseBody{}
	if err := c.post(ctx, "/register", values, response); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	return &Session{
		UserID:       response.LocalID,
		Email:        response.Email,
		IDToken:      response.IDToken,
		RefreshToken: response.RefreshToken,
		ExpiresAt:    c.expiresAt(response.ExpiresIn),
	}, nil
}

// Refresh exchanges the refresh token of a session for a new one.
func (c *AuthClient) Refresh(ctx context.Context, session *Session) (*Session, error) {
	values := url.Values{}
	values.Set("refreshToken", session.RefreshToken)

	response := &authhandlers.RefreshResponseBody{}
	if err := c.post(ctx, "/refresh", values, response); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return &Session{
		UserID:       response.UserID,
		Email:        session.Email,
		IDToken:      response.IDToken,
		RefreshToken: response.RefreshToken,
		ExpiresAt:    c.expiresAt(response.ExpiresIn),
	}, nil
}

func (c *AuthClient) DeleteAccount(ctx context.Context, session *Session) error {
	values := url.Values{}
	values.Set("idToken", session.IDToken)
	if err := c.post(ctx, "/delete", values, nil); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

func (c *AuthClient) post(ctx context.Context, path string, values url.Values, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, strings.NewReader(values.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
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

func (c *AuthClient) expiresAt(expiresIn string) time.Time {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil {
		return time.Time{}
	}
	return c.now().Add(time.Duration(seconds) * time.Second)
}

func statusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Code:    resp.StatusCode,
		Message: strings.TrimSpace(string(b)),
	}
}
