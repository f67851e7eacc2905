// Package client is a typed HTTP client for the Tickbox API. It carries the
// session cookie explicitly, since the terminal client has no browser jar.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Todo struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	OwnerID     string    `json:"ownerId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Email  string `json:"email"`
}

// Patch mirrors the API's partial-update body; nil fields are omitted from
// the JSON and leave the stored value unchanged.
type Patch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// APIError is the server's error envelope.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type Client struct {
	baseURL      string
	cookieName   string
	sessionToken string
	http         *http.Client
}

func New(baseURL, cookieName, sessionToken string) *Client {
	return &Client{
		baseURL:      baseURL,
		cookieName:   cookieName,
		sessionToken: sessionToken,
		http:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.sessionToken != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.sessionToken})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "SERVER_ERROR", Message: "Server error"}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Me returns the authenticated identity, or nil without error when the
// session is absent or invalid.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var payload struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &payload); err != nil {
		return nil, err
	}
	return payload.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) List(ctx context.Context) ([]Todo, error) {
	var todos []Todo
	if err := c.do(ctx, http.MethodGet, "/api/todos", nil, &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func (c *Client) Create(ctx context.Context, title, description string) (Todo, error) {
	body := map[string]string{"title": title, "description": description}
	var todo Todo
	if err := c.do(ctx, http.MethodPost, "/api/todos", body, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

func (c *Client) Update(ctx context.Context, id string, patch Patch) (Todo, error) {
	var todo Todo
	if err := c.do(ctx, http.MethodPatch, "/api/todos/"+id, patch, &todo); err != nil {
		return Todo{}, err
	}
	return todo, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/todos/"+id, nil, nil)
}
