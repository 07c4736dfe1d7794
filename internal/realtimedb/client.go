// Package realtimedb is a small client for a Firebase-style realtime
// database: a JSON tree addressed by slash-separated paths over REST.
//
//	GET    /<path>.json   read a node ("null" when absent)
//	PUT    /<path>.json   replace a node
//	PATCH  /<path>.json   merge children into a node
//	DELETE /<path>.json   remove a node
//
// Conditional writes use the X-Firebase-ETag / if-match headers so a
// create-if-absent cannot silently overwrite a concurrent writer.
package realtimedb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/spanisami/cv-backend/internal/auth"
)

var (
	// ErrNotFound is returned by Get when the node does not exist.
	ErrNotFound = errors.New("realtimedb: node not found")
	// ErrPreconditionFailed is returned by SetIfMatch when the node changed.
	ErrPreconditionFailed = errors.New("realtimedb: etag mismatch")
)

const requestTimeout = 15 * time.Second

// Client talks to one database instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client using httpClient as-is (no authentication is added).
// Useful against the local emulator and in tests.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// NewWithServiceAccount returns a client whose requests carry an OAuth2
// bearer token minted for sa.
func NewWithServiceAccount(ctx context.Context, baseURL string, sa *auth.ServiceAccount) (*Client, error) {
	ts, err := sa.TokenSource(&http.Client{Timeout: requestTimeout}, auth.DatabaseScopes...)
	if err != nil {
		return nil, err
	}
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = requestTimeout
	return New(baseURL, hc), nil
}

// Get decodes the node at path into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	_, err := c.get(ctx, path, out, false)
	return err
}

// GetETag is Get that also returns the node's ETag. For an absent node the
// ETag is still returned (alongside ErrNotFound) so it can be used to create
// the node conditionally.
func (c *Client) GetETag(ctx context.Context, path string, out any) (string, error) {
	return c.get(ctx, path, out, true)
}

func (c *Client) get(ctx context.Context, path string, out any, withETag bool) (string, error) {
	header := http.Header{}
	if withETag {
		header.Set("X-Firebase-ETag", "true")
	}

	resp, body, err := c.do(ctx, http.MethodGet, path, nil, header)
	if err != nil {
		return "", err
	}
	etag := resp.Header.Get("ETag")

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return etag, ErrNotFound
	}
	if out != nil {
		if err := json.Unmarshal(trimmed, out); err != nil {
			return etag, fmt.Errorf("realtimedb: decoding %s: %w", path, err)
		}
	}
	return etag, nil
}

// Set replaces the node at path with v.
func (c *Client) Set(ctx context.Context, path string, v any) error {
	_, _, err := c.do(ctx, http.MethodPut, path, v, nil)
	return err
}

// SetIfMatch replaces the node only if its current ETag equals etag.
func (c *Client) SetIfMatch(ctx context.Context, path string, v any, etag string) error {
	header := http.Header{}
	header.Set("if-match", etag)
	_, _, err := c.do(ctx, http.MethodPut, path, v, header)
	return err
}

// Update merges fields into the node at path, creating it if needed.
func (c *Client) Update(ctx context.Context, path string, fields map[string]any) error {
	_, _, err := c.do(ctx, http.MethodPatch, path, fields, nil)
	return err
}

// Delete removes the node at path. Deleting an absent node is not an error.
func (c *Client) Delete(ctx context.Context, path string) error {
	_, _, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	return err
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.Trim(path, "/") + ".json"
}

func (c *Client) do(ctx context.Context, method, path string, payload any, header http.Header) (*http.Response, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("realtimedb: encoding %s: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, nil, fmt.Errorf("realtimedb: building %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("realtimedb: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("realtimedb: reading %s %s: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		return resp, respBody, ErrPreconditionFailed
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return resp, respBody, fmt.Errorf("realtimedb: %s %s failed with status %d: %s",
			method, path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return resp, respBody, nil
}
