package xui

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

var (
	ErrAuth      = errors.New("xui: authentication failed")
	ErrTransport = errors.New("xui: transport failure")
	ErrNotFound  = errors.New("xui: not found")
)

// Panels of different vintages serve the inbound API under different prefixes.
// Tried in order; the first success wins.
var apiPrefixes = []string{
	"/api/inbounds",
	"/panel/api/inbounds",
	"/xui/API/inbounds",
}

// Client is a session-scoped handle on the 3x-ui control API. It is meant to
// be constructed per logical operation: Login, a few calls, Close.
type Client struct {
	BaseURL    string // panel root including the random base path segment
	Username   string
	Password   string
	HTTPClient *http.Client
}

func NewClient(baseURL, username, password string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				// Panels run on self-signed certificates as a rule.
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// Login opens the panel session. The session cookie lands in the client's jar
// and rides along on every subsequent call. A session counts as established
// only after the response confirms success; some panel builds answer the
// login with plain text instead of JSON, which is accepted when it mentions
// success.
func (c *Client) Login(ctx context.Context) error {
	form := url.Values{
		"username": {c.Username},
		"password": {c.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: login: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading login response: %v", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login status %d", ErrAuth, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if strings.Contains(strings.ToLower(string(body)), "success") {
			return nil
		}
		return fmt.Errorf("%w: unrecognized login response", ErrAuth)
	}
	if !env.Success {
		return fmt.Errorf("%w: %s", ErrAuth, env.Msg)
	}
	return nil
}

// request issues an authenticated call, walking apiPrefixes in order until one
// answers HTTP 200 with success=true. Prefix misses are discarded; exhausting
// every prefix yields ErrNotFound, or ErrTransport when the panel was never
// reached at all.
func (c *Client) request(ctx context.Context, method, path string, payload interface{}) (json.RawMessage, error) {
	var jsonBody []byte
	if payload != nil {
		var err error
		jsonBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var transportErr error
	for _, prefix := range apiPrefixes {
		obj, err := c.tryPrefix(ctx, method, c.BaseURL+prefix+path, jsonBody)
		if err == nil {
			return obj, nil
		}
		if !errors.Is(err, ErrNotFound) {
			transportErr = err
		}
	}

	if transportErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, transportErr)
	}
	return nil, ErrNotFound
}

func (c *Client) tryPrefix(ctx context.Context, method, fullURL string, jsonBody []byte) (json.RawMessage, error) {
	var bodyReader io.Reader
	if jsonBody != nil {
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}
	if jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, ErrNotFound
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, ErrNotFound
	}
	if !env.Success {
		return nil, ErrNotFound
	}
	return env.Obj, nil
}

// GetInbound fetches the full inbound document by id.
func (c *Client) GetInbound(ctx context.Context, inboundID int) (*Inbound, error) {
	obj, err := c.request(ctx, http.MethodGet, fmt.Sprintf("/get/%d", inboundID), nil)
	if err != nil {
		return nil, err
	}

	var inbound Inbound
	if err := json.Unmarshal(obj, &inbound); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inbound: %w", err)
	}
	return &inbound, nil
}

// UpdateInbound replaces the inbound document remotely. The panel corrupts
// partial documents, so callers must pass a complete one reconstructed from
// the last GetInbound.
func (c *Client) UpdateInbound(ctx context.Context, inboundID int, inbound *Inbound) error {
	_, err := c.request(ctx, http.MethodPost, fmt.Sprintf("/update/%d", inboundID), inbound)
	return err
}

// ClientTraffics returns the traffic counters for one access label, or
// ErrNotFound when the panel has no record of it.
func (c *Client) ClientTraffics(ctx context.Context, email string) (*ClientTraffic, error) {
	obj, err := c.request(ctx, http.MethodGet, "/getClientTraffics/"+url.PathEscape(email), nil)
	if err != nil {
		return nil, err
	}

	var traffic ClientTraffic
	if err := json.Unmarshal(obj, &traffic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal traffic: %w", err)
	}
	return &traffic, nil
}

// Onlines lists the access labels with an open connection right now.
func (c *Client) Onlines(ctx context.Context) ([]string, error) {
	obj, err := c.request(ctx, http.MethodPost, "/onlines", nil)
	if err != nil {
		return nil, err
	}

	var emails []string
	if err := json.Unmarshal(obj, &emails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal onlines: %w", err)
	}
	return emails, nil
}

// Close drops the session. The cookie jar dies with the Client value; idle
// connections are returned to the OS here so every logical operation releases
// its transport on all paths.
func (c *Client) Close() {
	c.HTTPClient.CloseIdleConnections()
}
