// Package client is the kiosk side of the backend REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"scan-licences/internal/model"
)

// Client talks to the backend with an operator token. Every call carries
// the request timeout.
type Client struct {
	baseURL  string
	email    string
	password string
	timeout  time.Duration
	http     *http.Client

	mu    sync.Mutex
	token string
}

func New(baseURL, email, password string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		email:    email,
		password: password,
		timeout:  timeout,
		http:     &http.Client{},
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges the operator credentials for a token and keeps it.
func (c *Client) Login(ctx context.Context) (*model.LoginResponse, error) {
	var out model.LoginResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/login", "", model.LoginRequest{Email: c.email, Password: c.password}, &out)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.token = out.Token
	c.mu.Unlock()
	return &out, nil
}

// Token returns the current token, logging in first if needed.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok != "" {
		return tok, nil
	}
	resp, err := c.Login(ctx)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) OpenToday(ctx context.Context) (*model.Session, error) {
	var s model.Session
	if err := c.call(ctx, http.MethodPost, "/api/sessions/today", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Upsert(ctx context.Context, m *model.Member) error {
	return c.call(ctx, http.MethodPost, "/api/members", m, nil)
}

func (c *Client) EnsureStub(ctx context.Context, licenceNo string) error {
	return c.call(ctx, http.MethodPost, "/api/members/stub", model.StubRequest{LicenceNo: licenceNo}, nil)
}

func (c *Client) Insert(ctx context.Context, sessionID int64, licenceNo, sourceURL string) (*model.Entry, error) {
	var e model.Entry
	req := model.EntryRequest{SessionID: sessionID, LicenceNo: licenceNo, SourceURL: sourceURL}
	if err := c.call(ctx, http.MethodPost, "/api/entries", req, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) Entries(ctx context.Context, sessionID int64) ([]model.EntryView, error) {
	var out []model.EntryView
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%d/entries", sessionID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// call sends an authenticated request and logs in again once when the token
// was refused.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	tok, err := c.Token(ctx)
	if err != nil {
		return err
	}
	err = c.doJSON(ctx, method, path, tok, in, out)
	if !errors.Is(err, errUnauthorized) {
		return err
	}
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	if tok, err = c.Token(ctx); err != nil {
		return err
	}
	err = c.doJSON(ctx, method, path, tok, in, out)
	if errors.Is(err, errUnauthorized) {
		return fmt.Errorf("%s %s: %w", method, path, model.ErrPermissionDenied)
	}
	return err
}

var errUnauthorized = errors.New("unauthorized")

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w (%v)", method, path, model.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w (%v)", path, model.ErrNetworkUnavailable, err)
	}
	if resp.StatusCode >= 400 {
		return statusError(method, path, resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(method, path string, status int, data []byte) error {
	var ae apiError
	_ = json.Unmarshal(data, &ae)
	if status == http.StatusUnauthorized && path != "/api/login" {
		return errUnauthorized
	}

	var kind error
	switch {
	case ae.Code != "":
		kind = model.FromCode(ae.Code)
	case status == http.StatusConflict:
		kind = model.ErrDuplicate
	case status == http.StatusFailedDependency:
		kind = model.ErrMissingMember
	case status == http.StatusForbidden, status == http.StatusUnauthorized:
		kind = model.ErrPermissionDenied
	case status == http.StatusBadRequest:
		kind = model.ErrInvalidInput
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		kind = model.ErrNetworkUnavailable
	default:
		kind = model.ErrStorage
	}
	msg := ae.Error
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("%s %s: status %d %s: %w", method, path, status, msg, kind)
}
