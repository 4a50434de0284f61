package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scan-licences/internal/model"
)

// DefaultProxyURL renders a page as plain text.
const DefaultProxyURL = "https://r.jina.ai"

// TokenFunc returns the bearer token to send, or "" for none.
type TokenFunc func(ctx context.Context) (string, error)

// FunctionClient calls a remote profile function over HTTP.
type FunctionClient struct {
	url    string
	client *http.Client
	token  TokenFunc
}

func NewFunctionClient(functionURL string, timeout time.Duration, token TokenFunc) *FunctionClient {
	return &FunctionClient{url: functionURL, client: &http.Client{Timeout: timeout}, token: token}
}

// Lookup posts {"url": rawURL} to the function. Transport failures map to
// model.ErrNetworkUnavailable. Any answer that is not a well-formed ok
// profile maps to model.ErrNotFound.
func (c *FunctionClient) Lookup(ctx context.Context, rawURL string) (*model.ProfileResponse, error) {
	payload, _ := json.Marshal(model.ProfileRequest{URL: rawURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("profile token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile call: %w (%v)", model.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read profile: %w (%v)", model.ErrNetworkUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("profile status %d: %w", resp.StatusCode, model.ErrNotFound)
	}
	return decodeProfile(data)
}

// decodeProfile validates the function answer. Field types are enforced by
// the decoder; ok must be true and licence_no must be present.
func decodeProfile(data []byte) (*model.ProfileResponse, error) {
	var out model.ProfileResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode profile: %w (%v)", model.ErrNotFound, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("profile not ok %q: %w", out.Error, model.ErrNotFound)
	}
	if out.LicenceNo == nil || strings.TrimSpace(*out.LicenceNo) == "" {
		return nil, fmt.Errorf("profile without licence_no: %w", model.ErrNotFound)
	}
	return &out, nil
}

// TextProxy fetches a page rendered as text by a reader proxy.
type TextProxy struct {
	base   string
	client *http.Client
}

func NewTextProxy(base string, timeout time.Duration) *TextProxy {
	if base == "" {
		base = DefaultProxyURL
	}
	return &TextProxy{base: strings.TrimRight(base, "/"), client: &http.Client{Timeout: timeout}}
}

// ProxyURL rewrites a page URL to "<proxy>/http://<host><path>?<query>".
func (p *TextProxy) ProxyURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("proxy url %q: %w", rawURL, model.ErrInvalidInput)
	}
	out := p.base + "/http://" + u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		out += "?" + u.RawQuery
	}
	return out, nil
}

func (p *TextProxy) Text(ctx context.Context, rawURL string) (string, error) {
	target, err := p.ProxyURL(rawURL)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("text proxy: %w (%v)", model.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("text proxy status %d: %w", resp.StatusCode, model.ErrNotFound)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read text: %w (%v)", model.ErrNetworkUnavailable, err)
	}
	return string(data), nil
}

func isNetwork(err error) bool {
	return errors.Is(err, model.ErrNetworkUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
