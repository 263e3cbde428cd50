package admin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/nfrund/wirecall/internal/registry"
)

// Client calls the admin JSON-RPC endpoint of a running node.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the admin server at baseURL, e.g.
// "http://127.0.0.1:8090". A nil hc uses a client with a 10s timeout.
func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{url: strings.TrimRight(baseURL, "/") + "/rpc", http: hc}
}

// Call invokes method with params and decodes the result into reply.
func (c *Client) Call(ctx context.Context, method string, params, reply any) error {
	body, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	// json2 reports method errors in the body of a 4xx response.
	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("call %s: status %d: %w", method, resp.StatusCode, err)
		}
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

// ListEntries calls Registry.List.
func (c *Client) ListEntries(ctx context.Context, kind registry.EntryKind) ([]registry.Entry, error) {
	var reply ListReply
	if err := c.Call(ctx, "Registry.List", &ListArgs{Kind: kind}, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

// Sessions calls Registry.Sessions.
func (c *Client) Sessions(ctx context.Context) (SessionsReply, error) {
	var reply SessionsReply
	err := c.Call(ctx, "Registry.Sessions", &SessionsArgs{}, &reply)
	return reply, err
}
