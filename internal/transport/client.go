package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"chatlens/internal/api"
)

// Authorizer issues an authenticated request. session.Manager satisfies it.
type Authorizer interface {
	Authorize(*http.Request) (*http.Response, error)
}

// Client is the thin request executor every feature client composes on. All
// requests pass through the session manager's Authorize path.
type Client struct {
	baseURL string
	session Authorizer
}

// New constructs a transport client for the given service base URL.
func New(baseURL string, session Authorizer) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		session: session,
	}
}

// DoJSON issues a JSON request and decodes the response into out (when out is
// non-nil). Non-2xx responses decode into *api.Error.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.execute(req, out)
}

// DoMultipart uploads a single file as multipart form data and decodes the
// response into out.
func (c *Client) DoMultipart(ctx context.Context, path, field, filename string, content []byte, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create multipart field: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("write multipart content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.execute(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("build url for %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) execute(req *http.Request, out any) error {
	resp, err := c.session.Authorize(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &api.Error{StatusCode: resp.StatusCode}
		if decodeErr := json.Unmarshal(payload, apiErr); decodeErr != nil || strings.TrimSpace(apiErr.Detail) == "" {
			apiErr.Detail = strings.TrimSpace(string(payload))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
