// Package adminclient is an HTTP client for the patchgate admin API.
package adminclient

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

	"golang.org/x/oauth2"
)

// APIError is a non-2xx response from the admin API.
type APIError struct {
	Status  int
	Message string
	Files   []string
}

func (e *APIError) Error() string {
	if len(e.Files) > 0 {
		return fmt.Sprintf("admin API %d: %s (%s)", e.Status, e.Message, strings.Join(e.Files, ", "))
	}
	return fmt.Sprintf("admin API %d: %s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string

	// Cloudflare Access service token, sent only when both are set.
	CFAccessClientID     string
	CFAccessClientSecret string

	Timeout time.Duration
	// Base is the underlying transport. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// Client talks to a patchgate server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. The bearer token is attached by an oauth2 static token source.
func New(opts Options) *Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if opts.CFAccessClientID != "" && opts.CFAccessClientSecret != "" {
		base = &headerTransport{
			base: base,
			headers: map[string]string{
				"CF-Access-Client-Id":     opts.CFAccessClientID,
				"CF-Access-Client-Secret": opts.CFAccessClientSecret,
			},
		}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"}),
				Base:   base,
			},
		},
	}
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// ProposeResult is the response of /propose.
type ProposeResult struct {
	ID    string   `json:"id"`
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

// LandResult is the response of /land.
type LandResult struct {
	ProposeResult
	Diff string `json:"diff"`
}

// AutoResult is the response of /auto.
type AutoResult struct {
	LandResult
	Patch string `json:"patch"`
}

// Proposal is a stored proposal as listed by /proposals.
type Proposal struct {
	ID        string   `json:"id"`
	Hash      string   `json:"hash"`
	Files     []string `json:"files"`
	CreatedAt int64    `json:"createdAt"`
	Patch     string   `json:"patch,omitempty"`
}

// Created returns the creation time.
func (p Proposal) Created() time.Time {
	return time.UnixMilli(p.CreatedAt)
}

// Health reports whether the server is up and the token is accepted.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Propose validates and stores a patch, returning its id and confirmation hash.
func (c *Client) Propose(ctx context.Context, patchText string) (ProposeResult, error) {
	var out ProposeResult
	err := c.do(ctx, http.MethodPost, "/propose", map[string]string{"patch": patchText}, &out)
	return out, err
}

// Apply applies a proposal and returns the resulting diff.
func (c *Client) Apply(ctx context.Context, id, hash string) (string, error) {
	var out struct {
		Diff string `json:"diff"`
	}
	err := c.do(ctx, http.MethodPost, "/apply", map[string]string{"id": id, "hash": hash}, &out)
	return out.Diff, err
}

// Commit stages all working-tree changes and commits them with message.
func (c *Client) Commit(ctx context.Context, message string) error {
	return c.do(ctx, http.MethodPost, "/commit", map[string]string{"message": message}, nil)
}

// Push pushes the current branch to its remote.
func (c *Client) Push(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/push", struct{}{}, nil)
}

// Land runs propose, apply, commit and push in one call.
func (c *Client) Land(ctx context.Context, patchText, message string) (LandResult, error) {
	var out LandResult
	err := c.do(ctx, http.MethodPost, "/land", map[string]string{"patch": patchText, "message": message}, &out)
	return out, err
}

// Auto asks the server to author a patch from instruction and land it.
func (c *Client) Auto(ctx context.Context, instruction string) (AutoResult, error) {
	var out AutoResult
	err := c.do(ctx, http.MethodPost, "/auto", map[string]string{"instruction": instruction}, &out)
	return out, err
}

// Proposals lists stored proposals without their patch text.
func (c *Client) Proposals(ctx context.Context) ([]Proposal, error) {
	var out struct {
		Proposals []Proposal `json:"proposals"`
	}
	err := c.do(ctx, http.MethodGet, "/proposals", nil, &out)
	return out.Proposals, err
}

// Proposal fetches one stored proposal including its patch text.
func (c *Client) Proposal(ctx context.Context, id string) (Proposal, error) {
	var out Proposal
	err := c.do(ctx, http.MethodGet, "/proposals/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string   `json:"error"`
			Files []string `json:"files"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
			apiErr.Files = payload.Files
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
