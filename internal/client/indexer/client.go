package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

type Client struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("indexer error (%d): %s", e.Status, e.Body)
}

// Permanent reports client errors that retrying cannot fix. Timeouts and
// throttling stay retryable.
func (e *APIError) Permanent() bool {
	if e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests {
		return false
	}
	return e.Status >= 400 && e.Status < 500
}

// NewClient builds an indexer client. limiter may be nil; when set it is
// shared by every request this client makes.
func NewClient(httpClient *http.Client, host string, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

func (c *Client) doRequest(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func resourcePath(marketID string, resource Resource) string {
	return fmt.Sprintf("/markets/%s/%s", url.PathEscape(marketID), resource)
}

// GetRaw returns the undecoded body of a resource snapshot.
func (c *Client) GetRaw(ctx context.Context, marketID string, resource Resource) ([]byte, error) {
	if strings.TrimSpace(marketID) == "" {
		return nil, fmt.Errorf("market id is required")
	}
	return c.doRequest(ctx, resourcePath(marketID, resource))
}

func getSnapshot[T any](ctx context.Context, c *Client, marketID string, resource Resource) (*T, []byte, error) {
	body, err := c.GetRaw(ctx, marketID, resource)
	if err != nil {
		return nil, nil, err
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, body, fmt.Errorf("decode %s: %w", resource, err)
	}
	return &out, body, nil
}

func (c *Client) GetAuctions(ctx context.Context, marketID string) (*AuctionsSnapshot, []byte, error) {
	return getSnapshot[AuctionsSnapshot](ctx, c, marketID, ResourceAuctions)
}

func (c *Client) GetLendingTerms(ctx context.Context, marketID string) (*LendingTermsSnapshot, []byte, error) {
	return getSnapshot[LendingTermsSnapshot](ctx, c, marketID, ResourceLendingTerms)
}

func (c *Client) GetLoans(ctx context.Context, marketID string) (*LoansSnapshot, []byte, error) {
	return getSnapshot[LoansSnapshot](ctx, c, marketID, ResourceLoans)
}

func (c *Client) GetProposals(ctx context.Context, marketID string) (*ProposalsSnapshot, []byte, error) {
	return getSnapshot[ProposalsSnapshot](ctx, c, marketID, ResourceProposals)
}
