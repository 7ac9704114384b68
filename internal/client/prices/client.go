package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://coins.llama.fi"

// Quote is a USD spot price for one token, keyed by lower-case address.
type Quote struct {
	Address   string          `json:"address"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Decimals  int32           `json:"decimals"`
	Timestamp int64           `json:"timestamp"`
}

type Client struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("price feed error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if host == "" {
		host = DefaultBaseURL
	}
	return &Client{
		host:       strings.TrimRight(host, "/"),
		httpClient: httpClient,
	}
}

type coinsResponse struct {
	Coins map[string]struct {
		Price     decimal.Decimal `json:"price"`
		Decimals  int32           `json:"decimals"`
		Symbol    string          `json:"symbol"`
		Timestamp int64           `json:"timestamp"`
	} `json:"coins"`
}

// GetQuotes fetches current prices for addresses on chain. Tokens the feed
// does not know are absent from the result.
func (c *Client) GetQuotes(ctx context.Context, chain string, addresses []string) (map[string]Quote, error) {
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		return nil, fmt.Errorf("chain is required")
	}
	keys := make([]string, 0, len(addresses))
	seen := map[string]struct{}{}
	for _, addr := range addresses {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		keys = append(keys, chain+":"+addr)
	}
	if len(keys) == 0 {
		return map[string]Quote{}, nil
	}
	sort.Strings(keys)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/prices/current/"+strings.Join(keys, ","), nil)
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

	var payload coinsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode prices: %w", err)
	}
	out := make(map[string]Quote, len(payload.Coins))
	for key, coin := range payload.Coins {
		addr := strings.ToLower(key)
		if idx := strings.Index(addr, ":"); idx >= 0 {
			addr = addr[idx+1:]
		}
		out[addr] = Quote{
			Address:   addr,
			Symbol:    coin.Symbol,
			Price:     coin.Price,
			Decimals:  coin.Decimals,
			Timestamp: coin.Timestamp,
		}
	}
	return out, nil
}
