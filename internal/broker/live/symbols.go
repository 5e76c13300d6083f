package live

import (
	"context"
	"fmt"
	"sync"
)

// hardcodedTokens is the fallback symbol->token map for the most liquid
// instruments (spec §6: "Symbol->token resolved via a hardcoded map plus
// API search"). A real deployment seeds this from the vendor's published
// instrument master; this sample covers the NIFTY and BANKNIFTY indices.
var hardcodedTokens = map[string]string{
	"NSE:NIFTY":     "99926000",
	"NSE:BANKNIFTY": "99926009",
}

type searchScripResponse struct {
	Data []struct {
		SymbolToken string `json:"symboltoken"`
		TradingSymbol string `json:"tradingsymbol"`
	} `json:"data"`
}

// SymbolResolver resolves exchange:symbol to the broker's numeric token,
// caching results in a single-writer map (spec §5: "single-writer map keyed
// by exchange:symbol").
type SymbolResolver struct {
	client *Client

	mu    sync.Mutex
	cache map[string]string
}

// NewSymbolResolver creates a resolver seeded with the hardcoded map.
func NewSymbolResolver(client *Client) *SymbolResolver {
	cache := make(map[string]string, len(hardcodedTokens))
	for k, v := range hardcodedTokens {
		cache[k] = v
	}
	return &SymbolResolver{client: client, cache: cache}
}

// Resolve returns the broker token for exchange:symbol, consulting the
// cache first and falling back to a searchScrip API call.
func (r *SymbolResolver) Resolve(ctx context.Context, exchange, symbol string) (string, error) {
	key := exchange + ":" + symbol

	r.mu.Lock()
	if token, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return token, nil
	}
	r.mu.Unlock()

	var resp searchScripResponse
	req := struct {
		Exchange    string `json:"exchange"`
		SearchScrip string `json:"searchscrip"`
	}{Exchange: exchange, SearchScrip: symbol}

	if err := r.client.do(ctx, "POST", "/rest/secure/angelbroking/order/v1/searchScrip", req, &resp); err != nil {
		return "", fmt.Errorf("live.SymbolResolver.Resolve: %s: %w", key, err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("live.SymbolResolver.Resolve: %s: no match", key)
	}

	token := resp.Data[0].SymbolToken
	r.mu.Lock()
	r.cache[key] = token
	r.mu.Unlock()
	return token, nil
}
