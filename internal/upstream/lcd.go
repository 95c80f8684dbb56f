package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"alloydash/internal/domain"
)

// LCD paths.
const (
	lcdLatestBlockPath       = "/cosmos/base/tendermint/v1beta1/blocks/latest"
	lcdTxSearchPath          = "/cosmos/tx/v1beta1/txs"
	lcdSmartQueryPath        = "/cosmwasm/wasm/v1/contract/%s/smart/%s"
	lcdSpendableBalancesPath = "/cosmos/bank/v1beta1/spendable_balances/%s"
)

// txSearchOrderDesc is the ORDER_BY_DESC value of the tx service.
const txSearchOrderDesc = "2"

type latestBlockResponse struct {
	Block struct {
		Header struct {
			Height string `json:"height"`
		} `json:"header"`
	} `json:"block"`
}

// LatestHeight returns the current chain height from the LCD.
func (c *Client) LatestHeight(ctx context.Context) (int64, error) {
	var resp latestBlockResponse
	if err := c.getJSON(ctx, c.cfg.LCDBaseURL+lcdLatestBlockPath, &resp); err != nil {
		return 0, fmt.Errorf("fetch latest block: %w", err)
	}

	height, err := strconv.ParseInt(resp.Block.Header.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse latest height %q: %w", resp.Block.Header.Height, err)
	}
	return height, nil
}

type txSearchResponse struct {
	TxResponses []*domain.RawTx `json:"tx_responses"`
	Total       string          `json:"total"`
}

// txSearchURL builds a tx search URL for the given event filters. Filters
// are passed as repeated query parameters, newest results first.
func (c *Client) txSearchURL(filters []string, page, limit int) string {
	values := url.Values{}
	for _, f := range filters {
		values.Add("query", f)
	}
	values.Set("order_by", txSearchOrderDesc)
	values.Set("limit", strconv.Itoa(limit))
	if page > 0 {
		values.Set("page", strconv.Itoa(page))
	}
	return c.cfg.LCDBaseURL + lcdTxSearchPath + "?" + values.Encode()
}

// TxSearchTotal returns the total number of transactions matching the
// filters without fetching result pages.
func (c *Client) TxSearchTotal(ctx context.Context, filters []string) (int64, error) {
	var resp txSearchResponse
	if err := c.getJSON(ctx, c.txSearchURL(filters, 0, 1), &resp); err != nil {
		return 0, fmt.Errorf("fetch tx count: %w", err)
	}

	total, err := strconv.ParseInt(resp.Total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse tx total %q: %w", resp.Total, err)
	}
	return total, nil
}

// TxSearchPage fetches one page of transactions matching the filters,
// ordered descending by recency. Pages are 1-based.
func (c *Client) TxSearchPage(ctx context.Context, filters []string, page, limit int) ([]*domain.RawTx, error) {
	var resp txSearchResponse
	if err := c.getJSON(ctx, c.txSearchURL(filters, page, limit), &resp); err != nil {
		return nil, fmt.Errorf("fetch tx page %d: %w", page, err)
	}
	return resp.TxResponses, nil
}

// SmartQueryRaw performs a contract smart query with a pre-encoded base64
// payload and decodes the response into out.
func (c *Client) SmartQueryRaw(ctx context.Context, contractAddress, payloadB64 string, out any) error {
	url := c.cfg.LCDBaseURL + fmt.Sprintf(lcdSmartQueryPath, contractAddress, payloadB64)
	if err := c.getJSON(ctx, url, out); err != nil {
		return fmt.Errorf("smart query contract=%s: %w", contractAddress, err)
	}
	return nil
}

type spendableBalancesResponse struct {
	Balances []domain.Coin `json:"balances"`
}

// SpendableBalances returns the spendable balances of an address. Used by
// the swap surface to show what a connected wallet can trade.
func (c *Client) SpendableBalances(ctx context.Context, address string) ([]domain.Coin, error) {
	url := c.cfg.LCDBaseURL + fmt.Sprintf(lcdSpendableBalancesPath, address) +
		"?pagination.limit=100&pagination.offset=0"

	var resp spendableBalancesResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch spendable balances: %w", err)
	}
	return resp.Balances, nil
}
