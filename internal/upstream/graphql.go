package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alloydash/internal/domain"
	"alloydash/internal/observability"
)

// DefaultGraphQLURL is the osmosis-1 indexer endpoint.
const DefaultGraphQLURL = "https://osmosis-1-graphql.alleslabs.dev/v1/graphql"

// GraphQLClient is a client for the block/transaction indexer.
type GraphQLClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewGraphQLClient creates a new indexer client. An empty endpoint falls
// back to the osmosis-1 default.
func NewGraphQLClient(endpoint string, httpClient *http.Client) *GraphQLClient {
	if endpoint == "" {
		endpoint = DefaultGraphQLURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &GraphQLClient{endpoint: endpoint, httpClient: httpClient}
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

// Query executes a GraphQL query and decodes the data field into out.
func (c *GraphQLClient) Query(ctx context.Context, req graphqlRequest, out any) (err error) {
	start := time.Now()
	defer func() {
		observability.RecordUpstreamRequest("graphql", time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("create graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}

	var decoded graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", decoded.Errors[0].Message)
	}

	if out != nil {
		if err := json.Unmarshal(decoded.Data, out); err != nil {
			return fmt.Errorf("decode graphql data: %w", err)
		}
	}
	return nil
}

const heightBeforeQuery = `
query Blocks($where: blocks_bool_exp) {
  blocks(where: $where, order_by: {height: desc}, limit: 1) {
    height
  }
}`

// HeightBefore returns the latest block height at or before t.
func (c *GraphQLClient) HeightBefore(ctx context.Context, t time.Time) (int64, error) {
	var data struct {
		Blocks []struct {
			Height int64 `json:"height"`
		} `json:"blocks"`
	}

	req := graphqlRequest{
		Query: heightBeforeQuery,
		Variables: map[string]any{
			"where": map[string]any{
				"timestamp": map[string]any{"_lte": t.UTC().Format(time.RFC3339)},
			},
		},
	}
	if err := c.Query(ctx, req, &data); err != nil {
		return 0, err
	}
	if len(data.Blocks) == 0 {
		return 0, fmt.Errorf("no block at or before %s", t.UTC().Format(time.RFC3339))
	}
	return data.Blocks[0].Height, nil
}

const poolTransactionsQuery = `
query getTxsByPoolIdPagination($expression: pool_transactions_bool_exp, $offset: Int!, $pageSize: Int!) {
  pool_transactions(
    where: $expression
    order_by: {block_height: desc, transaction_id: desc}
    offset: $offset
    limit: $pageSize
  ) {
    block {
      height
      timestamp
    }
    transaction {
      account {
        address
      }
      hash
      success
      messages
      is_ibc
    }
  }
}`

const poolTransactionsCountQuery = `
query getTxsCountByPoolId($expression: pool_transactions_bool_exp) {
  pool_transactions_aggregate(where: $expression) {
    aggregate {
      count
    }
  }
}`

type rawPoolTransaction struct {
	Block struct {
		Height    int64  `json:"height"`
		Timestamp string `json:"timestamp"`
	} `json:"block"`
	Transaction struct {
		Account struct {
			Address string `json:"address"`
		} `json:"account"`
		Hash     string          `json:"hash"`
		Success  bool            `json:"success"`
		Messages json.RawMessage `json:"messages"`
		IsIBC    bool            `json:"is_ibc"`
	} `json:"transaction"`
}

func poolIDExpression(poolID string) (map[string]any, error) {
	id, err := strconv.ParseInt(poolID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse pool id %q: %w", poolID, err)
	}
	return map[string]any{"pool_id": map[string]any{"_eq": id}}, nil
}

// PoolTransactions fetches one page of the per-pool transaction listing,
// newest first. Pages are 1-based. Transaction hashes come back in the
// indexer's bytea form and are normalized to plain upper-case hex.
func (c *GraphQLClient) PoolTransactions(ctx context.Context, poolID string, page, limit int) ([]domain.PoolTransaction, error) {
	expr, err := poolIDExpression(poolID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	var data struct {
		PoolTransactions []rawPoolTransaction `json:"pool_transactions"`
	}
	req := graphqlRequest{
		Query:         poolTransactionsQuery,
		OperationName: "getTxsByPoolIdPagination",
		Variables: map[string]any{
			"expression": expr,
			"offset":     (page - 1) * limit,
			"pageSize":   limit,
		},
	}
	if err := c.Query(ctx, req, &data); err != nil {
		return nil, fmt.Errorf("fetch pool transactions pool=%s page=%d: %w", poolID, page, err)
	}

	txs := make([]domain.PoolTransaction, 0, len(data.PoolTransactions))
	for _, raw := range data.PoolTransactions {
		hash := strings.ToUpper(strings.TrimPrefix(raw.Transaction.Hash, `\x`))
		txs = append(txs, domain.PoolTransaction{
			Block: domain.PoolTransactionBlock{
				Height:    raw.Block.Height,
				Timestamp: raw.Block.Timestamp,
			},
			Transaction: domain.PoolTransactionDetail{
				Address:  raw.Transaction.Account.Address,
				Hash:     hash,
				Success:  raw.Transaction.Success,
				Messages: raw.Transaction.Messages,
				IsIBC:    raw.Transaction.IsIBC,
			},
		})
	}
	return txs, nil
}

// PoolTransactionsCount returns the total number of listed transactions for
// a pool.
func (c *GraphQLClient) PoolTransactionsCount(ctx context.Context, poolID string) (int64, error) {
	expr, err := poolIDExpression(poolID)
	if err != nil {
		return 0, err
	}

	var data struct {
		Aggregate struct {
			Aggregate struct {
				Count int64 `json:"count"`
			} `json:"aggregate"`
		} `json:"pool_transactions_aggregate"`
	}
	req := graphqlRequest{
		Query:         poolTransactionsCountQuery,
		OperationName: "getTxsCountByPoolId",
		Variables:     map[string]any{"expression": expr},
	}
	if err := c.Query(ctx, req, &data); err != nil {
		return 0, fmt.Errorf("fetch pool transactions count pool=%s: %w", poolID, err)
	}
	return data.Aggregate.Aggregate.Count, nil
}
