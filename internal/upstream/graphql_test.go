package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func graphqlServer(t *testing.T, handle func(req graphqlRequest) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(handle(req)))
	}))
}

func TestHeightBefore(t *testing.T) {
	cutoff := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	server := graphqlServer(t, func(req graphqlRequest) string {
		where, _ := req.Variables["where"].(map[string]any)
		ts, _ := where["timestamp"].(map[string]any)
		if got := ts["_lte"]; got != "2024-03-01T12:00:00Z" {
			t.Errorf("unexpected cutoff %v", got)
		}
		return `{"data":{"blocks":[{"height":19999999}]}}`
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, nil)
	height, err := client.HeightBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("HeightBefore: %v", err)
	}
	if height != 19999999 {
		t.Errorf("expected 19999999, got %d", height)
	}
}

func TestHeightBefore_NoBlocks(t *testing.T) {
	server := graphqlServer(t, func(graphqlRequest) string {
		return `{"data":{"blocks":[]}}`
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, nil)
	if _, err := client.HeightBefore(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for empty block list")
	}
}

func TestQuery_GraphQLErrors(t *testing.T) {
	server := graphqlServer(t, func(graphqlRequest) string {
		return `{"errors":[{"message":"field not found"}]}`
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, nil)
	if _, err := client.HeightBefore(context.Background(), time.Now()); err == nil {
		t.Fatal("expected graphql error to propagate")
	}
}

func TestPoolTransactions_PaginationAndHashNormalization(t *testing.T) {
	server := graphqlServer(t, func(req graphqlRequest) string {
		if req.OperationName != "getTxsByPoolIdPagination" {
			t.Errorf("unexpected operation %q", req.OperationName)
		}
		// Page 2 of 10 means offset 10.
		if got := req.Variables["offset"]; got != float64(10) {
			t.Errorf("expected offset 10, got %v", got)
		}
		if got := req.Variables["pageSize"]; got != float64(10) {
			t.Errorf("expected pageSize 10, got %v", got)
		}
		expr, _ := req.Variables["expression"].(map[string]any)
		poolID, _ := expr["pool_id"].(map[string]any)
		if got := poolID["_eq"]; got != float64(7) {
			t.Errorf("expected numeric pool id 7, got %v", got)
		}
		return `{"data":{"pool_transactions":[
			{"block":{"height":20000001,"timestamp":"2024-03-01T12:00:00Z"},
			 "transaction":{"account":{"address":"osmo1user"},"hash":"\\xdeadbeef","success":true,"messages":[],"is_ibc":false}}
		]}}`
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, nil)
	txs, err := client.PoolTransactions(context.Background(), "7", 2, 10)
	if err != nil {
		t.Fatalf("PoolTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 tx, got %d", len(txs))
	}
	if txs[0].Transaction.Hash != "DEADBEEF" {
		t.Errorf("expected normalized hash DEADBEEF, got %q", txs[0].Transaction.Hash)
	}
	if txs[0].Block.Height != 20000001 {
		t.Errorf("unexpected block height %d", txs[0].Block.Height)
	}
}

func TestPoolTransactions_MessagesStayInlineJSON(t *testing.T) {
	server := graphqlServer(t, func(graphqlRequest) string {
		return `{"data":{"pool_transactions":[
			{"block":{"height":1,"timestamp":"2024-03-01T12:00:00Z"},
			 "transaction":{"account":{"address":"osmo1user"},"hash":"AB","success":true,"messages":[{"type":"swap"}],"is_ibc":false}}
		]}}`
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, nil)
	txs, err := client.PoolTransactions(context.Background(), "7", 1, 10)
	if err != nil {
		t.Fatalf("PoolTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 tx, got %d", len(txs))
	}

	// Re-encoding must keep the message list as JSON, not a base64 blob.
	encoded, err := json.Marshal(txs[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"messages":[{"type":"swap"}]`) {
		t.Errorf("expected inline message JSON, got %s", encoded)
	}
}

func TestPoolTransactions_InvalidPoolID(t *testing.T) {
	client := NewGraphQLClient("http://unused.invalid", nil)
	if _, err := client.PoolTransactions(context.Background(), "not-a-number", 1, 10); err == nil {
		t.Fatal("expected error for non-numeric pool id")
	}
}

func TestPoolTransactionsCount(t *testing.T) {
	server := graphqlServer(t, func(req graphqlRequest) string {
		if req.OperationName != "getTxsCountByPoolId" {
			t.Errorf("unexpected operation %q", req.OperationName)
		}
		return `{"data":{"pool_transactions_aggregate":{"aggregate":{"count":1234}}}}`
	})
	defer server.Close()

	client := NewGraphQLClient(server.URL, nil)
	count, err := client.PoolTransactionsCount(context.Background(), "7")
	if err != nil {
		t.Fatalf("PoolTransactionsCount: %v", err)
	}
	if count != 1234 {
		t.Errorf("expected 1234, got %d", count)
	}
}
