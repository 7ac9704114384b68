package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"creditguild/internal/client/indexer"
	"creditguild/internal/config"
	"creditguild/internal/poller"
	"creditguild/internal/service"
	"creditguild/internal/state"
)

type fixedSource struct {
	block uint64
}

func (s *fixedSource) GetAuctions(ctx context.Context, marketID string) (*indexer.AuctionsSnapshot, []byte, error) {
	return &indexer.AuctionsSnapshot{UpdateBlock: s.block}, nil, nil
}

func (s *fixedSource) GetLendingTerms(ctx context.Context, marketID string) (*indexer.LendingTermsSnapshot, []byte, error) {
	return &indexer.LendingTermsSnapshot{UpdateBlock: s.block}, nil, nil
}

func (s *fixedSource) GetLoans(ctx context.Context, marketID string) (*indexer.LoansSnapshot, []byte, error) {
	return &indexer.LoansSnapshot{UpdateBlock: s.block}, nil, nil
}

func (s *fixedSource) GetProposals(ctx context.Context, marketID string) (*indexer.ProposalsSnapshot, []byte, error) {
	return &indexer.ProposalsSnapshot{UpdateBlock: s.block}, nil, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func newTestEngine(t *testing.T, block uint64) (*gin.Engine, *state.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := state.NewStore()
	markets := map[string]config.MarketConfig{"1": {ID: "1", PriceChain: "arbitrum"}}
	syncSvc := &service.SnapshotSyncService{
		Source: &fixedSource{block: block},
		State:  store,
		Poll: poller.Options{
			Interval:    time.Millisecond,
			MaxAttempts: 3,
		},
	}
	curves := &service.CurveService{
		State:   store,
		Houses:  service.NewAuctionHouseService(nil, nil, nil),
		Markets: markets,
	}
	engine := gin.New()
	(&MarketHandler{Sync: syncSvc, Curves: curves, State: store, Markets: markets}).Register(engine)
	(&StreamHandler{State: store}).Register(engine)
	(&HealthHandler{State: store}).Register(engine)
	return engine, store
}

func do(t *testing.T, engine *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func TestMarketHandler_Snapshot(t *testing.T) {
	engine, store := newTestEngine(t, 5)

	code, _ := do(t, engine, http.MethodGet, "/api/markets/9/snapshots/auctions", "")
	require.Equal(t, http.StatusNotFound, code)

	code, env := do(t, engine, http.MethodGet, "/api/markets/1/snapshots/auctions", "")
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "snapshot not loaded", env.Message)

	code, _ = do(t, engine, http.MethodGet, "/api/markets/1/snapshots/votes", "")
	require.Equal(t, http.StatusBadRequest, code)

	store.Market("1").Auctions.Set(&indexer.AuctionsSnapshot{UpdateBlock: 4}, 4)
	code, env = do(t, engine, http.MethodGet, "/api/markets/1/snapshots/auctions", "")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 4, env.Meta["version"])

	code, env = do(t, engine, http.MethodGet, "/api/markets/1/snapshots/auctions?fresh=true", "")
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 5, env.Meta["version"])
}

func TestMarketHandler_Sync(t *testing.T) {
	engine, store := newTestEngine(t, 5)

	code, env := do(t, engine, http.MethodPost, "/api/markets/1/sync", `{"resource":"loans","target_block":5}`)
	require.Equal(t, http.StatusOK, code)
	var result service.SyncResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, uint64(5), result.UpdateBlock)
	require.Equal(t, uint64(5), store.Market("1").Loans.Version())

	// The indexer never reaches block 9 within the attempt cap.
	code, _ = do(t, engine, http.MethodPost, "/api/markets/1/sync", `{"resource":"loans","target_block":9}`)
	require.Equal(t, http.StatusGatewayTimeout, code)

	code, _ = do(t, engine, http.MethodPost, "/api/markets/1/sync", `{"target_block":9}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, engine, http.MethodPost, "/api/markets/1/sync", `{"resource":"votes"}`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestMarketHandler_CurveNotRenderable(t *testing.T) {
	engine, _ := newTestEngine(t, 1)
	code, _ := do(t, engine, http.MethodGet, "/api/markets/1/auctions/0xloan/curve", "")
	require.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestHealthHandler_ReadyNeedsMarkets(t *testing.T) {
	engine, store := newTestEngine(t, 1)
	code, _ := do(t, engine, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusServiceUnavailable, code)

	store.Market("1")
	code, _ = do(t, engine, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, code)
}

func TestStreamHandler_PushesFilteredEvents(t *testing.T) {
	engine, store := newTestEngine(t, 1)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws://" + strings.TrimPrefix(srv.URL, "http://") + "/api/stream?market=1&resource=loans"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "test complete")

	got := make(chan state.Event, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var ev state.Event
		if json.Unmarshal(data, &ev) == nil {
			got <- ev
		}
	}()

	// The subscription is registered asynchronously; keep committing until
	// the first matching event arrives.
	for v := uint64(1); v < 500; v++ {
		store.Market("2").Loans.Set(&indexer.LoansSnapshot{UpdateBlock: v}, v)
		store.Market("1").Auctions.Set(&indexer.AuctionsSnapshot{UpdateBlock: v}, v)
		store.Market("1").Loans.Set(&indexer.LoansSnapshot{UpdateBlock: v}, v)
		select {
		case ev := <-got:
			require.Equal(t, "1", ev.Market)
			require.Equal(t, "loans", ev.Resource)
			require.NotZero(t, ev.Version)
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("no event received")
}
