package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/solwatch/internal/core/config"
	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/solana"
	"github.com/vietddude/solwatch/internal/infra/solana/solanatest"
	"github.com/vietddude/solwatch/internal/infra/storage/memory"
)

// fakeNode serves getSlot and getBlock. Slots listed in skipped answer -32007.
type fakeNode struct {
	mu      sync.Mutex
	head    uint64
	skipped map[uint64]bool
	down    bool
}

func newFakeNode(t *testing.T, head uint64, skipped ...uint64) (*fakeNode, *httptest.Server) {
	t.Helper()
	n := &fakeNode{head: head, skipped: make(map[uint64]bool)}
	for _, s := range skipped {
		n.skipped[s] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) setSkipped(slot uint64, v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.skipped[slot] = v
}

func (n *fakeNode) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	_ = json.Unmarshal(body, &req)

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.down {
		http.Error(w, "unavailable", http.StatusBadGateway)
		return
	}

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "getSlot":
		resp["result"] = n.head
	case "getBlock":
		var slot uint64
		_ = json.Unmarshal(req.Params[0], &slot)
		if n.skipped[slot] {
			resp["error"] = map[string]any{
				"code":    -32007,
				"message": fmt.Sprintf("Slot %d was skipped, or missing due to ledger jump to recent snapshot", slot),
			}
			break
		}
		block, err := solanatest.BlockJSON(slot, solanatest.Tx{
			Signature: solanatest.Signature("sig", slot),
			Invokes:   []solanago.PublicKey{solanago.SystemProgramID},
			Fee:       5000,
		})
		if err != nil {
			resp["error"] = map[string]any{"code": -32603, "message": err.Error()}
			break
		}
		resp["result"] = block
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func testConfig(rpcURL string) *config.AppConfig {
	return &config.AppConfig{
		Logging: config.LoggingConfig{Level: "debug"},
		Solana: config.SolanaConfig{
			HTTPURL:        rpcURL,
			WSURL:          "ws://127.0.0.1:1",
			Commitment:     "finalized",
			RequestTimeout: 2 * time.Second,
			BlockEncoding:  "base64",
		},
		Indexer: config.IndexerConfig{
			Run:             true,
			BatchCap:        20,
			IdleInterval:    10 * time.Millisecond,
			BatchDelay:      time.Millisecond,
			FetchAttempts:   2,
			FetchRetryDelay: time.Millisecond,
			OnError:         "halt",
			GapStore:        config.GapStorePostgres,
		},
		Subscription: config.SubscriptionConfig{Mode: "disabled", Transport: config.TransportWebsocket, BurstSize: 5},
	}
}

// runUntil runs the observer until its cursor reaches slot, then stops it.
func runUntil(t *testing.T, o *Observer, slot domain.Slot) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, err := o.Status(context.Background())
		return err == nil && st.Cursor >= slot
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not stop")
	}
}

func TestObserver_BootstrapOnly(t *testing.T) {
	_, srv := newFakeNode(t, 10)
	cfg := testConfig(srv.URL)
	cfg.Indexer.Run = false

	o, err := NewObserver(context.Background(), cfg)
	require.NoError(t, err)
	defer o.Close()

	require.NoError(t, o.Run(context.Background()))

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Slot(0), st.Cursor)
	assert.Equal(t, domain.Slot(10), st.Head)
	assert.Equal(t, int64(10), st.Lag)
	assert.Zero(t, st.Blocks)
}

func TestObserver_IndexesToHeadAndBackfills(t *testing.T) {
	node, srv := newFakeNode(t, 6, 3)

	o, err := NewObserver(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer o.Close()

	runUntil(t, o, 6)

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Blocks)
	assert.Equal(t, int64(1), st.SkippedPending)
	assert.Equal(t, int64(0), st.Lag)

	// the node now serves the block
	node.setSkipped(3, false)
	report, err := o.Backfill(context.Background(), BackfillOptions{Limit: 10, Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resolved)
	assert.Zero(t, report.Remaining)

	st, err = o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), st.Blocks)
	assert.Equal(t, domain.Slot(6), st.Cursor)
}

func TestObserver_BackfillScanFindsUnrecordedGaps(t *testing.T) {
	_, srv := newFakeNode(t, 6, 2, 3)
	cfg := testConfig(srv.URL)
	cfg.Indexer.GapStore = config.GapStoreNone

	o, err := NewObserver(context.Background(), cfg)
	require.NoError(t, err)
	defer o.Close()

	runUntil(t, o, 6)

	// gaps left by a run without a gap store can still be queued later
	o.skipped = memory.NewSkippedSlotRepo(o.store)
	report, err := o.Backfill(context.Background(), BackfillOptions{
		Limit:    10,
		Interval: time.Millisecond,
		Scan:     &domain.SlotRange{Start: 1, End: 6},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 2, report.Empty)
}

func TestObserver_RedisGapStore(t *testing.T) {
	mr := miniredis.RunT(t)
	_, srv := newFakeNode(t, 8, 4, 5)

	cfg := testConfig(srv.URL)
	cfg.Indexer.GapStore = config.GapStoreRedis
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Redis.Namespace = "obs"

	o, err := NewObserver(context.Background(), cfg)
	require.NoError(t, err)
	defer o.Close()

	runUntil(t, o, 8)

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.SkippedPending)

	members, err := mr.ZMembers("obs:skipped:ranges")
	require.NoError(t, err)
	assert.Equal(t, []string{"4-5"}, members)

	report, err := o.Backfill(context.Background(), BackfillOptions{Limit: 10, Interval: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Empty)
	assert.Zero(t, report.Remaining)
}

func TestObserver_NoGapStore(t *testing.T) {
	_, srv := newFakeNode(t, 3, 2)
	cfg := testConfig(srv.URL)
	cfg.Indexer.GapStore = config.GapStoreNone

	o, err := NewObserver(context.Background(), cfg)
	require.NoError(t, err)
	defer o.Close()

	runUntil(t, o, 3)

	_, err = o.Backfill(context.Background(), BackfillOptions{})
	assert.Error(t, err)
}

func TestObserver_ResetCursor(t *testing.T) {
	_, srv := newFakeNode(t, 5)
	o, err := NewObserver(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer o.Close()

	runUntil(t, o, 5)

	prev, err := o.ResetCursor(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, domain.Slot(5), prev)

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Slot(2), st.Cursor)
}

func TestObserver_StatusWithNodeDown(t *testing.T) {
	node, srv := newFakeNode(t, 5)
	o, err := NewObserver(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer o.Close()

	node.mu.Lock()
	node.down = true
	node.mu.Unlock()

	st, err := o.Status(context.Background())
	require.NoError(t, err)
	assert.Error(t, st.HeadError)
}

func TestObserver_HaltPolicyReturnsError(t *testing.T) {
	node, srv := newFakeNode(t, 5)
	node.down = true

	o, err := NewObserver(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer o.Close()

	assert.Error(t, o.Run(context.Background()))
}

func TestObserver_MigrateNeedsDatabase(t *testing.T) {
	_, srv := newFakeNode(t, 5)
	o, err := NewObserver(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	defer o.Close()

	_, err = o.Migrate(context.Background())
	assert.Error(t, err)
}

func TestNewSlotWatcher_Transport(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")

	_, ok := newSlotWatcher(cfg).(*solana.SubscriptionClient)
	assert.True(t, ok, "websocket is the default transport")

	cfg.Subscription.Transport = config.TransportGeyser
	cfg.Subscription.GeyserEndpoint = "localhost:10000"
	_, ok = newSlotWatcher(cfg).(*solana.GeyserClient)
	assert.True(t, ok)
}
