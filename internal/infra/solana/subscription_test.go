package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/solwatch/internal/core/domain"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const testSubscriptionID = 77

type wsRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// slotFeed is a fake pubsub endpoint. It acknowledges slotSubscribe and then
// emits the given slots; closeAfter closes the stream after that many events.
func slotFeed(t *testing.T, slots []uint64, closeAfter int, unsubscribed chan<- uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil || req.Method != "slotSubscribe" {
			return
		}
		_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": testSubscriptionID})

		for i, s := range slots {
			if closeAfter >= 0 && i == closeAfter {
				// let the client drain what was sent before the close frame
				time.Sleep(200 * time.Millisecond)
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"method":  "slotNotification",
				"params": map[string]any{
					"result":       map[string]any{"slot": s, "parent": s - 1, "root": s - 32},
					"subscription": testSubscriptionID,
				},
			})
		}

		for {
			var msg wsRequest
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Method != "slotUnsubscribe" {
				continue
			}
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": true})
			if unsubscribed != nil && len(msg.Params) > 0 {
				var id uint64
				if err := json.Unmarshal(msg.Params[0], &id); err == nil {
					unsubscribed <- id
				}
			}
			return
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestCollectSlotBurst_ReadsBurstAndUnsubscribes(t *testing.T) {
	unsubscribed := make(chan uint64, 1)
	srv := slotFeed(t, []uint64{100, 101, 102, 103, 104, 105, 106}, -1, unsubscribed)

	c := NewSubscriptionClient(SubscriptionConfig{URL: wsURL(srv), Timeout: 5 * time.Second})
	burst, err := c.CollectSlotBurst(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, burst.Events)
	require.NotNil(t, burst.FirstSlot)
	require.NotNil(t, burst.LastSlot)
	assert.Equal(t, domain.Slot(100), *burst.FirstSlot)
	assert.Equal(t, domain.Slot(104), *burst.LastSlot)

	select {
	case id := <-unsubscribed:
		assert.Equal(t, uint64(testSubscriptionID), id)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received slotUnsubscribe")
	}
}

func TestCollectSlotBurst_StreamEndsEarly(t *testing.T) {
	srv := slotFeed(t, []uint64{10, 11, 12}, 2, nil)

	c := NewSubscriptionClient(SubscriptionConfig{URL: wsURL(srv), Timeout: 5 * time.Second})
	burst, err := c.CollectSlotBurst(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, burst.Events)
	require.NotNil(t, burst.LastSlot)
	assert.Equal(t, domain.Slot(11), *burst.LastSlot)
}

func TestCollectSlotBurst_ConnectFailure(t *testing.T) {
	c := NewSubscriptionClient(SubscriptionConfig{URL: "ws://127.0.0.1:1", Timeout: time.Second})
	burst, err := c.CollectSlotBurst(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscription connect")
	assert.Nil(t, burst.LastSlot)
}

func TestCollectSlotBurst_TimesOut(t *testing.T) {
	// acknowledges the subscription but never sends a notification
	srv := slotFeed(t, nil, -1, nil)

	c := NewSubscriptionClient(SubscriptionConfig{URL: wsURL(srv), Timeout: 200 * time.Millisecond})
	start := time.Now()
	_, err := c.CollectSlotBurst(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSlotBurst_Add(t *testing.T) {
	var b SlotBurst
	b.add(5)
	b.add(6)
	require.NotNil(t, b.FirstSlot)
	assert.Equal(t, domain.Slot(5), *b.FirstSlot)
	assert.Equal(t, domain.Slot(6), *b.LastSlot)
	assert.Equal(t, 2, b.Events)
}
