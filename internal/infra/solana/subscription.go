package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// SubscriptionConfig configures the slot notification reader.
type SubscriptionConfig struct {
	URL       string
	BurstSize int           // notifications to read before unsubscribing
	Timeout   time.Duration // upper bound for the whole burst
}

func (c *SubscriptionConfig) applyDefaults() {
	if c.BurstSize <= 0 {
		c.BurstSize = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// SlotBurst summarizes one burst read. FirstSlot and LastSlot are nil when no event arrived.
type SlotBurst struct {
	Events    int
	FirstSlot *domain.Slot
	LastSlot  *domain.Slot
}

func (b *SlotBurst) add(slot domain.Slot) {
	if b.FirstSlot == nil {
		first := slot
		b.FirstSlot = &first
	}
	last := slot
	b.LastSlot = &last
	b.Events++
}

// SubscriptionClient opens short-lived slotSubscribe sessions over the node's
// websocket endpoint.
type SubscriptionClient struct {
	cfg SubscriptionConfig
}

// NewSubscriptionClient creates a subscription client. BurstSize defaults to 5, Timeout to 10s.
func NewSubscriptionClient(cfg SubscriptionConfig) *SubscriptionClient {
	cfg.applyDefaults()
	return &SubscriptionClient{cfg: cfg}
}

// CollectSlotBurst subscribes to slot notifications, reads up to BurstSize of them
// (fewer if the stream ends), unsubscribes and closes the connection.
// Any failure along the way is returned as a single error.
func (c *SubscriptionClient) CollectSlotBurst(ctx context.Context) (SlotBurst, error) {
	var burst SlotBurst

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	client, err := ws.Connect(ctx, c.cfg.URL)
	if err != nil {
		return burst, fmt.Errorf("subscription connect: %w", err)
	}
	defer client.Close()

	sub, err := client.SlotSubscribe()
	if err != nil {
		return burst, fmt.Errorf("slot subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for burst.Events < c.cfg.BurstSize {
		got, err := sub.Recv(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return burst, fmt.Errorf("subscription read: %w", ctxErr)
			}
			// stream ended before the burst filled
			return burst, nil
		}
		if got == nil {
			return burst, nil
		}
		burst.add(domain.Slot(got.Slot))
	}
	return burst, nil
}
