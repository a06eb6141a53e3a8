package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// SkippedSlotRepo implements storage.SkippedSlotRepository on Redis.
//
// Pending slots are kept as merged "start-end" ranges in a sorted set scored by start,
// so a long outage costs one member rather than one per slot. Per-slot details live in a hash.
type SkippedSlotRepo struct {
	rdb       *redis.Client
	namespace string
}

// NewSkippedSlotRepo creates a Redis-backed skipped slot repository.
func NewSkippedSlotRepo(client *Client, namespace string) *SkippedSlotRepo {
	if namespace == "" {
		namespace = "solwatch"
	}
	return &SkippedSlotRepo{rdb: client.rdb, namespace: namespace}
}

// Key helpers
func (r *SkippedSlotRepo) rangesKey() string {
	return fmt.Sprintf("%s:skipped:ranges", r.namespace)
}

func (r *SkippedSlotRepo) metaKey() string {
	return fmt.Sprintf("%s:skipped:meta", r.namespace)
}

func (r *SkippedSlotRepo) resolvedKey() string {
	return fmt.Sprintf("%s:skipped:resolved", r.namespace)
}

type slotMeta struct {
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

func slotField(s domain.Slot) string {
	return strconv.FormatUint(uint64(s), 10)
}

// Record adds the slot to the pending ranges, merging with neighbours.
func (r *SkippedSlotRepo) Record(ctx context.Context, s *domain.SkippedSlot) error {
	field := slotField(s.Slot)

	resolved, err := r.rdb.HExists(ctx, r.resolvedKey(), field).Result()
	if err != nil {
		return fmt.Errorf("hexists failed: %w", err)
	}
	if resolved {
		return nil
	}

	meta := slotMeta{
		Reason:    string(s.Reason),
		Attempts:  s.Attempts,
		RunID:     s.RunID,
		CreatedAt: s.CreatedAt,
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	if prev, ok, err := r.getMeta(ctx, field); err != nil {
		return err
	} else if ok {
		meta.Attempts += prev.Attempts
		meta.CreatedAt = prev.CreatedAt
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal skipped slot: %w", err)
	}

	// Candidates: the two ranges starting at or before slot+1
	neighbours, err := r.rdb.ZRevRangeByScore(ctx, r.rangesKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatUint(uint64(s.Slot)+1, 10),
		Count: 2,
	}).Result()
	if err != nil {
		return fmt.Errorf("zrevrangebyscore failed: %w", err)
	}

	merged := domain.SlotRange{Start: s.Slot, End: s.Slot}
	var stale []any
	for _, member := range neighbours {
		rng, err := domain.ParseSlotRange(member)
		if err != nil {
			return fmt.Errorf("invalid range in queue: %w", err)
		}
		if rng.Touches(merged) {
			merged = merged.Union(rng)
			stale = append(stale, member)
		}
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(stale) > 0 {
			pipe.ZRem(ctx, r.rangesKey(), stale...)
		}
		pipe.ZAdd(ctx, r.rangesKey(), redis.Z{Score: float64(merged.Start), Member: merged.String()})
		pipe.HSet(ctx, r.metaKey(), field, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record skipped slot %d: %w", s.Slot, err)
	}
	return nil
}

func (r *SkippedSlotRepo) getMeta(ctx context.Context, field string) (slotMeta, bool, error) {
	var meta slotMeta
	raw, err := r.rdb.HGet(ctx, r.metaKey(), field).Result()
	if errors.Is(err, redis.Nil) {
		return meta, false, nil
	}
	if err != nil {
		return meta, false, fmt.Errorf("hget failed: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return meta, false, fmt.Errorf("invalid skipped slot metadata: %w", err)
	}
	return meta, true, nil
}

func (r *SkippedSlotRepo) ranges(ctx context.Context) ([]domain.SlotRange, error) {
	members, err := r.rdb.ZRange(ctx, r.rangesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	out := make([]domain.SlotRange, 0, len(members))
	for _, m := range members {
		rng, err := domain.ParseSlotRange(m)
		if err != nil {
			return nil, fmt.Errorf("invalid range in queue: %w", err)
		}
		out = append(out, rng)
	}
	return out, nil
}

// Pending expands queued ranges into slots, lowest first.
func (r *SkippedSlotRepo) Pending(ctx context.Context, limit int) ([]*domain.SkippedSlot, error) {
	ranges, err := r.ranges(ctx)
	if err != nil {
		return nil, err
	}

	var out []*domain.SkippedSlot
	for _, rng := range ranges {
		for s := rng.Start; ; s++ {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			rec := &domain.SkippedSlot{Slot: s, Status: domain.SkippedSlotPending}
			meta, ok, err := r.getMeta(ctx, slotField(s))
			if err != nil {
				return nil, err
			}
			if ok {
				rec.Reason = domain.SkipReason(meta.Reason)
				rec.Attempts = meta.Attempts
				rec.RunID = meta.RunID
				rec.CreatedAt = meta.CreatedAt
			}
			out = append(out, rec)
			if s == rng.End {
				break
			}
		}
	}
	return out, nil
}

// MarkResolved removes the slot from its range and remembers the outcome.
func (r *SkippedSlotRepo) MarkResolved(
	ctx context.Context,
	slot domain.Slot,
	status domain.SkippedSlotStatus,
) error {
	members, err := r.rdb.ZRevRangeByScore(ctx, r.rangesKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   slotField(slot),
		Count: 1,
	}).Result()
	if err != nil {
		return fmt.Errorf("zrevrangebyscore failed: %w", err)
	}

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(members) == 1 {
			rng, err := domain.ParseSlotRange(members[0])
			if err != nil {
				return fmt.Errorf("invalid range in queue: %w", err)
			}
			if rng.Contains(slot) {
				pipe.ZRem(ctx, r.rangesKey(), members[0])
				for _, rest := range rng.Without(slot) {
					pipe.ZAdd(ctx, r.rangesKey(), redis.Z{Score: float64(rest.Start), Member: rest.String()})
				}
			}
		}
		pipe.HDel(ctx, r.metaKey(), slotField(slot))
		pipe.HSet(ctx, r.resolvedKey(), slotField(slot), string(status))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to resolve skipped slot %d: %w", slot, err)
	}
	return nil
}

// CountPending sums the sizes of all queued ranges.
func (r *SkippedSlotRepo) CountPending(ctx context.Context) (int64, error) {
	ranges, err := r.ranges(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, rng := range ranges {
		n += int64(rng.Size())
	}
	return n, nil
}
