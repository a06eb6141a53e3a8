package solana

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/vietddude/solwatch/internal/core/domain"
)

const geyserSubscribeMethod = "/geyser.Geyser/Subscribe"

var geyserSubscribeDesc = grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// GeyserConfig configures slot burst reads over a Yellowstone Geyser gRPC stream.
type GeyserConfig struct {
	Endpoint   string // host:port; an https:// prefix or :443 port selects TLS
	Token      string // sent as x-token metadata when set
	Commitment domain.Commitment
	BurstSize  int
	Timeout    time.Duration
}

// GeyserClient opens short-lived Geyser Subscribe streams filtered to slot updates.
//
// Requests and updates are encoded by hand with protowire: only the slot filter
// of SubscribeRequest and the slot field of SubscribeUpdate are used, so no
// generated stubs are needed.
type GeyserClient struct {
	cfg  GeyserConfig
	opts []grpc.DialOption
}

// NewGeyserClient creates a Geyser slot burst reader. Extra dial options are
// appended after the transport credentials.
func NewGeyserClient(cfg GeyserConfig, opts ...grpc.DialOption) *GeyserClient {
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Commitment == "" {
		cfg.Commitment = domain.CommitmentFinalized
	}
	return &GeyserClient{cfg: cfg, opts: opts}
}

func (c *GeyserClient) dialTarget() (string, []grpc.DialOption) {
	target := c.cfg.Endpoint
	var opts []grpc.DialOption
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}
	return target, append(opts, c.opts...)
}

// CollectSlotBurst subscribes to slot updates, reads up to BurstSize of them
// (fewer if the server ends the stream) and closes the stream.
func (c *GeyserClient) CollectSlotBurst(ctx context.Context) (SlotBurst, error) {
	var burst SlotBurst

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	target, opts := c.dialTarget()
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return burst, fmt.Errorf("geyser connect: %w", err)
	}
	defer conn.Close()

	if c.cfg.Token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "x-token", c.cfg.Token)
	}

	stream, err := conn.NewStream(ctx, &geyserSubscribeDesc, geyserSubscribeMethod, grpc.ForceCodec(geyserCodec{}))
	if err != nil {
		return burst, fmt.Errorf("geyser subscribe: %w", err)
	}

	req := &slotSubscribeRequest{Filter: "solwatch", Commitment: geyserCommitment(c.cfg.Commitment)}
	// io.EOF means the server already closed the stream; RecvMsg reports its status
	if err := stream.SendMsg(req); err != nil && !errors.Is(err, io.EOF) {
		return burst, fmt.Errorf("geyser subscribe: %w", err)
	}

	for burst.Events < c.cfg.BurstSize {
		var update subscribeUpdate
		if err := stream.RecvMsg(&update); err != nil {
			if errors.Is(err, io.EOF) {
				return burst, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return burst, fmt.Errorf("geyser read: %w", ctxErr)
			}
			return burst, fmt.Errorf("geyser read: %w", err)
		}
		if update.Slot == nil {
			// pings and other update kinds
			continue
		}
		burst.add(domain.Slot(*update.Slot))
	}

	if err := stream.CloseSend(); err != nil {
		return burst, fmt.Errorf("geyser shutdown: %w", err)
	}
	return burst, nil
}

// Geyser CommitmentLevel enum values.
const (
	geyserProcessed int32 = 0
	geyserConfirmed int32 = 1
	geyserFinalized int32 = 2
)

func geyserCommitment(c domain.Commitment) int32 {
	switch c {
	case domain.CommitmentProcessed:
		return geyserProcessed
	case domain.CommitmentConfirmed:
		return geyserConfirmed
	default:
		return geyserFinalized
	}
}

// slotSubscribeRequest is a SubscribeRequest carrying a single slots filter.
type slotSubscribeRequest struct {
	Filter     string
	Commitment int32
}

// SubscribeRequest field numbers.
const (
	requestSlotsField      protowire.Number = 2
	requestCommitmentField protowire.Number = 8
	slotsFilterByCommit    protowire.Number = 1
)

func (r *slotSubscribeRequest) marshal() []byte {
	var filter []byte
	filter = protowire.AppendTag(filter, slotsFilterByCommit, protowire.VarintType)
	filter = protowire.AppendVarint(filter, protowire.EncodeBool(true))

	// map<string, SubscribeRequestFilterSlots> entry
	var entry []byte
	entry = protowire.AppendTag(entry, 1, protowire.BytesType)
	entry = protowire.AppendString(entry, r.Filter)
	entry = protowire.AppendTag(entry, 2, protowire.BytesType)
	entry = protowire.AppendBytes(entry, filter)

	var b []byte
	b = protowire.AppendTag(b, requestSlotsField, protowire.BytesType)
	b = protowire.AppendBytes(b, entry)
	b = protowire.AppendTag(b, requestCommitmentField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Commitment))
	return b
}

// subscribeUpdate keeps the slot number of a SubscribeUpdate; other update kinds leave it nil.
type subscribeUpdate struct {
	Slot *uint64
}

// SubscribeUpdate field numbers.
const (
	updateSlotField protowire.Number = 4
	slotUpdateSlot  protowire.Number = 1
)

func (u *subscribeUpdate) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != updateSlotField || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		inner, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		var slot uint64
		err := walkFields(inner, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
			if num == slotUpdateSlot && typ == protowire.VarintType {
				v, m := protowire.ConsumeVarint(b)
				slot = v
				return m, nil
			}
			return protowire.ConsumeFieldValue(num, typ, b), nil
		})
		if err != nil {
			return n, err
		}
		u.Slot = &slot
		return n, nil
	})
}

// walkFields calls fn for every field of a protobuf message. fn returns the
// length of the field value it consumed.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

// geyserCodec encodes the two Geyser messages this package exchanges.
type geyserCodec struct{}

func (geyserCodec) Name() string { return "proto" }

func (geyserCodec) Marshal(v any) ([]byte, error) {
	if req, ok := v.(*slotSubscribeRequest); ok {
		return req.marshal(), nil
	}
	return nil, fmt.Errorf("geyser codec: cannot marshal %T", v)
}

func (geyserCodec) Unmarshal(data []byte, v any) error {
	if update, ok := v.(*subscribeUpdate); ok {
		return update.unmarshal(data)
	}
	return fmt.Errorf("geyser codec: cannot unmarshal into %T", v)
}
