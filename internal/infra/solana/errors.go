package solana

import (
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Node error codes for missing blocks.
const (
	CodeBlockNotAvailable           = -32004
	CodeSlotSkipped                 = -32007
	CodeSlotSkippedOrMissingInStore = -32009
)

const blockNotAvailableMessage = "Block not available for slot"

// IsBlockNotAvailable reports whether err means "not produced yet, try again".
// Falls back to matching the node's message text for errors that lost their code.
func IsBlockNotAvailable(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Code == CodeBlockNotAvailable {
		return true
	}
	return strings.Contains(err.Error(), blockNotAvailableMessage)
}

// IsSlotSkipped reports whether err means the slot will never have a block.
// A null getBlock result surfaces from rpc.Client as rpc.ErrNotConfirmed.
func IsSlotSkipped(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotConfirmed) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) &&
		(rpcErr.Code == CodeSlotSkipped || rpcErr.Code == CodeSlotSkippedOrMissingInStore)
}

// ErrorType buckets an error for metrics labels.
func ErrorType(err error) string {
	var rpcErr *jsonrpc.RPCError
	switch {
	case err == nil:
		return "none"
	case IsBlockNotAvailable(err):
		return "block_not_available"
	case IsSlotSkipped(err):
		return "slot_skipped"
	case errors.As(err, &rpcErr):
		return "rpc"
	case strings.Contains(err.Error(), "429"):
		return "rate_limited"
	case strings.Contains(err.Error(), "context"):
		return "canceled"
	default:
		return "transport"
	}
}
