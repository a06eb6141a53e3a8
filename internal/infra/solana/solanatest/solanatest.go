// Package solanatest builds getBlock payloads for tests.
//
// Transactions are real legacy messages serialized with solana-go and shipped
// base64 encoded, so they travel through the same decoding path as node output.
package solanatest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Program derives a stable public key from name.
func Program(name string) solanago.PublicKey {
	return solanago.PublicKeyFromBytes(digest("program/" + name))
}

// Signature derives a stable transaction signature from tag and slot.
func Signature(tag string, slot uint64) solanago.Signature {
	var sig solanago.Signature
	first := digest(fmt.Sprintf("sig/%s/%d", tag, slot))
	second := digest(fmt.Sprintf("sig2/%s/%d", tag, slot))
	copy(sig[:32], first)
	copy(sig[32:], second)
	return sig
}

// Blockhash derives a stable blockhash for slot.
func Blockhash(slot uint64) solanago.Hash {
	var h solanago.Hash
	binary.BigEndian.PutUint64(h[:8], slot+1)
	return h
}

func digest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// Tx describes one transaction of a test block.
type Tx struct {
	Signature solanago.Signature
	Invokes   []solanago.PublicKey // top-level instruction programs, in order; repeats allowed
	Err       any                  // execution error object, nil on success
	Fee       uint64
	Units     *uint64 // computeUnitsConsumed
	NoMeta    bool
}

// payer is the fee payer and only signer of every test transaction.
var payer = Program("payer")

// Encode serializes tx as a getBlock transaction entry.
func Encode(tx Tx) (map[string]any, error) {
	keys := solanago.PublicKeySlice{payer}
	index := map[solanago.PublicKey]uint16{}
	instructions := make([]solanago.CompiledInstruction, 0, len(tx.Invokes))
	for _, program := range tx.Invokes {
		idx, ok := index[program]
		if !ok {
			idx = uint16(len(keys))
			index[program] = idx
			keys = append(keys, program)
		}
		instructions = append(instructions, solanago.CompiledInstruction{
			ProgramIDIndex: idx,
			Accounts:       []uint16{0},
		})
	}

	wire := solanago.Transaction{
		Signatures: []solanago.Signature{tx.Signature},
		Message: solanago.Message{
			Header: solanago.MessageHeader{
				NumRequiredSignatures:       1,
				NumReadonlyUnsignedAccounts: uint8(len(keys) - 1),
			},
			AccountKeys:     keys,
			RecentBlockhash: Blockhash(0),
			Instructions:    instructions,
		},
	}
	raw, err := wire.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}

	entry := map[string]any{
		"transaction": []string{base64.StdEncoding.EncodeToString(raw), "base64"},
		"meta":        nil,
	}
	if !tx.NoMeta {
		meta := map[string]any{
			"err":             tx.Err,
			"fee":             tx.Fee,
			"preBalances":     []uint64{},
			"postBalances":    []uint64{},
			"loadedAddresses": map[string]any{"writable": []string{}, "readonly": []string{}},
		}
		if tx.Units != nil {
			meta["computeUnitsConsumed"] = *tx.Units
		}
		entry["meta"] = meta
	}
	return entry, nil
}

// BlockJSON builds a getBlock result for slot with the given transactions.
func BlockJSON(slot uint64, txs ...Tx) (map[string]any, error) {
	entries := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		entry, err := Encode(tx)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	var parent uint64
	if slot > 0 {
		parent = slot - 1
	}
	return map[string]any{
		"parentSlot":        parent,
		"blockhash":         Blockhash(slot).String(),
		"previousBlockhash": Blockhash(parent).String(),
		"blockTime":         1700000000 + int64(slot),
		"blockHeight":       slot,
		"transactions":      entries,
	}, nil
}

// Block builds the decoded form of BlockJSON, as rpc.Client would return it.
func Block(slot uint64, txs ...Tx) (*rpc.GetBlockResult, error) {
	payload, err := BlockJSON(slot, txs...)
	if err != nil {
		return nil, err
	}
	return Decode(payload)
}

// Decode round-trips v through JSON into a getBlock result.
func Decode(v any) (*rpc.GetBlockResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out rpc.GetBlockResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return &out, nil
}

// Units returns a pointer to n.
func Units(n uint64) *uint64 { return &n }
