package decoder

import (
	"sort"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/solwatch/internal/core/domain"
	"github.com/vietddude/solwatch/internal/infra/solana/solanatest"
)

var (
	payer = solanatest.Program("payer").String()
	progA = solanatest.Program("ProgA")
	progB = solanatest.Program("ProgB")
)

func programs(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, solanatest.Program(n).String())
	}
	sort.Strings(out)
	return out
}

// mixedBlock holds one transaction per supported shape plus one undecodable entry.
func mixedBlock(t *testing.T) *rpc.GetBlockResult {
	t.Helper()
	binaryTx, err := solanatest.Encode(solanatest.Tx{
		Signature: solanatest.Signature("raw", 42),
		Invokes:   []solanago.PublicKey{progB, progA, progB},
		Fee:       5000,
		Units:     solanatest.Units(300),
	})
	require.NoError(t, err)

	payload, err := solanatest.BlockJSON(42)
	require.NoError(t, err)
	payload["transactions"] = []any{
		binaryTx,
		map[string]any{
			"transaction": map[string]any{
				"signatures": []string{solanatest.Signature("parsed", 42).String()},
				"message": map[string]any{
					"accountKeys": []map[string]any{
						{"pubkey": payer, "writable": true, "signer": true},
						{"pubkey": solanatest.Program("ProgC").String(), "writable": false, "signer": false},
					},
					"instructions": []map[string]any{
						{"programIdIndex": 1, "accounts": []int{0}, "data": ""},
						{"programId": solanatest.Program("ProgD").String(), "accounts": []string{payer}, "data": "x"},
						{"programId": solanatest.Program("ProgE").String(), "program": "spl-token", "parsed": map[string]any{"type": "transfer"}},
						{"unexpected": true},
					},
				},
			},
			"meta": map[string]any{"err": map[string]any{"InstructionError": []any{0, "InvalidArgument"}}, "fee": 10000},
		},
		map[string]any{
			"transaction": []string{"AQID", "base64"},
			"meta":        map[string]any{"err": nil, "fee": 5000},
		},
		map[string]any{
			"transaction": map[string]any{
				"signatures":  []string{solanatest.Signature("accounts", 42).String()},
				"accountKeys": []map[string]any{{"pubkey": payer}},
			},
			"meta": nil,
		},
	}
	block, err := solanatest.Decode(payload)
	require.NoError(t, err)
	return block
}

func TestDecode_BlockSummary(t *testing.T) {
	decoded := Decode(42, mixedBlock(t))

	assert.Equal(t, domain.Slot(42), decoded.Summary.Slot)
	assert.Equal(t, domain.Slot(41), decoded.Summary.ParentSlot)
	assert.Equal(t, solanatest.Blockhash(42).String(), decoded.Summary.Blockhash)
	require.NotNil(t, decoded.Summary.BlockTime)
	assert.Equal(t, int64(1700000042), *decoded.Summary.BlockTime)
	assert.Equal(t, 4, decoded.Summary.TxCount)
	assert.Equal(t, 1, decoded.Summary.ErrCount)
	require.Len(t, decoded.Transactions, 4)
}

func TestDecode_BinaryTransactionDedupAndOrder(t *testing.T) {
	decoded := Decode(42, mixedBlock(t))
	tx := decoded.Transactions[0]

	assert.Equal(t, solanatest.Signature("raw", 42).String(), tx.Summary.Signature)
	assert.False(t, tx.Summary.IsError)
	assert.Nil(t, tx.Summary.FirstError)
	require.NotNil(t, tx.Summary.FeeLamports)
	assert.Equal(t, uint64(5000), *tx.Summary.FeeLamports)
	require.NotNil(t, tx.Summary.ComputeUnits)
	assert.Equal(t, uint64(300), *tx.Summary.ComputeUnits)

	// ProgB, ProgA, ProgB collapses to the two distinct ids, sorted
	assert.Equal(t, programs("ProgA", "ProgB"), tx.ProgramIDs)
}

func TestDecode_ParsedMessageVariants(t *testing.T) {
	decoded := Decode(42, mixedBlock(t))
	tx := decoded.Transactions[1]

	assert.Equal(t, solanatest.Signature("parsed", 42).String(), tx.Summary.Signature)
	assert.True(t, tx.Summary.IsError)
	require.NotNil(t, tx.Summary.FirstError)
	assert.Equal(t, `{"InstructionError":[0,"InvalidArgument"]}`, *tx.Summary.FirstError)
	assert.Nil(t, tx.Summary.ComputeUnits, "compute units absent from metadata")
	assert.Equal(t, programs("ProgC", "ProgD", "ProgE"), tx.ProgramIDs)
}

func TestDecode_UndecodableBinaryFallsBack(t *testing.T) {
	decoded := Decode(42, mixedBlock(t))
	tx := decoded.Transactions[2]

	assert.Equal(t, "missing-signature-42-2", tx.Summary.Signature)
	assert.Empty(t, tx.ProgramIDs)
	require.NotNil(t, tx.Summary.FeeLamports)
}

func TestDecode_AccountsShapeWithoutMeta(t *testing.T) {
	decoded := Decode(42, mixedBlock(t))
	tx := decoded.Transactions[3]

	assert.Equal(t, solanatest.Signature("accounts", 42).String(), tx.Summary.Signature)
	assert.False(t, tx.Summary.IsError)
	assert.Nil(t, tx.Summary.FeeLamports)
	assert.Nil(t, tx.Summary.ComputeUnits)
	assert.Empty(t, tx.ProgramIDs)
}

func TestDecodeTransaction_PlaceholderAtIndex(t *testing.T) {
	tests := []struct {
		name string
		tx   rpc.TransactionWithMeta
	}{
		{"nil transaction", rpc.TransactionWithMeta{}},
		{"no signatures", decodeEntry(t, map[string]any{"transaction": map[string]any{"weird": 1}, "meta": nil})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded := DecodeTransaction(42, 3, tt.tx)
			assert.Equal(t, "missing-signature-42-3", decoded.Summary.Signature)
			assert.Empty(t, decoded.ProgramIDs)
		})
	}
}

func decodeEntry(t *testing.T, entry map[string]any) rpc.TransactionWithMeta {
	t.Helper()
	block, err := solanatest.Decode(map[string]any{"parentSlot": 1, "transactions": []any{entry}})
	require.NoError(t, err)
	require.Len(t, block.Transactions, 1)
	return block.Transactions[0]
}

func TestDecodeTransaction_LookupTableAddresses(t *testing.T) {
	tx := decodeEntry(t, map[string]any{
		"transaction": map[string]any{
			"signatures": []string{solanatest.Signature("v0", 9).String()},
			"message": map[string]any{
				"header":          map[string]any{"numRequiredSignatures": 1},
				"accountKeys":     []string{payer, solanatest.Program("ProgStatic").String()},
				"recentBlockhash": solanatest.Blockhash(8).String(),
				"instructions": []map[string]any{
					{"programIdIndex": 1, "accounts": []int{}, "data": ""},
					{"programIdIndex": 3, "accounts": []int{}, "data": ""},
					{"programIdIndex": 9, "accounts": []int{}, "data": ""},
				},
			},
		},
		"meta": map[string]any{
			"err": nil,
			"fee": 5000,
			"loadedAddresses": map[string]any{
				"writable": []string{solanatest.Program("W0").String()},
				"readonly": []string{solanatest.Program("ProgLoaded").String()},
			},
		},
		"version": 0,
	})

	// index 3 is past 2 static keys and 1 writable: first readonly; index 9 resolves nowhere
	decoded := DecodeTransaction(9, 0, tx)
	assert.Equal(t, programs("ProgLoaded", "ProgStatic"), decoded.ProgramIDs)
}

func TestDecode_EmptyBlock(t *testing.T) {
	block, err := solanatest.Decode(map[string]any{
		"parentSlot":   6,
		"blockhash":    solanatest.Blockhash(7).String(),
		"blockTime":    nil,
		"transactions": []any{},
	})
	require.NoError(t, err)

	decoded := Decode(7, block)
	assert.Equal(t, 0, decoded.Summary.TxCount)
	assert.Equal(t, 0, decoded.Summary.ErrCount)
	assert.Nil(t, decoded.Summary.BlockTime)
	assert.Empty(t, decoded.Transactions)
}
