// Package decoder turns fetched blocks into block and transaction summaries.
package decoder

import (
	"encoding/json"
	"sort"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vietddude/solwatch/internal/core/domain"
)

// Decode summarizes block, fetched at slot.
// Unrecognized encodings never fail the block: they yield a placeholder
// signature or no program ids.
func Decode(slot domain.Slot, block *rpc.GetBlockResult) domain.DecodedBlock {
	out := domain.DecodedBlock{
		Summary: domain.BlockSummary{
			Slot:       slot,
			ParentSlot: domain.Slot(block.ParentSlot),
			Blockhash:  block.Blockhash.String(),
			TxCount:    len(block.Transactions),
		},
		Transactions: make([]domain.DecodedTransaction, 0, len(block.Transactions)),
	}
	if block.BlockTime != nil {
		t := int64(*block.BlockTime)
		out.Summary.BlockTime = &t
	}

	for i, tx := range block.Transactions {
		decoded := DecodeTransaction(slot, i, tx)
		if decoded.Summary.IsError {
			out.Summary.ErrCount++
		}
		out.Transactions = append(out.Transactions, decoded)
	}
	return out
}

// DecodeTransaction summarizes the transaction at position index of slot.
func DecodeTransaction(slot domain.Slot, index int, tx rpc.TransactionWithMeta) domain.DecodedTransaction {
	msg := decodeMessage(tx.Transaction)

	sig := msg.signature
	if sig == "" {
		sig = domain.FallbackSignature(slot, index)
	}

	summary := domain.TransactionSummary{
		Signature: sig,
		Slot:      slot,
	}
	if meta := tx.Meta; meta != nil {
		fee := meta.Fee
		summary.FeeLamports = &fee
		if meta.ComputeUnitsConsumed != nil {
			cu := *meta.ComputeUnitsConsumed
			summary.ComputeUnits = &cu
		}
		if meta.Err != nil {
			summary.IsError = true
			summary.FirstError = errorJSON(meta.Err)
		}
	}

	return domain.DecodedTransaction{
		Summary:    summary,
		ProgramIDs: msg.programIDs(tx.Meta),
	}
}

// message is the part of a transaction the summaries need, whatever its encoding.
type message struct {
	signature string
	keys      []solanago.PublicKey
	invokes   []invoke
}

// invoke is a top-level instruction: either a resolved program or an account index.
type invoke struct {
	program *solanago.PublicKey
	index   int
}

// decodeMessage accepts binary transactions, raw JSON messages and jsonParsed
// messages. Anything else yields an empty message.
func decodeMessage(data *rpc.DataBytesOrJSON) message {
	if data == nil {
		return message{}
	}
	if raw := data.GetRawJSON(); len(raw) > 0 {
		return decodeJSON(raw)
	}

	wrapped := rpc.TransactionWithMeta{Transaction: data}
	tx, err := wrapped.GetTransaction()
	if err != nil {
		return message{}
	}
	return fromTransaction(tx)
}

func fromTransaction(tx *solanago.Transaction) message {
	var m message
	if len(tx.Signatures) > 0 {
		m.signature = tx.Signatures[0].String()
	}
	m.keys = tx.Message.AccountKeys
	for _, in := range tx.Message.Instructions {
		m.invokes = append(m.invokes, invoke{index: int(in.ProgramIDIndex)})
	}
	return m
}

// parsedTransaction covers jsonParsed messages. Their account keys are objects
// and their instruction list mixes compiled instructions (programIdIndex with
// numeric accounts) with parsed ones (programId), which neither
// solanago.Transaction nor rpc.ParsedTransaction decode.
type parsedTransaction struct {
	Signatures []solanago.Signature `json:"signatures"`
	Message    struct {
		AccountKeys []struct {
			Pubkey solanago.PublicKey `json:"pubkey"`
		} `json:"accountKeys"`
		Instructions []struct {
			ProgramID      *solanago.PublicKey `json:"programId"`
			ProgramIDIndex *uint16             `json:"programIdIndex"`
		} `json:"instructions"`
	} `json:"message"`
}

func decodeJSON(raw json.RawMessage) message {
	var tx solanago.Transaction
	if err := json.Unmarshal(raw, &tx); err == nil {
		return fromTransaction(&tx)
	}

	var parsed parsedTransaction
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return message{}
	}
	var m message
	if len(parsed.Signatures) > 0 {
		m.signature = parsed.Signatures[0].String()
	}
	for _, k := range parsed.Message.AccountKeys {
		m.keys = append(m.keys, k.Pubkey)
	}
	for _, in := range parsed.Message.Instructions {
		switch {
		case in.ProgramID != nil:
			m.invokes = append(m.invokes, invoke{program: in.ProgramID})
		case in.ProgramIDIndex != nil:
			m.invokes = append(m.invokes, invoke{index: int(*in.ProgramIDIndex)})
		}
	}
	return m
}

// programIDs returns the distinct programs invoked by the top-level instructions, sorted.
func (m message) programIDs(meta *rpc.TransactionMeta) []string {
	var ids []string
	for _, in := range m.invokes {
		if in.program != nil {
			ids = append(ids, in.program.String())
			continue
		}
		if key, ok := m.resolve(meta, in.index); ok {
			ids = append(ids, key.String())
		}
	}
	return dedupSorted(ids)
}

// resolve maps an account index to a key. Indexes past the static keys
// continue into lookup-table addresses, writable first.
func (m message) resolve(meta *rpc.TransactionMeta, idx int) (solanago.PublicKey, bool) {
	if idx < 0 {
		return solanago.PublicKey{}, false
	}
	if idx < len(m.keys) {
		return m.keys[idx], true
	}
	if meta == nil {
		return solanago.PublicKey{}, false
	}
	rest := idx - len(m.keys)
	loaded := meta.LoadedAddresses
	if rest < len(loaded.Writable) {
		return loaded.Writable[rest], true
	}
	rest -= len(loaded.Writable)
	if rest < len(loaded.ReadOnly) {
		return loaded.ReadOnly[rest], true
	}
	return solanago.PublicKey{}, false
}

// errorJSON renders a transaction error compactly. Errors that cannot be
// re-encoded are reported as absent.
func errorJSON(v any) *string {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func dedupSorted(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
