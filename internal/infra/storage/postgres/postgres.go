package postgres

import "github.com/vietddude/solwatch/internal/infra/storage"

// NewSink bundles the write-side repositories used by the indexing loop.
func NewSink(db *DB) storage.Sink {
	return storage.Sink{
		Blocks:       NewBlockRepo(db),
		Transactions: NewTxRepo(db),
		Programs:     NewProgramRepo(db),
	}
}
