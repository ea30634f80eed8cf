package journal

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"gridmaker/internal/models"
)

// badgerJournal is the BadgerDB implementation of the Repository.
// Keys are "<kind>:<symbol>:<nanotime>" so a reverse prefix scan yields
// the newest entries first.
type badgerJournal struct {
	db *badger.DB
}

// NewBadgerJournal opens (or creates) a BadgerDB journal at dbPath.
func NewBadgerJournal(dbPath string) (Repository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logging is noisy; errors still surface from DB operations.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerJournal{db: db}, nil
}

func (j *badgerJournal) RecordFill(fill models.Fill) error {
	data, err := json.Marshal(fill)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("fill:%s:%020d", fill.Symbol, fill.Time.UnixNano())
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (j *badgerJournal) RecordPnL(symbol string, rec models.PnLRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("pnl:%s:%020d", symbol, rec.Time.UnixNano())
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

func (j *badgerJournal) RecentFills(symbol string, limit int) ([]models.Fill, error) {
	prefix := []byte(fmt.Sprintf("fill:%s:", symbol))
	var fills []models.Fill

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse iteration the seek key must sort after every key in
		// the prefix range, hence the 0xff sentinel.
		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(fills) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var f models.Fill
				if err := json.Unmarshal(val, &f); err != nil {
					return err
				}
				fills = append(fills, f)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fills, nil
}

func (j *badgerJournal) Close() error {
	return j.db.Close()
}
