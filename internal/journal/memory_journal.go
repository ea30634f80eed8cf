package journal

import (
	"sync"

	"gridmaker/internal/models"
)

// memoryJournal keeps records in process memory. It is used when no journal
// path is configured and in tests.
type memoryJournal struct {
	mu    sync.Mutex
	fills map[string][]models.Fill
	pnls  map[string][]models.PnLRecord
}

// NewMemoryJournal returns an in-memory Repository.
func NewMemoryJournal() Repository {
	return &memoryJournal{
		fills: make(map[string][]models.Fill),
		pnls:  make(map[string][]models.PnLRecord),
	}
}

func (j *memoryJournal) RecordFill(fill models.Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fills[fill.Symbol] = append(j.fills[fill.Symbol], fill)
	return nil
}

func (j *memoryJournal) RecordPnL(symbol string, rec models.PnLRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pnls[symbol] = append(j.pnls[symbol], rec)
	return nil
}

func (j *memoryJournal) RecentFills(symbol string, limit int) ([]models.Fill, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	all := j.fills[symbol]
	n := len(all)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.Fill, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (j *memoryJournal) Close() error { return nil }
