package journal

import "gridmaker/internal/models"

// Repository records fills and PnL snapshots for display and post-run review.
// It abstracts the underlying storage mechanism (BadgerDB, in-memory) from
// the rest of the application. The journal is strictly write-mostly history;
// the engine never reads it back to make trading decisions.
type Repository interface {
	// RecordFill appends one fill to the journal.
	RecordFill(fill models.Fill) error

	// RecordPnL appends one PnL snapshot for the given symbol.
	RecordPnL(symbol string, rec models.PnLRecord) error

	// RecentFills returns up to limit most recent fills for the symbol,
	// newest first.
	RecentFills(symbol string, limit int) ([]models.Fill, error)

	// Close gracefully closes the underlying storage.
	Close() error
}
