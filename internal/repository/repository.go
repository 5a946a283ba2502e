package repository

import (
	"context"
	"errors"

	"hypertoken/internal/models"
)

var (
	// ErrDuplicateKey is returned by InsertToken when the token index already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrStoreUnavailable wraps failures that leave the store unable to serve
	// any write: lost connections, timeouts, shutdowns.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRecordRejected wraps failures caused by one record's data, such as
	// text the backend cannot encode or a violated constraint.
	ErrRecordRejected = errors.New("record rejected")
)

// TokenRepository is the document store behind the token collections
// ("all_tokens", "start_px", "sync_state"). Lookups that find nothing return
// nil without an error.
type TokenRepository interface {
	ListTokens(ctx context.Context) ([]models.TokenRecord, error)
	GetTokenByIndex(ctx context.Context, tokenIndex int) (*models.TokenRecord, error)
	InsertToken(ctx context.Context, item *models.TokenRecord) error
	// UpsertToken replaces the stored record with the same TokenIndex, creating
	// it when absent, and returns the stored result.
	UpsertToken(ctx context.Context, item *models.TokenRecord) (*models.TokenRecord, error)
	// UpdateCurated writes the non-nil fields of patch onto the record with
	// tokenIndex and returns the result. Machine-derived columns and nil patch
	// fields are left untouched. A missing record returns nil.
	UpdateCurated(ctx context.Context, tokenIndex int, patch models.Curated) (*models.TokenRecord, error)

	ListStartPx(ctx context.Context) ([]models.StartPx, error)
	// InsertStartPx stores the entry unless one already exists for its index.
	// It reports whether a row was written.
	InsertStartPx(ctx context.Context, item *models.StartPx) (bool, error)

	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	// SaveSyncState upserts by scope. A nil LastSuccessAt keeps the stored
	// success time and stats.
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
}
