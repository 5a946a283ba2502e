package service

import (
	"context"
	"fmt"

	"hypertoken/internal/models"
	"hypertoken/internal/repository"
)

// SeedStartPx writes reference start prices that are not stored yet. Existing
// entries are never changed. It returns how many rows were written.
func SeedStartPx(ctx context.Context, repo repository.TokenRepository, entries []models.StartPx) (int, error) {
	written := 0
	for i := range entries {
		if _, err := parseDecimal("startPx", entries[i].StartPx); err != nil {
			return written, fmt.Errorf("index %d: %w", entries[i].Index, err)
		}
		ok, err := repo.InsertStartPx(ctx, &entries[i])
		if err != nil {
			return written, fmt.Errorf("index %d: %w", entries[i].Index, err)
		}
		if ok {
			written++
		}
	}
	return written, nil
}
