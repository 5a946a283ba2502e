package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hypertoken/internal/cache"
	"hypertoken/internal/models"
	"hypertoken/internal/repository"
)

var (
	ErrTokenNotFound  = errors.New("token not found")
	ErrUnknownCurated = errors.New("unknown curated field")
)

// CurateToken writes the set fields of patch onto a stored token and drops the
// cached token list. Sync cycles keep these values from then on.
func CurateToken(ctx context.Context, repo repository.TokenRepository, c cache.Store, tokenIndex int, patch models.Curated) (*models.TokenRecord, error) {
	rec, err := repo.UpdateCurated(ctx, tokenIndex, patch)
	if err != nil {
		return nil, fmt.Errorf("token %d: %w", tokenIndex, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("token %d: %w", tokenIndex, ErrTokenNotFound)
	}
	if err := InvalidateTokenList(ctx, c); err != nil {
		return rec, fmt.Errorf("token %d updated, cache invalidation failed: %w", tokenIndex, err)
	}
	return rec, nil
}

// ParseCuratedAssignments builds a patch from "field=value" pairs keyed by the
// JSON field names (teamAllocation=10%, highlighted=true).
func ParseCuratedAssignments(pairs []string) (models.Curated, error) {
	var patch models.Curated
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok {
			return models.Curated{}, fmt.Errorf("%q: expected field=value", pair)
		}
		if err := setCurated(&patch, strings.TrimSpace(field), value); err != nil {
			return models.Curated{}, err
		}
	}
	return patch, nil
}

func setCurated(patch *models.Curated, field, value string) error {
	strFields := map[string]**string{
		"teamAllocation":     &patch.TeamAllocation,
		"airdrop1":           &patch.Airdrop1,
		"airdrop2":           &patch.Airdrop2,
		"twitter":            &patch.Twitter,
		"telegram":           &patch.Telegram,
		"discord":            &patch.Discord,
		"website":            &patch.Website,
		"comment":            &patch.Comment,
		"projectDescription": &patch.ProjectDescription,
		"personalComment":    &patch.PersonalComment,
	}
	if dst, ok := strFields[field]; ok {
		*dst = strPtr(value)
		return nil
	}

	boolFields := map[string]**bool{
		"devReputation":       &patch.DevReputation,
		"spreadLessThanThree": &patch.SpreadLessThanThree,
		"thickObLiquidity":    &patch.ThickObLiquidity,
		"noSellPressure":      &patch.NoSellPressure,
		"highlighted":         &patch.Highlighted,
	}
	if dst, ok := boolFields[field]; ok {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		*dst = &v
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCurated, field)
}
