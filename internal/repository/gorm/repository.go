package gormrepository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"hypertoken/internal/db"
	"hypertoken/internal/models"
	"hypertoken/internal/repository"
)

type Store struct {
	db *gorm.DB
}

var _ repository.TokenRepository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// tokenColumns are rewritten on upsert. id and created_at survive.
var tokenColumns = []string{
	"spot_index",
	"name",
	"token_id",
	"start_px",
	"mark_px",
	"launch_date",
	"auction_price",
	"launch_circ_supply",
	"launch_market_cap",
	"team_allocation",
	"airdrop1",
	"airdrop2",
	"dev_reputation",
	"spread_less_than_three",
	"thick_ob_liquidity",
	"no_sell_pressure",
	"twitter",
	"telegram",
	"discord",
	"website",
	"comment",
	"project_description",
	"personal_comment",
	"highlighted",
	"raw_details",
	"last_updated",
}

func (s *Store) ListTokens(ctx context.Context) ([]models.TokenRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TokenRecord
	if err := s.db.WithContext(ctx).Order("token_index asc").Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) GetTokenByIndex(ctx context.Context, tokenIndex int) (*models.TokenRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TokenRecord
	err := s.db.WithContext(ctx).First(&item, "token_index = ?", tokenIndex).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &item, nil
}

func (s *Store) InsertToken(ctx context.Context, item *models.TokenRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return wrapErr(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) UpsertToken(ctx context.Context, item *models.TokenRecord) (*models.TokenRecord, error) {
	if s == nil || s.db == nil || item == nil {
		return nil, nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_index"}},
		DoUpdates: clause.AssignmentColumns(tokenColumns),
	}).Create(item).Error
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.GetTokenByIndex(ctx, item.TokenIndex)
}

func (s *Store) UpdateCurated(ctx context.Context, tokenIndex int, patch models.Curated) (*models.TokenRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	updates := curatedUpdates(patch)
	if len(updates) == 0 {
		return s.GetTokenByIndex(ctx, tokenIndex)
	}
	res := s.db.WithContext(ctx).
		Model(&models.TokenRecord{}).
		Where("token_index = ?", tokenIndex).
		Updates(updates)
	if res.Error != nil {
		return nil, wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return s.GetTokenByIndex(ctx, tokenIndex)
}

// curatedUpdates maps the set fields of patch to their columns.
func curatedUpdates(patch models.Curated) map[string]any {
	out := map[string]any{}
	setStr := func(col string, v *string) {
		if v != nil {
			out[col] = *v
		}
	}
	setBool := func(col string, v *bool) {
		if v != nil {
			out[col] = *v
		}
	}
	setStr("team_allocation", patch.TeamAllocation)
	setStr("airdrop1", patch.Airdrop1)
	setStr("airdrop2", patch.Airdrop2)
	setBool("dev_reputation", patch.DevReputation)
	setBool("spread_less_than_three", patch.SpreadLessThanThree)
	setBool("thick_ob_liquidity", patch.ThickObLiquidity)
	setBool("no_sell_pressure", patch.NoSellPressure)
	setStr("twitter", patch.Twitter)
	setStr("telegram", patch.Telegram)
	setStr("discord", patch.Discord)
	setStr("website", patch.Website)
	setStr("comment", patch.Comment)
	setStr("project_description", patch.ProjectDescription)
	setStr("personal_comment", patch.PersonalComment)
	setBool("highlighted", patch.Highlighted)
	return out
}

func (s *Store) ListStartPx(ctx context.Context) ([]models.StartPx, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StartPx
	if err := s.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "index"}}).Find(&items).Error; err != nil {
		return nil, wrapErr(err)
	}
	return items, nil
}

func (s *Store) InsertStartPx(ctx context.Context, item *models.StartPx) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "index"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return &state, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	columns := []string{"last_attempt_at", "last_error"}
	if state.LastSuccessAt != nil {
		columns = append(columns, "last_success_at", "stats_json")
	}
	return wrapErr(s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(state).Error)
}

func (s *Store) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var states []models.SyncState
	if err := s.db.WithContext(ctx).Order("scope asc").Find(&states).Error; err != nil {
		return nil, wrapErr(err)
	}
	return states, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", repository.ErrDuplicateKey, err)
	}
	if db.IsUnavailable(err) {
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %w", repository.ErrRecordRejected, err)
}
