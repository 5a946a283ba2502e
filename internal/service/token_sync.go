package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"hypertoken/internal/cache"
	"hypertoken/internal/client/hyperliquid"
	"hypertoken/internal/client/hypurrscan"
	"hypertoken/internal/models"
	"hypertoken/internal/repository"
)

const (
	// SyncScopeTokens is the sync_state scope written by every cycle.
	SyncScopeTokens = "tokens"

	// TokenListCacheKey prefixes the serialized token list served over HTTP.
	TokenListCacheKey = "tokens:list"
)

// TokenSource is the upstream token universe.
type TokenSource interface {
	ListTokens(ctx context.Context) ([]hyperliquid.SpotToken, error)
	TokenDetails(ctx context.Context, tokenID string) (*hyperliquid.TokenDetails, error)
}

// DeploySource is the optional deploy auction listing.
type DeploySource interface {
	Enabled() bool
	PastAuctions(ctx context.Context) ([]hypurrscan.DeployAuction, error)
}

type TokenSyncService struct {
	Store   repository.TokenRepository
	Source  TokenSource
	Deploys DeploySource
	Cache   cache.Store
	Logger  *zap.Logger
	Clock   clockwork.Clock
}

type CycleResult struct {
	Listed     int       `json:"listed"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Failed     int       `json:"failed"`
	Deploys    int       `json:"deploys"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunCycle reconciles every listed token into the store.
//
// Stored tokens and start prices are read once up front and used as the merge
// base for the whole cycle, so curated edits made while the cycle runs are not
// seen until the next one. Tokens are processed one at a time. A token whose
// details cannot be fetched is logged and skipped; a store failure or a failed
// listing aborts the cycle, keeping the tokens already written.
func (s *TokenSyncService) RunCycle(ctx context.Context) (CycleResult, error) {
	if s.Store == nil || s.Source == nil {
		return CycleResult{}, fmt.Errorf("token sync is not configured")
	}
	started := s.now()
	result := CycleResult{StartedAt: started}

	prior, startPx, err := s.loadSnapshot(ctx)
	if err != nil {
		return s.fail(ctx, result, err)
	}

	listed, deploys, err := s.fetchUpstream(ctx)
	if err != nil {
		return s.fail(ctx, result, err)
	}
	result.Listed = len(listed)
	result.Deploys = deploys

	for _, token := range listed {
		inserted, err := s.syncToken(ctx, token, prior[token.Index], startPx[token.Index], started)
		if err == nil {
			if inserted {
				result.Inserted++
			} else {
				result.Updated++
			}
			continue
		}
		if ctx.Err() != nil {
			return s.fail(ctx, result, ctx.Err())
		}
		if errors.Is(err, repository.ErrStoreUnavailable) {
			return s.fail(ctx, result, fmt.Errorf("token %s (%d): %w", token.Name, token.Index, err))
		}
		result.Failed++
		s.logger().Warn("token sync skipped",
			zap.String("token", token.Name),
			zap.Int("index", token.Index),
			zap.Error(err),
		)
	}

	result.FinishedAt = s.now()
	s.invalidateTokenList(ctx, result)
	s.recordSuccess(ctx, result)
	s.logger().Info("token sync cycle finished",
		zap.Int("listed", result.Listed),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("failed", result.Failed),
		zap.Int("deploys", result.Deploys),
		zap.Duration("took", result.FinishedAt.Sub(result.StartedAt)),
	)
	return result, nil
}

func (s *TokenSyncService) loadSnapshot(ctx context.Context) (map[int]*models.TokenRecord, map[int]string, error) {
	tokens, err := s.Store.ListTokens(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load tokens: %w", err)
	}
	refs, err := s.Store.ListStartPx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load start prices: %w", err)
	}

	prior := make(map[int]*models.TokenRecord, len(tokens))
	for i := range tokens {
		prior[tokens[i].TokenIndex] = &tokens[i]
	}
	startPx := make(map[int]string, len(refs))
	for _, ref := range refs {
		startPx[ref.Index] = ref.StartPx
	}
	return prior, startPx, nil
}

// fetchUpstream lists tokens and, when configured, the deploy auctions
// concurrently. A deploy listing failure is logged and reported as zero.
func (s *TokenSyncService) fetchUpstream(ctx context.Context) ([]hyperliquid.SpotToken, int, error) {
	g, gctx := errgroup.WithContext(ctx)

	var listed []hyperliquid.SpotToken
	g.Go(func() error {
		tokens, err := s.Source.ListTokens(gctx)
		if err != nil {
			return fmt.Errorf("list tokens: %w", err)
		}
		listed = tokens
		return nil
	})

	deploys := 0
	if s.Deploys != nil && s.Deploys.Enabled() {
		g.Go(func() error {
			auctions, err := s.Deploys.PastAuctions(gctx)
			if err != nil {
				s.logger().Warn("deploy listing unavailable", zap.Error(err))
				return nil
			}
			deploys = len(auctions)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return listed, deploys, nil
}

func (s *TokenSyncService) syncToken(ctx context.Context, token hyperliquid.SpotToken, prior *models.TokenRecord, startPx string, now time.Time) (bool, error) {
	details, err := s.Source.TokenDetails(ctx, token.TokenID)
	if err != nil {
		return false, fmt.Errorf("token details: %w", err)
	}

	rec, err := mergeToken(token, details, prior, startPx, now)
	if err != nil {
		s.logger().Warn("derived fields unavailable",
			zap.String("token", token.Name),
			zap.Int("index", token.Index),
			zap.Error(err),
		)
	}

	if prior == nil {
		if err := s.Store.InsertToken(ctx, &rec); err != nil {
			return false, fmt.Errorf("insert: %w", err)
		}
		s.logger().Info("new token", zap.String("token", token.Name), zap.Int("index", token.Index))
		return true, nil
	}
	if _, err := s.Store.UpsertToken(ctx, &rec); err != nil {
		return false, fmt.Errorf("update: %w", err)
	}
	s.logger().Debug("token updated", zap.String("token", token.Name), zap.Int("index", token.Index))
	return false, nil
}

func (s *TokenSyncService) fail(ctx context.Context, result CycleResult, err error) (CycleResult, error) {
	result.FinishedAt = s.now()
	s.logger().Error("token sync cycle failed", zap.Error(err))
	s.invalidateTokenList(ctx, result)
	s.recordFailure(ctx, result, err)
	return result, err
}

func (s *TokenSyncService) recordSuccess(ctx context.Context, result CycleResult) {
	state := &models.SyncState{
		Scope:         SyncScopeTokens,
		LastAttemptAt: &result.StartedAt,
		LastSuccessAt: &result.FinishedAt,
		StatsJSON:     cycleStats(result),
	}
	if err := s.Store.SaveSyncState(context.WithoutCancel(ctx), state); err != nil {
		s.logger().Warn("save sync state failed", zap.Error(err))
	}
}

func (s *TokenSyncService) recordFailure(ctx context.Context, result CycleResult, cause error) {
	state := &models.SyncState{
		Scope:         SyncScopeTokens,
		LastAttemptAt: &result.StartedAt,
		LastError:     strPtr(cause.Error()),
	}
	if err := s.Store.SaveSyncState(context.WithoutCancel(ctx), state); err != nil {
		s.logger().Warn("save sync state failed", zap.Error(err))
	}
}

// invalidateTokenList drops the cached list once anything was written.
func (s *TokenSyncService) invalidateTokenList(ctx context.Context, result CycleResult) {
	if s.Cache == nil || result.Inserted+result.Updated == 0 {
		return
	}
	if err := InvalidateTokenList(context.WithoutCancel(ctx), s.Cache); err != nil {
		s.logger().Warn("token list cache invalidation failed", zap.Error(err))
	}
}

func (s *TokenSyncService) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *TokenSyncService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func cycleStats(result CycleResult) datatypes.JSON {
	b, err := json.Marshal(map[string]int{
		"listed":   result.Listed,
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"failed":   result.Failed,
		"deploys":  result.Deploys,
	})
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
