package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hypertoken/internal/cache"
	"hypertoken/internal/models"
	"hypertoken/internal/repository"
)

// tokenListGenKey names the current token list generation. Cached lists are
// stored under TokenListCacheKey plus the generation they were read in, so a
// list read before an invalidation can never be served after it.
const tokenListGenKey = "tokens:list-gen"

// InvalidateTokenList starts a new token list generation. Entries cached
// under older generations are never read again and age out with their TTL.
func InvalidateTokenList(ctx context.Context, store cache.Store) error {
	if store == nil {
		return nil
	}
	return store.Set(ctx, tokenListGenKey, []byte(uuid.NewString()), 0)
}

// TokenQueryService serves stored tokens to readers. The full list is cached
// for TTL and invalidated by every cycle or curated edit that wrote something.
type TokenQueryService struct {
	Repo   repository.TokenRepository
	Cache  cache.Store
	TTL    time.Duration
	Logger *zap.Logger
}

type TokenListResult struct {
	Items  []models.TokenRecord
	Total  int64
	Cached bool
}

func (s *TokenQueryService) ListTokens(ctx context.Context) (TokenListResult, error) {
	key, ok := s.listKey(ctx)
	if ok {
		if items, hit := s.cachedTokens(ctx, key); hit {
			return TokenListResult{Items: items, Total: int64(len(items)), Cached: true}, nil
		}
	}

	items, err := s.Repo.ListTokens(ctx)
	if err != nil {
		return TokenListResult{}, err
	}
	if items == nil {
		items = []models.TokenRecord{}
	}
	if ok {
		s.storeTokens(ctx, key, items)
	}
	return TokenListResult{Items: items, Total: int64(len(items))}, nil
}

func (s *TokenQueryService) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	return s.Repo.ListSyncStates(ctx)
}

// listKey is the cache key for the current generation. It reports false when
// caching is off or the generation cannot be read.
func (s *TokenQueryService) listKey(ctx context.Context) (string, bool) {
	if s.Cache == nil {
		return "", false
	}
	gen, _, err := s.Cache.Get(ctx, tokenListGenKey)
	if err != nil {
		s.warn("token list generation read failed", err)
		return "", false
	}
	return TokenListCacheKey + ":" + string(gen), true
}

func (s *TokenQueryService) cachedTokens(ctx context.Context, key string) ([]models.TokenRecord, bool) {
	raw, found, err := s.Cache.Get(ctx, key)
	if err != nil {
		s.warn("token list cache read failed", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var items []models.TokenRecord
	if err := json.Unmarshal(raw, &items); err != nil {
		s.warn("token list cache entry is corrupt", err)
		return nil, false
	}
	return items, true
}

func (s *TokenQueryService) storeTokens(ctx context.Context, key string, items []models.TokenRecord) {
	if s.TTL <= 0 {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		s.warn("token list encode failed", err)
		return
	}
	if err := s.Cache.Set(ctx, key, raw, s.TTL); err != nil {
		s.warn("token list cache write failed", err)
	}
}

func (s *TokenQueryService) warn(msg string, err error) {
	if s.Logger != nil {
		s.Logger.Warn(msg, zap.Error(err))
	}
}
