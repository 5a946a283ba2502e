package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"hypertoken/internal/cache"
	"hypertoken/internal/client/hyperliquid"
	"hypertoken/internal/client/hypurrscan"
	"hypertoken/internal/models"
	"hypertoken/internal/repository"
	"hypertoken/internal/repository/memory"
)

type fakeSource struct {
	mu         sync.Mutex
	tokens     []hyperliquid.SpotToken
	details    map[string]*hyperliquid.TokenDetails
	listErr    error
	detailErr  map[string]error
	onDetails  func(tokenID string)
	detailsFor []string
}

func (f *fakeSource) ListTokens(context.Context) ([]hyperliquid.SpotToken, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]hyperliquid.SpotToken(nil), f.tokens...), nil
}

func (f *fakeSource) TokenDetails(_ context.Context, tokenID string) (*hyperliquid.TokenDetails, error) {
	f.mu.Lock()
	f.detailsFor = append(f.detailsFor, tokenID)
	f.mu.Unlock()
	if f.onDetails != nil {
		f.onDetails(tokenID)
	}
	if err := f.detailErr[tokenID]; err != nil {
		return nil, err
	}
	d, ok := f.details[tokenID]
	if !ok {
		return nil, fmt.Errorf("%w: details not found for token %s", hyperliquid.ErrMalformedResponse, tokenID)
	}
	out := *d
	return &out, nil
}

type fakeDeploys struct {
	auctions []hypurrscan.DeployAuction
	err      error
}

func (f *fakeDeploys) Enabled() bool { return true }

func (f *fakeDeploys) PastAuctions(context.Context) ([]hypurrscan.DeployAuction, error) {
	return f.auctions, f.err
}

// failingStore fails every token write after the first okWrites.
type failingStore struct {
	*memory.Store
	okWrites int
	writes   int
}

func (s *failingStore) InsertToken(ctx context.Context, item *models.TokenRecord) error {
	s.writes++
	if s.writes > s.okWrites {
		return fmt.Errorf("%w: connection refused", repository.ErrStoreUnavailable)
	}
	return s.Store.InsertToken(ctx, item)
}

// rejectingStore rejects updates of one token the way a backend rejects a
// row whose data it cannot store.
type rejectingStore struct {
	*memory.Store
	rejectIndex int
}

func (s *rejectingStore) UpsertToken(ctx context.Context, item *models.TokenRecord) (*models.TokenRecord, error) {
	if item.TokenIndex == s.rejectIndex {
		return nil, fmt.Errorf("%w: unsupported Unicode escape sequence (SQLSTATE 22P05)", repository.ErrRecordRejected)
	}
	return s.Store.UpsertToken(ctx, item)
}

func threeTokenSource() *fakeSource {
	return &fakeSource{
		tokens: []hyperliquid.SpotToken{
			{Name: "PURR", TokenID: "0x01", Index: 1},
			{Name: "HFUN", TokenID: "0x02", Index: 2},
			{Name: "JEFF", TokenID: "0x03", Index: 3},
		},
		details: map[string]*hyperliquid.TokenDetails{
			"0x01": {Name: "PURR", MarkPx: "0.19", DeployTime: "2024-04-16T10:20:31.000", SeededUsdc: "1000", CirculatingSupply: "500"},
			"0x02": {Name: "HFUN", MarkPx: "12.4", DeployTime: "2024-05-02T01:00:00.000", SeededUsdc: "0", CirculatingSupply: "1000"},
			"0x03": {Name: "JEFF", MarkPx: "", SeededUsdc: "", CirculatingSupply: ""},
		},
	}
}

func newTestSync(t *testing.T, store repository.TokenRepository, src *fakeSource) (*TokenSyncService, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	return &TokenSyncService{
		Store:  store,
		Source: src,
		Logger: zaptest.NewLogger(t),
		Clock:  fc,
	}, fc
}

func TestRunCycle_CreatesEveryListedToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.InsertStartPx(ctx, &models.StartPx{Index: 2, StartPx: "1.5"})
	require.NoError(t, err)
	svc, _ := newTestSync(t, store, threeTokenSource())

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Listed)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.Failed)

	for _, idx := range []int{1, 2, 3} {
		rec, err := store.GetTokenByIndex(ctx, idx)
		require.NoError(t, err)
		require.NotNil(t, rec, "token %d missing", idx)
	}

	purr, _ := store.GetTokenByIndex(ctx, 1)
	require.NotNil(t, purr.AuctionPrice)
	assert.Equal(t, "2", *purr.AuctionPrice)
	require.NotNil(t, purr.LaunchDate)
	assert.Equal(t, "2024-04-16", *purr.LaunchDate)
	assert.Nil(t, purr.StartPx)
	assert.Nil(t, purr.LaunchMarketCap)

	hfun, _ := store.GetTokenByIndex(ctx, 2)
	assert.Nil(t, hfun.AuctionPrice)
	require.NotNil(t, hfun.StartPx)
	assert.Equal(t, "1.5", *hfun.StartPx)
	require.NotNil(t, hfun.LaunchMarketCap)
	assert.Equal(t, "1500.00", *hfun.LaunchMarketCap)

	jeff, _ := store.GetTokenByIndex(ctx, 3)
	assert.Nil(t, jeff.MarkPx)
	assert.Nil(t, jeff.LaunchCircSupply)
	assert.Nil(t, jeff.LaunchDate)
	assert.Equal(t, models.DefaultCurated(), jeff.Curated)
}

func TestRunCycle_PreservesCuratedFields(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	curated := models.Curated{
		TeamAllocation: strPtr("10%"),
		DevReputation:  boolPtr(true),
		Twitter:        strPtr("@purr"),
		Comment:        strPtr("watch the unlock"),
		Highlighted:    boolPtr(true),
	}.WithDefaults(models.DefaultCurated())
	require.NoError(t, store.InsertToken(ctx, &models.TokenRecord{
		TokenIndex:  1,
		Index:       1,
		Name:        "PURR-OLD",
		TokenID:     "0x01",
		MarkPx:      strPtr("0.01"),
		Curated:     curated,
		LastUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	svc, _ := newTestSync(t, store, threeTokenSource())

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	purr, err := store.GetTokenByIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, curated, purr.Curated)
	assert.Equal(t, "PURR", purr.Name)
	require.NotNil(t, purr.MarkPx)
	assert.Equal(t, "0.19", *purr.MarkPx)
}

func TestRunCycle_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, err := store.InsertStartPx(ctx, &models.StartPx{Index: 1, StartPx: "0.5"})
	require.NoError(t, err)
	svc, fc := newTestSync(t, store, threeTokenSource())

	_, err = svc.RunCycle(ctx)
	require.NoError(t, err)
	first, err := store.ListTokens(ctx)
	require.NoError(t, err)

	fc.Advance(time.Minute)
	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 3, res.Updated)
	second, err := store.ListTokens(ctx)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Curated, second[i].Curated)
		assert.True(t, second[i].LastUpdated.After(first[i].LastUpdated))

		a, b := first[i], second[i]
		a.LastUpdated, b.LastUpdated = time.Time{}, time.Time{}
		assert.Equal(t, a, b)
	}
}

func TestRunCycle_MalformedDetailsSkipOnlyThatToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := threeTokenSource()
	delete(src.details, "0x02")
	svc, _ := newTestSync(t, store, src)

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.Failed)

	missing, err := store.GetTokenByIndex(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, missing)
	after, err := store.GetTokenByIndex(ctx, 3)
	require.NoError(t, err)
	assert.NotNil(t, after)
}

func TestRunCycle_RateLimitExhaustionSkipsToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := threeTokenSource()
	src.detailErr = map[string]error{"0x01": &hyperliquid.APIError{Status: 429, Body: "slow down"}}
	svc, _ := newTestSync(t, store, src)

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Inserted)
}

func TestRunCycle_ParseErrorKeepsToken(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := threeTokenSource()
	src.details["0x01"].SeededUsdc = "not-a-number"
	svc, _ := newTestSync(t, store, src)

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)

	purr, err := store.GetTokenByIndex(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, purr)
	assert.Nil(t, purr.AuctionPrice)
	require.NotNil(t, purr.MarkPx)
}

func TestRunCycle_ListFailureAbortsCycle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	src := threeTokenSource()
	src.listErr = fmt.Errorf("%w: spotMeta has no tokens", hyperliquid.ErrMalformedResponse)
	svc, _ := newTestSync(t, store, src)

	_, err := svc.RunCycle(ctx)
	require.ErrorIs(t, err, hyperliquid.ErrMalformedResponse)

	tokens, err := store.ListTokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	state, err := store.GetSyncState(ctx, SyncScopeTokens)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastError)
	assert.Contains(t, *state.LastError, "list tokens")
	assert.Nil(t, state.LastSuccessAt)
}

func TestRunCycle_StoreFailureAbortsCycle(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memory.New(), okWrites: 1}
	src := threeTokenSource()
	svc, _ := newTestSync(t, store, src)

	res, err := svc.RunCycle(ctx)
	require.ErrorIs(t, err, repository.ErrStoreUnavailable)
	assert.Equal(t, 1, res.Inserted)

	// The first write is kept and the third token is never fetched.
	kept, err := store.GetTokenByIndex(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	assert.Equal(t, []string{"0x01", "0x02"}, src.detailsFor)
}

func TestRunCycle_RejectedRecordSkipsOnlyThatToken(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	svc, fc := newTestSync(t, mem, threeTokenSource())
	_, err := svc.RunCycle(ctx)
	require.NoError(t, err)

	src := threeTokenSource()
	src.details["0x01"].MarkPx = "0.25"
	src.details["0x02"].MarkPx = "13.0"
	src.details["0x03"].MarkPx = "4.4"
	svc.Store = &rejectingStore{Store: mem, rejectIndex: 2}
	svc.Source = src
	fc.Advance(time.Minute)

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []string{"0x01", "0x02", "0x03"}, src.detailsFor)

	purr, err := mem.GetTokenByIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "0.25", *purr.MarkPx)
	hfun, err := mem.GetTokenByIndex(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "12.4", *hfun.MarkPx)
	jeff, err := mem.GetTokenByIndex(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "4.4", *jeff.MarkPx)
}

func TestRunCycle_KeepsCuratedEdit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, fc := newTestSync(t, store, threeTokenSource())
	_, err := svc.RunCycle(ctx)
	require.NoError(t, err)

	patch, err := ParseCuratedAssignments([]string{"teamAllocation=10%", "highlighted=true", "twitter=@hfun"})
	require.NoError(t, err)
	_, err = CurateToken(ctx, store, nil, 2, patch)
	require.NoError(t, err)

	fc.Advance(time.Minute)
	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Updated)

	hfun, err := store.GetTokenByIndex(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "10%", *hfun.TeamAllocation)
	assert.True(t, *hfun.Highlighted)
	assert.Equal(t, "@hfun", *hfun.Twitter)
	assert.Equal(t, "", *hfun.Comment)
	assert.True(t, hfun.LastUpdated.Equal(fc.Now()))
}

func TestRunCycle_MergeBaseIsCycleSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.InsertToken(ctx, &models.TokenRecord{
		TokenIndex:  1,
		Index:       1,
		Name:        "PURR",
		TokenID:     "0x01",
		Curated:     models.DefaultCurated(),
		LastUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	src := threeTokenSource()
	src.onDetails = func(tokenID string) {
		if tokenID != "0x01" {
			return
		}
		// An operator edit lands while the cycle is running.
		rec, err := store.GetTokenByIndex(ctx, 1)
		require.NoError(t, err)
		rec.Comment = strPtr("edited mid-cycle")
		_, err = store.UpsertToken(ctx, rec)
		require.NoError(t, err)
	}
	svc, _ := newTestSync(t, store, src)

	_, err := svc.RunCycle(ctx)
	require.NoError(t, err)

	purr, err := store.GetTokenByIndex(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, purr.Comment)
	assert.Equal(t, "", *purr.Comment)
}

func TestRunCycle_RecordsSyncStateAndDropsCachedList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	c := cache.NewMemoryStore()
	q := &TokenQueryService{Repo: store, Cache: c, TTL: time.Hour}
	before, err := q.ListTokens(ctx)
	require.NoError(t, err)
	require.Zero(t, before.Total)

	svc, fc := newTestSync(t, store, threeTokenSource())
	svc.Cache = c
	svc.Deploys = &fakeDeploys{auctions: []hypurrscan.DeployAuction{{Name: "PURR"}, {Name: "HFUN"}}}

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deploys)

	after, err := q.ListTokens(ctx)
	require.NoError(t, err)
	assert.False(t, after.Cached)
	assert.EqualValues(t, 3, after.Total)

	state, err := store.GetSyncState(ctx, SyncScopeTokens)
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastSuccessAt)
	assert.True(t, state.LastSuccessAt.Equal(fc.Now()))
	assert.Nil(t, state.LastError)
	assert.JSONEq(t, `{"listed":3,"inserted":3,"updated":0,"failed":0,"deploys":2}`, string(state.StatsJSON))
}

func TestRunCycle_DeployListingFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc, _ := newTestSync(t, store, threeTokenSource())
	svc.Deploys = &fakeDeploys{err: errors.New("hypurrscan down")}

	res, err := svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deploys)
	assert.Equal(t, 3, res.Inserted)
}

func TestRunCycle_CancelledContextAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := memory.New()
	src := threeTokenSource()
	src.onDetails = func(string) { cancel() }
	src.detailErr = map[string]error{"0x01": context.Canceled}
	svc, _ := newTestSync(t, store, src)

	_, err := svc.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"0x01"}, src.detailsFor)
}
