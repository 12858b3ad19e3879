package db

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/indexdata/patronlink/account_db"
	"github.com/indexdata/patronlink/cache"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/dbutil"
	"github.com/indexdata/patronlink/model"
	"github.com/indexdata/patronlink/stats"
	"github.com/indexdata/patronlink/test"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
)

var accountRepo account_db.AccountRepo

func TestMain(m *testing.M) {
	ctx, pgc, connStr, err := dbutil.StartPGContainer()
	test.Expect(err, "failed to start db container")
	pgRepo := new(account_db.PgAccountRepo)
	pgRepo.Pool, err = dbutil.InitDbPool(connStr)
	test.Expect(err, "failed to create account repo")
	defer pgRepo.Pool.Close()
	_, _, _, err = dbutil.RunMigrateScripts("file://../../migrations", connStr)
	test.Expect(err, "failed to run migration scripts")
	accountRepo = pgRepo
	code := m.Run()
	test.Expect(dbutil.TerminatePGContainer(ctx, pgc), "failed to stop db container")
	os.Exit(code)
}

func extCtx() common.ExtendedContext {
	return common.CreateExtCtxWithArgs(context.Background(), nil)
}

func saveProfile(t *testing.T, name string) account_db.AccountProfile {
	profile, err := accountRepo.SaveAccountProfile(extCtx(), account_db.SaveAccountProfileParams{
		ID:         uuid.New().String(),
		Name:       name,
		Vendor:     string(common.VendorKoha),
		ApiUrl:     test.CreatePgText("https://koha.example.org"),
		SummaryTtl: pgtype.Int4{Int32: 60, Valid: true},
	})
	if err != nil {
		t.Fatalf("failed to save profile: %s", err)
	}
	return profile
}

func saveScope(t *testing.T, libraryId string, profileId string, isDefault bool) {
	_, err := accountRepo.SaveScope(extCtx(), account_db.SaveScopeParams{
		ID:        uuid.New().String(),
		LibraryID: libraryId,
		ProfileID: profileId,
		IsDefault: isDefault,
	})
	if err != nil {
		t.Fatalf("failed to save scope: %s", err)
	}
}

func TestProfileResolution(t *testing.T) {
	ctx := extCtx()

	_, err := accountRepo.GetProfileForLibrary(ctx, "branch-a")
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	// the default row is inserted first so row order cannot mask the ranking
	fallback := saveProfile(t, "fallback")
	saveScope(t, "any", fallback.ID, true)

	resolved, err := accountRepo.GetProfileForLibrary(ctx, "branch-a")
	assert.Nil(t, err)
	assert.Equal(t, fallback.ID, resolved.ID)

	scoped := saveProfile(t, "branch-a-profile")
	saveScope(t, "branch-a", scoped.ID, false)

	resolved, err = accountRepo.GetProfileForLibrary(ctx, "branch-a")
	assert.Nil(t, err)
	assert.Equal(t, scoped.ID, resolved.ID)

	loaded, err := accountRepo.GetAccountProfileById(ctx, scoped.ID)
	assert.Nil(t, err)
	assert.Equal(t, "https://koha.example.org", loaded.ApiUrl.String)
	assert.Equal(t, int32(60), loaded.SummaryTtl.Int32)
}

func TestSummaryCacheTtl(t *testing.T) {
	ctx := extCtx()
	profile := saveProfile(t, "summaries")
	summaries := cache.NewPgSummaryCache(accountRepo)

	summaries.Put(ctx, "p1", profile.ID, &model.AccountSummary{NumCheckedOut: 3, TotalFines: 1.5})

	cached := summaries.Get(ctx, "p1", profile.ID, time.Minute)
	assert.NotNil(t, cached)
	assert.Equal(t, 3, cached.NumCheckedOut)
	assert.Equal(t, 1.5, cached.TotalFines)
	assert.WithinDuration(t, test.GetNow().Time, cached.LastLoaded, 30*time.Second)

	// a zero TTL makes every entry stale
	assert.Nil(t, summaries.Get(ctx, "p1", profile.ID, 0))

	summaries.Invalidate(ctx, "p1", profile.ID)
	assert.Nil(t, summaries.Get(ctx, "p1", profile.ID, time.Minute))
	_, err := accountRepo.GetAccountSummary(ctx, "p1", profile.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestUsageCounterUpsert(t *testing.T) {
	ctx := extCtx()
	tracker := stats.NewPgTracker("upsert-instance", accountRepo)
	tracker.Increment(ctx, stats.NumCheckouts)
	tracker.Increment(ctx, stats.NumCheckouts)
	tracker.Increment(ctx, stats.NumHoldsPlaced)
	tracker.RecordUsed(ctx, "b1", stats.TimesCheckedOut)
	tracker.RecordUsed(ctx, "b1", stats.TimesCheckedOut)
	tracker.RecordUsed(ctx, "b1", stats.TimesHeld)

	now := time.Now()
	stat, err := accountRepo.GetUsageStat(ctx, "upsert-instance", int32(now.Year()), int32(now.Month()))
	assert.Nil(t, err)
	assert.Equal(t, int64(2), stat.NumCheckouts)
	assert.Equal(t, int64(1), stat.NumHoldsPlaced)
	assert.Equal(t, int64(0), stat.NumRenewals)

	usage, err := accountRepo.GetRecordUsage(ctx, "b1", "upsert-instance", int32(now.Year()), int32(now.Month()))
	assert.Nil(t, err)
	assert.Equal(t, int64(2), usage.TimesCheckedOut)
	assert.Equal(t, int64(1), usage.TimesHeld)

	err = accountRepo.IncrementUsageStat(ctx, account_db.IncrementUsageStatParams{
		Instance: "upsert-instance",
		Year:     int32(now.Year()),
		Month:    int32(now.Month()),
		Counter:  "bogus",
		Delta:    1,
	})
	assert.NotNil(t, err)
}

func TestConcurrentIncrements(t *testing.T) {
	ctx := extCtx()
	tracker := stats.NewPgTracker("concurrent-instance", accountRepo)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Increment(ctx, stats.NumRenewals)
		}()
	}
	wg.Wait()

	now := time.Now()
	stat, err := accountRepo.GetUsageStat(ctx, "concurrent-instance", int32(now.Year()), int32(now.Month()))
	assert.Nil(t, err)
	assert.Equal(t, int64(10), stat.NumRenewals)
}

func TestListUsageStatsCqlFilter(t *testing.T) {
	ctx := extCtx()
	stats.NewPgTracker("filter-a", accountRepo).Increment(ctx, stats.NumCheckouts)
	stats.NewPgTracker("filter-b", accountRepo).Increment(ctx, stats.NumCheckouts)

	cql := "instance=filter-a"
	rows, err := accountRepo.ListUsageStats(ctx, account_db.ListUsageStatsParams{Limit: 100}, &cql)
	assert.Nil(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, "filter-a", rows[0].Instance)

	bad := "nosuchfield=1"
	_, err = accountRepo.ListUsageStats(ctx, account_db.ListUsageStatsParams{Limit: 100}, &bad)
	assert.NotNil(t, err)
}

func TestWithTxRollback(t *testing.T) {
	ctx := extCtx()
	id := uuid.New().String()
	err := accountRepo.WithTxFunc(ctx, func(repo account_db.AccountRepo) error {
		_, err := repo.SaveAccountProfile(ctx, account_db.SaveAccountProfileParams{
			ID:     id,
			Name:   "rolled-back",
			Vendor: string(common.VendorKoha),
		})
		if err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = accountRepo.GetAccountProfileById(ctx, id)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}
