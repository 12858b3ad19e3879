package stats

import (
	"time"

	"github.com/indexdata/patronlink/account_db"
	"github.com/indexdata/patronlink/common"
)

const (
	NumCheckouts          = "numCheckouts"
	NumRenewals           = "numRenewals"
	NumEarlyReturns       = "numEarlyReturns"
	NumHoldsPlaced        = "numHoldsPlaced"
	NumHoldsCancelled     = "numHoldsCancelled"
	NumHoldsFrozen        = "numHoldsFrozen"
	NumHoldsThawed        = "numHoldsThawed"
	NumApiErrors          = "numApiErrors"
	NumConnectionFailures = "numConnectionFailures"

	TimesCheckedOut = "timesCheckedOut"
	TimesHeld       = "timesHeld"
)

// Tracker accumulates monthly vendor usage counters. Increments are
// best-effort, failures are logged and never fail the request.
type Tracker interface {
	Increment(ctx common.ExtendedContext, counter string)
	RecordUsed(ctx common.ExtendedContext, recordId string, counter string)
}

type PgTracker struct {
	instance string
	repo     account_db.AccountRepo
}

func NewPgTracker(instance string, repo account_db.AccountRepo) *PgTracker {
	return &PgTracker{instance: instance, repo: repo}
}

func (t *PgTracker) Increment(ctx common.ExtendedContext, counter string) {
	now := time.Now()
	err := t.repo.IncrementUsageStat(ctx, account_db.IncrementUsageStatParams{
		Instance: t.instance,
		Year:     int32(now.Year()),
		Month:    int32(now.Month()),
		Counter:  counter,
		Delta:    1,
	})
	if err != nil {
		ctx.Logger().Error("failed to increment usage counter", "counter", counter, "error", err)
	}
}

func (t *PgTracker) RecordUsed(ctx common.ExtendedContext, recordId string, counter string) {
	now := time.Now()
	err := t.repo.IncrementRecordUsage(ctx, account_db.IncrementRecordUsageParams{
		RecordID: recordId,
		Instance: t.instance,
		Year:     int32(now.Year()),
		Month:    int32(now.Month()),
		Counter:  counter,
	})
	if err != nil {
		ctx.Logger().Error("failed to increment record usage", "recordId", recordId, "counter", counter, "error", err)
	}
}

// MemTracker keeps counters in memory, used in tests and when no database is
// configured.
type MemTracker struct {
	Counters map[string]int64
	Records  map[string]int64
}

func NewMemTracker() *MemTracker {
	return &MemTracker{Counters: map[string]int64{}, Records: map[string]int64{}}
}

func (t *MemTracker) Increment(ctx common.ExtendedContext, counter string) {
	t.Counters[counter]++
}

func (t *MemTracker) RecordUsed(ctx common.ExtendedContext, recordId string, counter string) {
	t.Records[recordId+":"+counter]++
}
