package cache

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/indexdata/patronlink/account_db"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/model"
)

// SummaryCache stores loaded account summaries per patron and profile.
// Get answers nil when the entry is missing or older than ttl, drivers must
// Invalidate after every successful account mutation.
type SummaryCache interface {
	Get(ctx common.ExtendedContext, patronId string, profileId string, ttl time.Duration) *model.AccountSummary
	Put(ctx common.ExtendedContext, patronId string, profileId string, summary *model.AccountSummary)
	Invalidate(ctx common.ExtendedContext, patronId string, profileId string)
}

type PgSummaryCache struct {
	repo account_db.AccountRepo
}

func NewPgSummaryCache(repo account_db.AccountRepo) *PgSummaryCache {
	return &PgSummaryCache{repo: repo}
}

func (c *PgSummaryCache) Get(ctx common.ExtendedContext, patronId string, profileId string, ttl time.Duration) *model.AccountSummary {
	row, err := c.repo.GetAccountSummary(ctx, patronId, profileId)
	if err != nil {
		return nil
	}
	if !row.LastLoaded.Valid || time.Since(row.LastLoaded.Time) > ttl {
		return nil
	}
	var summary model.AccountSummary
	if err = json.Unmarshal(row.Summary, &summary); err != nil {
		ctx.Logger().Warn("discarding unreadable cached summary", "patronId", patronId, "error", err)
		return nil
	}
	summary.LastLoaded = row.LastLoaded.Time
	return &summary
}

func (c *PgSummaryCache) Put(ctx common.ExtendedContext, patronId string, profileId string, summary *model.AccountSummary) {
	buf, err := json.Marshal(summary)
	if err != nil {
		ctx.Logger().Error("failed to marshal summary", "patronId", patronId, "error", err)
		return
	}
	_, err = c.repo.SaveAccountSummary(ctx, account_db.SaveAccountSummaryParams{
		PatronID:  patronId,
		ProfileID: profileId,
		Summary:   buf,
	})
	if err != nil {
		ctx.Logger().Error("failed to store summary", "patronId", patronId, "error", err)
	}
}

func (c *PgSummaryCache) Invalidate(ctx common.ExtendedContext, patronId string, profileId string) {
	if err := c.repo.DeleteAccountSummary(ctx, patronId, profileId); err != nil {
		ctx.Logger().Error("failed to invalidate summary", "patronId", patronId, "error", err)
	}
}

type memEntry struct {
	summary model.AccountSummary
	loaded  time.Time
}

// MemSummaryCache is a process-local cache for tests and single-node setups.
type MemSummaryCache struct {
	entries sync.Map
}

func NewMemSummaryCache() *MemSummaryCache {
	return &MemSummaryCache{}
}

func (c *MemSummaryCache) Get(ctx common.ExtendedContext, patronId string, profileId string, ttl time.Duration) *model.AccountSummary {
	val, ok := c.entries.Load(patronId + "/" + profileId)
	if !ok {
		return nil
	}
	entry := val.(memEntry)
	if time.Since(entry.loaded) > ttl {
		return nil
	}
	summary := entry.summary
	summary.LastLoaded = entry.loaded
	return &summary
}

func (c *MemSummaryCache) Put(ctx common.ExtendedContext, patronId string, profileId string, summary *model.AccountSummary) {
	c.entries.Store(patronId+"/"+profileId, memEntry{summary: *summary, loaded: time.Now()})
}

func (c *MemSummaryCache) Invalidate(ctx common.ExtendedContext, patronId string, profileId string) {
	c.entries.Delete(patronId + "/" + profileId)
}
