package account_db

import (
	extctx "github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/repo"
)

type AccountRepo interface {
	repo.Transactional[AccountRepo]
	SaveAccountProfile(ctx extctx.ExtendedContext, params SaveAccountProfileParams) (AccountProfile, error)
	GetAccountProfileById(ctx extctx.ExtendedContext, id string) (AccountProfile, error)
	GetProfileForLibrary(ctx extctx.ExtendedContext, libraryId string) (AccountProfile, error)
	SaveScope(ctx extctx.ExtendedContext, params SaveScopeParams) (Scope, error)
	GetAccountSummary(ctx extctx.ExtendedContext, patronId string, profileId string) (AccountSummaryRow, error)
	SaveAccountSummary(ctx extctx.ExtendedContext, params SaveAccountSummaryParams) (AccountSummaryRow, error)
	DeleteAccountSummary(ctx extctx.ExtendedContext, patronId string, profileId string) error
	IncrementUsageStat(ctx extctx.ExtendedContext, params IncrementUsageStatParams) error
	IncrementRecordUsage(ctx extctx.ExtendedContext, params IncrementRecordUsageParams) error
	GetUsageStat(ctx extctx.ExtendedContext, instance string, year int32, month int32) (UsageStat, error)
	ListUsageStats(ctx extctx.ExtendedContext, params ListUsageStatsParams, cql *string) ([]UsageStat, error)
	GetRecordUsage(ctx extctx.ExtendedContext, recordId string, instance string, year int32, month int32) (RecordUsage, error)
}

type PgAccountRepo struct {
	repo.PgBaseRepo[AccountRepo]
	queries Queries
}

// delegate transaction handling to Base
func (r *PgAccountRepo) WithTxFunc(ctx extctx.ExtendedContext, fn func(AccountRepo) error) error {
	return r.PgBaseRepo.WithTxFunc(ctx, r, fn)
}

// DerivedRepo
func (r *PgAccountRepo) CreateWithPgBaseRepo(base *repo.PgBaseRepo[AccountRepo]) AccountRepo {
	accountRepo := new(PgAccountRepo)
	accountRepo.PgBaseRepo = *base
	return accountRepo
}

func (r *PgAccountRepo) SaveAccountProfile(ctx extctx.ExtendedContext, params SaveAccountProfileParams) (AccountProfile, error) {
	return r.queries.SaveAccountProfile(ctx, r.GetConnOrTx(), params)
}

func (r *PgAccountRepo) GetAccountProfileById(ctx extctx.ExtendedContext, id string) (AccountProfile, error) {
	return r.queries.GetAccountProfileById(ctx, r.GetConnOrTx(), id)
}

func (r *PgAccountRepo) GetProfileForLibrary(ctx extctx.ExtendedContext, libraryId string) (AccountProfile, error) {
	return r.queries.GetProfileForLibrary(ctx, r.GetConnOrTx(), libraryId)
}

func (r *PgAccountRepo) SaveScope(ctx extctx.ExtendedContext, params SaveScopeParams) (Scope, error) {
	return r.queries.SaveScope(ctx, r.GetConnOrTx(), params)
}

func (r *PgAccountRepo) GetAccountSummary(ctx extctx.ExtendedContext, patronId string, profileId string) (AccountSummaryRow, error) {
	return r.queries.GetAccountSummary(ctx, r.GetConnOrTx(), patronId, profileId)
}

func (r *PgAccountRepo) SaveAccountSummary(ctx extctx.ExtendedContext, params SaveAccountSummaryParams) (AccountSummaryRow, error) {
	return r.queries.SaveAccountSummary(ctx, r.GetConnOrTx(), params)
}

func (r *PgAccountRepo) DeleteAccountSummary(ctx extctx.ExtendedContext, patronId string, profileId string) error {
	return r.queries.DeleteAccountSummary(ctx, r.GetConnOrTx(), patronId, profileId)
}

func (r *PgAccountRepo) IncrementUsageStat(ctx extctx.ExtendedContext, params IncrementUsageStatParams) error {
	return r.queries.IncrementUsageStat(ctx, r.GetConnOrTx(), params)
}

func (r *PgAccountRepo) IncrementRecordUsage(ctx extctx.ExtendedContext, params IncrementRecordUsageParams) error {
	return r.queries.IncrementRecordUsage(ctx, r.GetConnOrTx(), params)
}

func (r *PgAccountRepo) GetUsageStat(ctx extctx.ExtendedContext, instance string, year int32, month int32) (UsageStat, error) {
	return r.queries.GetUsageStat(ctx, r.GetConnOrTx(), instance, year, month)
}

func (r *PgAccountRepo) ListUsageStats(ctx extctx.ExtendedContext, params ListUsageStatsParams, cql *string) ([]UsageStat, error) {
	return r.queries.ListUsageStatsCql(ctx, r.GetConnOrTx(), params, cql)
}

func (r *PgAccountRepo) GetRecordUsage(ctx extctx.ExtendedContext, recordId string, instance string, year int32, month int32) (RecordUsage, error) {
	return r.queries.GetRecordUsage(ctx, r.GetConnOrTx(), recordId, instance, year, month)
}
