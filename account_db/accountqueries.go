package account_db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type Queries struct {
}

const saveAccountProfile = `INSERT INTO account_profile
(id, name, vendor, api_url, opac_url, ils_di_url, client_id, client_secret,
 vendor_username, vendor_password, library_prefix, vendor_db_url, summary_ttl, timestamp)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (id) DO UPDATE SET
 name = EXCLUDED.name, vendor = EXCLUDED.vendor, api_url = EXCLUDED.api_url,
 opac_url = EXCLUDED.opac_url, ils_di_url = EXCLUDED.ils_di_url,
 client_id = EXCLUDED.client_id, client_secret = EXCLUDED.client_secret,
 vendor_username = EXCLUDED.vendor_username, vendor_password = EXCLUDED.vendor_password,
 library_prefix = EXCLUDED.library_prefix, vendor_db_url = EXCLUDED.vendor_db_url,
 summary_ttl = EXCLUDED.summary_ttl, timestamp = now()
RETURNING id, name, vendor, api_url, opac_url, ils_di_url, client_id, client_secret,
 vendor_username, vendor_password, library_prefix, vendor_db_url, summary_ttl, timestamp`

func (q *Queries) SaveAccountProfile(ctx context.Context, db DBTX, arg SaveAccountProfileParams) (AccountProfile, error) {
	row := db.QueryRow(ctx, saveAccountProfile,
		arg.ID, arg.Name, arg.Vendor, arg.ApiUrl, arg.OpacUrl, arg.IlsDiUrl,
		arg.ClientID, arg.ClientSecret, arg.VendorUsername, arg.VendorPassword,
		arg.LibraryPrefix, arg.VendorDbUrl, arg.SummaryTtl)
	return scanAccountProfile(row)
}

const getAccountProfileById = `SELECT id, name, vendor, api_url, opac_url, ils_di_url,
 client_id, client_secret, vendor_username, vendor_password, library_prefix,
 vendor_db_url, summary_ttl, timestamp
FROM account_profile WHERE id = $1`

func (q *Queries) GetAccountProfileById(ctx context.Context, db DBTX, id string) (AccountProfile, error) {
	return scanAccountProfile(db.QueryRow(ctx, getAccountProfileById, id))
}

const getProfileForLibrary = `SELECT id, name, vendor, api_url, opac_url, ils_di_url,
 client_id, client_secret, vendor_username, vendor_password, library_prefix,
 vendor_db_url, summary_ttl, timestamp
FROM (
 SELECT p.*, 0 AS rank FROM account_profile p JOIN scope s ON s.profile_id = p.id
 WHERE s.library_id = $1
 UNION ALL
 SELECT p.*, 1 AS rank FROM account_profile p JOIN scope s ON s.profile_id = p.id
 WHERE s.is_default
) q ORDER BY rank LIMIT 1`

// GetProfileForLibrary resolves the profile scoped to a home library, falling
// back to the default scope row.
func (q *Queries) GetProfileForLibrary(ctx context.Context, db DBTX, libraryId string) (AccountProfile, error) {
	return scanAccountProfile(db.QueryRow(ctx, getProfileForLibrary, libraryId))
}

func scanAccountProfile(row pgx.Row) (AccountProfile, error) {
	var i AccountProfile
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Vendor,
		&i.ApiUrl,
		&i.OpacUrl,
		&i.IlsDiUrl,
		&i.ClientID,
		&i.ClientSecret,
		&i.VendorUsername,
		&i.VendorPassword,
		&i.LibraryPrefix,
		&i.VendorDbUrl,
		&i.SummaryTtl,
		&i.Timestamp,
	)
	return i, err
}

const saveScope = `INSERT INTO scope (id, library_id, profile_id, is_default)
VALUES ($1, $2, $3, $4)
ON CONFLICT (library_id) DO UPDATE SET profile_id = EXCLUDED.profile_id, is_default = EXCLUDED.is_default
RETURNING id, library_id, profile_id, is_default`

func (q *Queries) SaveScope(ctx context.Context, db DBTX, arg SaveScopeParams) (Scope, error) {
	var i Scope
	err := db.QueryRow(ctx, saveScope, arg.ID, arg.LibraryID, arg.ProfileID, arg.IsDefault).
		Scan(&i.ID, &i.LibraryID, &i.ProfileID, &i.IsDefault)
	return i, err
}

const getAccountSummary = `SELECT patron_id, profile_id, summary, last_loaded
FROM account_summary WHERE patron_id = $1 AND profile_id = $2`

func (q *Queries) GetAccountSummary(ctx context.Context, db DBTX, patronId string, profileId string) (AccountSummaryRow, error) {
	var i AccountSummaryRow
	err := db.QueryRow(ctx, getAccountSummary, patronId, profileId).
		Scan(&i.PatronID, &i.ProfileID, &i.Summary, &i.LastLoaded)
	return i, err
}

const saveAccountSummary = `INSERT INTO account_summary (patron_id, profile_id, summary, last_loaded)
VALUES ($1, $2, $3, now())
ON CONFLICT (patron_id, profile_id) DO UPDATE SET summary = EXCLUDED.summary, last_loaded = now()
RETURNING patron_id, profile_id, summary, last_loaded`

func (q *Queries) SaveAccountSummary(ctx context.Context, db DBTX, arg SaveAccountSummaryParams) (AccountSummaryRow, error) {
	var i AccountSummaryRow
	err := db.QueryRow(ctx, saveAccountSummary, arg.PatronID, arg.ProfileID, arg.Summary).
		Scan(&i.PatronID, &i.ProfileID, &i.Summary, &i.LastLoaded)
	return i, err
}

const deleteAccountSummary = `DELETE FROM account_summary WHERE patron_id = $1 AND profile_id = $2`

func (q *Queries) DeleteAccountSummary(ctx context.Context, db DBTX, patronId string, profileId string) error {
	_, err := db.Exec(ctx, deleteAccountSummary, patronId, profileId)
	return err
}

// column whitelist for the counter upserts, counter names arrive from the
// stats package and must never be interpolated unchecked
var usageStatColumns = map[string]string{
	"numCheckouts":          "num_checkouts",
	"numRenewals":           "num_renewals",
	"numEarlyReturns":       "num_early_returns",
	"numHoldsPlaced":        "num_holds_placed",
	"numHoldsCancelled":     "num_holds_cancelled",
	"numHoldsFrozen":        "num_holds_frozen",
	"numHoldsThawed":        "num_holds_thawed",
	"numApiErrors":          "num_api_errors",
	"numConnectionFailures": "num_connection_failures",
}

var recordUsageColumns = map[string]string{
	"timesCheckedOut": "times_checked_out",
	"timesHeld":       "times_held",
}

func (q *Queries) IncrementUsageStat(ctx context.Context, db DBTX, arg IncrementUsageStatParams) error {
	col, ok := usageStatColumns[arg.Counter]
	if !ok {
		return fmt.Errorf("unknown usage counter: %s", arg.Counter)
	}
	sql := fmt.Sprintf(`INSERT INTO usage_stat (instance, year, month, %s) VALUES ($1, $2, $3, $4)
ON CONFLICT (instance, year, month) DO UPDATE SET %s = usage_stat.%s + EXCLUDED.%s`, col, col, col, col)
	_, err := db.Exec(ctx, sql, arg.Instance, arg.Year, arg.Month, arg.Delta)
	return err
}

func (q *Queries) IncrementRecordUsage(ctx context.Context, db DBTX, arg IncrementRecordUsageParams) error {
	col, ok := recordUsageColumns[arg.Counter]
	if !ok {
		return fmt.Errorf("unknown record usage counter: %s", arg.Counter)
	}
	sql := fmt.Sprintf(`INSERT INTO record_usage (record_id, instance, year, month, %s) VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (record_id, instance, year, month) DO UPDATE SET %s = record_usage.%s + 1`, col, col, col)
	_, err := db.Exec(ctx, sql, arg.RecordID, arg.Instance, arg.Year, arg.Month)
	return err
}

const getUsageStat = `SELECT instance, year, month, num_checkouts, num_renewals, num_early_returns,
 num_holds_placed, num_holds_cancelled, num_holds_frozen, num_holds_thawed,
 num_api_errors, num_connection_failures
FROM usage_stat WHERE instance = $1 AND year = $2 AND month = $3`

func (q *Queries) GetUsageStat(ctx context.Context, db DBTX, instance string, year int32, month int32) (UsageStat, error) {
	return scanUsageStat(db.QueryRow(ctx, getUsageStat, instance, year, month))
}

const listUsageStats = `SELECT instance, year, month, num_checkouts, num_renewals, num_early_returns,
 num_holds_placed, num_holds_cancelled, num_holds_frozen, num_holds_thawed,
 num_api_errors, num_connection_failures
FROM usage_stat
ORDER BY year DESC, month DESC, instance LIMIT $1 OFFSET $2`

func (q *Queries) ListUsageStats(ctx context.Context, db DBTX, arg ListUsageStatsParams) ([]UsageStat, error) {
	rows, err := db.Query(ctx, listUsageStats, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UsageStat
	for rows.Next() {
		i, err := scanUsageStat(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func scanUsageStat(row pgx.Row) (UsageStat, error) {
	var i UsageStat
	err := row.Scan(
		&i.Instance,
		&i.Year,
		&i.Month,
		&i.NumCheckouts,
		&i.NumRenewals,
		&i.NumEarlyReturns,
		&i.NumHoldsPlaced,
		&i.NumHoldsCancelled,
		&i.NumHoldsFrozen,
		&i.NumHoldsThawed,
		&i.NumApiErrors,
		&i.NumConnectionFailures,
	)
	return i, err
}

const getRecordUsage = `SELECT record_id, instance, year, month, times_checked_out, times_held
FROM record_usage WHERE record_id = $1 AND instance = $2 AND year = $3 AND month = $4`

func (q *Queries) GetRecordUsage(ctx context.Context, db DBTX, recordId string, instance string, year int32, month int32) (RecordUsage, error) {
	var i RecordUsage
	err := db.QueryRow(ctx, getRecordUsage, recordId, instance, year, month).
		Scan(&i.RecordID, &i.Instance, &i.Year, &i.Month, &i.TimesCheckedOut, &i.TimesHeld)
	return i, err
}
