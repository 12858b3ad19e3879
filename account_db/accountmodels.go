package account_db

import (
	"github.com/indexdata/go-utils/utils"
	"github.com/jackc/pgx/v5/pgtype"
	"time"
)

// AccountProfile holds the connection settings for one vendor system.
type AccountProfile struct {
	ID             string
	Name           string
	Vendor         string
	ApiUrl         pgtype.Text
	OpacUrl        pgtype.Text
	IlsDiUrl       pgtype.Text
	ClientID       pgtype.Text
	ClientSecret   pgtype.Text
	VendorUsername pgtype.Text
	VendorPassword pgtype.Text
	LibraryPrefix  pgtype.Text
	VendorDbUrl    pgtype.Text
	SummaryTtl     pgtype.Int4
	Timestamp      pgtype.Timestamptz
}

// Scope maps a patron home library to an account profile. A row with the
// default flag set answers lookups that match no library.
type Scope struct {
	ID        string
	LibraryID string
	ProfileID string
	IsDefault bool
}

// AccountSummaryRow is the persisted per patron and profile summary with its
// load stamp, staleness is judged against the profile TTL.
type AccountSummaryRow struct {
	PatronID   string
	ProfileID  string
	Summary    []byte
	LastLoaded pgtype.Timestamptz
}

type UsageStat struct {
	Instance              string
	Year                  int32
	Month                 int32
	NumCheckouts          int64
	NumRenewals           int64
	NumEarlyReturns       int64
	NumHoldsPlaced        int64
	NumHoldsCancelled     int64
	NumHoldsFrozen        int64
	NumHoldsThawed        int64
	NumApiErrors          int64
	NumConnectionFailures int64
}

type RecordUsage struct {
	RecordID        string
	Instance        string
	Year            int32
	Month           int32
	TimesCheckedOut int64
	TimesHeld       int64
}

type SaveAccountProfileParams struct {
	ID             string
	Name           string
	Vendor         string
	ApiUrl         pgtype.Text
	OpacUrl        pgtype.Text
	IlsDiUrl       pgtype.Text
	ClientID       pgtype.Text
	ClientSecret   pgtype.Text
	VendorUsername pgtype.Text
	VendorPassword pgtype.Text
	LibraryPrefix  pgtype.Text
	VendorDbUrl    pgtype.Text
	SummaryTtl     pgtype.Int4
}

type SaveScopeParams struct {
	ID        string
	LibraryID string
	ProfileID string
	IsDefault bool
}

type SaveAccountSummaryParams struct {
	PatronID  string
	ProfileID string
	Summary   []byte
}

type IncrementUsageStatParams struct {
	Instance string
	Year     int32
	Month    int32
	Counter  string
	Delta    int64
}

type IncrementRecordUsageParams struct {
	RecordID string
	Instance string
	Year     int32
	Month    int32
	Counter  string
}

type ListUsageStatsParams struct {
	Limit  int32
	Offset int32
}

var DEFAULT_SUMMARY_TTL = utils.GetEnv("DEFAULT_SUMMARY_TTL", "15m")
var DefaultSummaryTtl = utils.Must(time.ParseDuration(DEFAULT_SUMMARY_TTL))
