package koha

import (
	"database/sql"
	"time"

	extctx "github.com/indexdata/patronlink/common"
	_ "github.com/lib/pq"
)

// Borrower mirrors the columns read from the borrowers table.
type Borrower struct {
	BorrowerNumber string
	CardNumber     sql.NullString
	Surname        sql.NullString
	FirstName      sql.NullString
	Address        sql.NullString
	City           sql.NullString
	Email          sql.NullString
	Phone          sql.NullString
	CategoryCode   sql.NullString
	BranchCode     sql.NullString
	DateExpiry     sql.NullString
	UserID         sql.NullString
}

type IssueRow struct {
	IssueID        string
	BiblioNumber   sql.NullString
	ItemNumber     sql.NullString
	Title          sql.NullString
	Author         sql.NullString
	CallNumber     sql.NullString
	ItemType       sql.NullString
	DateDue        sql.NullTime
	IssueDate      sql.NullTime
	Renewals       sql.NullInt64
	AutoRenew      bool
	AutoRenewError sql.NullString
}

type ReserveRow struct {
	ReserveID      string
	BiblioNumber   sql.NullString
	ItemNumber     sql.NullString
	Title          sql.NullString
	Author         sql.NullString
	CallNumber     sql.NullString
	BranchCode     sql.NullString
	Priority       sql.NullInt64
	Found          sql.NullString
	Suspend        bool
	SuspendUntil   sql.NullTime
	ReserveDate    sql.NullTime
	ExpirationDate sql.NullTime
}

type AccountLineRow struct {
	AccountLinesID    string
	Date              sql.NullTime
	AccountType       sql.NullString
	Description       sql.NullString
	Amount            float64
	AmountOutstanding float64
}

type SuggestionRow struct {
	SuggestionID  string
	Title         sql.NullString
	Author        sql.NullString
	ItemType      sql.NullString
	Note          sql.NullString
	Status        sql.NullString
	Reason        sql.NullString
	SuggestedDate sql.NullTime
}

type MessagingRow struct {
	AttributeID   int
	Name          string
	TransportType string
	Selected      bool
	DaysInAdvance sql.NullInt64
}

type ItemRow struct {
	ItemNumber string
	Barcode    sql.NullString
	CallNumber sql.NullString
	Branch     sql.NullString
}

type HistoryRow struct {
	BiblioNumber sql.NullString
	Title        sql.NullString
	Author       sql.NullString
	IssueDate    sql.NullTime
	ReturnDate   sql.NullTime
}

// VendorDB is the read side of the adapter, backed by a replica of the
// vendor's relational schema. Kept narrow so tests can fake it.
type VendorDB interface {
	SystemPreference(ctx extctx.ExtendedContext, name string) (string, error)
	SystemPreferencesLike(ctx extctx.ExtendedContext, pattern string) (map[string]string, error)
	BorrowerByID(ctx extctx.ExtendedContext, borrowerNumber string) (Borrower, error)
	LookupBorrower(ctx extctx.ExtendedContext, barcodeOrUserID string) (Borrower, error)
	Issues(ctx extctx.ExtendedContext, borrowerNumber string) ([]IssueRow, error)
	IssueCounts(ctx extctx.ExtendedContext, borrowerNumber string) (total int, overdue int, err error)
	Reserves(ctx extctx.ExtendedContext, borrowerNumber string) ([]ReserveRow, error)
	ItemsForBiblio(ctx extctx.ExtendedContext, biblioNumber string) ([]ItemRow, error)
	ReserveCounts(ctx extctx.ExtendedContext, borrowerNumber string) (available int, unavailable int, err error)
	Fines(ctx extctx.ExtendedContext, borrowerNumber string) ([]AccountLineRow, error)
	OutstandingFineTotal(ctx extctx.ExtendedContext, borrowerNumber string) (float64, error)
	Suggestions(ctx extctx.ExtendedContext, borrowerNumber string) ([]SuggestionRow, error)
	SuggestionCount(ctx extctx.ExtendedContext, borrowerNumber string) (int, error)
	MessagingPreferences(ctx extctx.ExtendedContext, borrowerNumber string) ([]MessagingRow, error)
	ReadingHistory(ctx extctx.ExtendedContext, borrowerNumber string) ([]HistoryRow, error)
	ReadingHistoryDisabled(ctx extctx.ExtendedContext, borrowerNumber string) (bool, error)
	AutoRenewalEnabled(ctx extctx.ExtendedContext, borrowerNumber string) (bool, error)
}

// SqlVendorDB reads the vendor replica through database/sql.
type SqlVendorDB struct {
	DB *sql.DB
}

func OpenVendorDB(connStr string) (*SqlVendorDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &SqlVendorDB{DB: db}, nil
}

func (v *SqlVendorDB) SystemPreference(ctx extctx.ExtendedContext, name string) (string, error) {
	var value sql.NullString
	err := v.DB.QueryRowContext(ctx, "SELECT value FROM systempreferences WHERE variable = $1", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value.String, err
}

func (v *SqlVendorDB) SystemPreferencesLike(ctx extctx.ExtendedContext, pattern string) (map[string]string, error) {
	rows, err := v.DB.QueryContext(ctx, "SELECT variable, value FROM systempreferences WHERE variable LIKE $1", pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	prefs := map[string]string{}
	for rows.Next() {
		var variable string
		var value sql.NullString
		if err = rows.Scan(&variable, &value); err != nil {
			return nil, err
		}
		prefs[variable] = value.String
	}
	return prefs, rows.Err()
}

const borrowerColumns = `borrowernumber, cardnumber, surname, firstname, address, city,
 email, phone, categorycode, branchcode, dateexpiry, userid`

func (v *SqlVendorDB) BorrowerByID(ctx extctx.ExtendedContext, borrowerNumber string) (Borrower, error) {
	row := v.DB.QueryRowContext(ctx, "SELECT "+borrowerColumns+" FROM borrowers WHERE borrowernumber = $1", borrowerNumber)
	return scanBorrower(row)
}

func (v *SqlVendorDB) LookupBorrower(ctx extctx.ExtendedContext, barcodeOrUserID string) (Borrower, error) {
	row := v.DB.QueryRowContext(ctx, "SELECT "+borrowerColumns+" FROM borrowers WHERE cardnumber = $1 OR userid = $1", barcodeOrUserID)
	return scanBorrower(row)
}

func scanBorrower(row *sql.Row) (Borrower, error) {
	var b Borrower
	err := row.Scan(&b.BorrowerNumber, &b.CardNumber, &b.Surname, &b.FirstName, &b.Address,
		&b.City, &b.Email, &b.Phone, &b.CategoryCode, &b.BranchCode, &b.DateExpiry, &b.UserID)
	return b, err
}

func (v *SqlVendorDB) Issues(ctx extctx.ExtendedContext, borrowerNumber string) ([]IssueRow, error) {
	rows, err := v.DB.QueryContext(ctx, `SELECT issues.issue_id, items.biblionumber, issues.itemnumber,
 biblio.title, biblio.author, items.itemcallnumber, items.itype,
 issues.date_due, issues.issuedate, issues.renewals, issues.auto_renew, issues.auto_renew_error
 FROM issues
 LEFT JOIN items ON items.itemnumber = issues.itemnumber
 LEFT JOIN biblio ON items.biblionumber = biblio.biblionumber
 WHERE issues.borrowernumber = $1`, borrowerNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []IssueRow
	for rows.Next() {
		var i IssueRow
		if err = rows.Scan(&i.IssueID, &i.BiblioNumber, &i.ItemNumber, &i.Title, &i.Author,
			&i.CallNumber, &i.ItemType, &i.DateDue, &i.IssueDate, &i.Renewals, &i.AutoRenew, &i.AutoRenewError); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) IssueCounts(ctx extctx.ExtendedContext, borrowerNumber string) (int, int, error) {
	var total, overdue int
	err := v.DB.QueryRowContext(ctx,
		"SELECT count(*), count(*) FILTER (WHERE date_due < $2) FROM issues WHERE borrowernumber = $1",
		borrowerNumber, time.Now()).Scan(&total, &overdue)
	return total, overdue, err
}

func (v *SqlVendorDB) Reserves(ctx extctx.ExtendedContext, borrowerNumber string) ([]ReserveRow, error) {
	rows, err := v.DB.QueryContext(ctx, `SELECT reserves.reserve_id, reserves.biblionumber, reserves.itemnumber,
 biblio.title, biblio.author, items.itemcallnumber, reserves.branchcode, reserves.priority,
 reserves.found, reserves.suspend, reserves.suspend_until, reserves.reservedate, reserves.expirationdate
 FROM reserves
 INNER JOIN biblio ON biblio.biblionumber = reserves.biblionumber
 LEFT JOIN items ON items.itemnumber = reserves.itemnumber
 WHERE reserves.borrowernumber = $1`, borrowerNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ReserveRow
	for rows.Next() {
		var r ReserveRow
		if err = rows.Scan(&r.ReserveID, &r.BiblioNumber, &r.ItemNumber, &r.Title, &r.Author,
			&r.CallNumber, &r.BranchCode, &r.Priority, &r.Found, &r.Suspend, &r.SuspendUntil,
			&r.ReserveDate, &r.ExpirationDate); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) ItemsForBiblio(ctx extctx.ExtendedContext, biblioNumber string) ([]ItemRow, error) {
	rows, err := v.DB.QueryContext(ctx,
		"SELECT itemnumber, barcode, itemcallnumber, holdingbranch FROM items WHERE biblionumber = $1", biblioNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ItemRow
	for rows.Next() {
		var i ItemRow
		if err = rows.Scan(&i.ItemNumber, &i.Barcode, &i.CallNumber, &i.Branch); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) ReserveCounts(ctx extctx.ExtendedContext, borrowerNumber string) (int, int, error) {
	var available, unavailable int
	err := v.DB.QueryRowContext(ctx,
		`SELECT count(*) FILTER (WHERE found = 'W'), count(*) FILTER (WHERE found IS DISTINCT FROM 'W')
 FROM reserves WHERE borrowernumber = $1`, borrowerNumber).Scan(&available, &unavailable)
	return available, unavailable, err
}

func (v *SqlVendorDB) Fines(ctx extctx.ExtendedContext, borrowerNumber string) ([]AccountLineRow, error) {
	rows, err := v.DB.QueryContext(ctx, `SELECT accountlines_id, date, accounttype, description,
 amount, amountoutstanding
 FROM accountlines WHERE borrowernumber = $1 AND amountoutstanding > 0 ORDER BY date DESC`, borrowerNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AccountLineRow
	for rows.Next() {
		var f AccountLineRow
		if err = rows.Scan(&f.AccountLinesID, &f.Date, &f.AccountType, &f.Description,
			&f.Amount, &f.AmountOutstanding); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) OutstandingFineTotal(ctx extctx.ExtendedContext, borrowerNumber string) (float64, error) {
	var total sql.NullFloat64
	err := v.DB.QueryRowContext(ctx,
		"SELECT SUM(amountoutstanding) FROM accountlines WHERE borrowernumber = $1", borrowerNumber).Scan(&total)
	return total.Float64, err
}

func (v *SqlVendorDB) Suggestions(ctx extctx.ExtendedContext, borrowerNumber string) ([]SuggestionRow, error) {
	rows, err := v.DB.QueryContext(ctx, `SELECT suggestionid, title, author, itemtype, note,
 status, reason, suggesteddate
 FROM suggestions WHERE suggestedby = $1`, borrowerNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SuggestionRow
	for rows.Next() {
		var s SuggestionRow
		if err = rows.Scan(&s.SuggestionID, &s.Title, &s.Author, &s.ItemType, &s.Note,
			&s.Status, &s.Reason, &s.SuggestedDate); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) SuggestionCount(ctx extctx.ExtendedContext, borrowerNumber string) (int, error) {
	var count int
	err := v.DB.QueryRowContext(ctx,
		"SELECT count(*) FROM suggestions WHERE suggestedby = $1", borrowerNumber).Scan(&count)
	return count, err
}

func (v *SqlVendorDB) MessagingPreferences(ctx extctx.ExtendedContext, borrowerNumber string) ([]MessagingRow, error) {
	rows, err := v.DB.QueryContext(ctx, `SELECT ma.message_attribute_id, ma.message_name, mt.message_transport_type,
 bmtp.borrower_message_preference_id IS NOT NULL, bmp.days_in_advance
 FROM message_attributes ma
 JOIN message_transports mt ON mt.message_attribute_id = ma.message_attribute_id
 LEFT JOIN borrower_message_preferences bmp
  ON bmp.message_attribute_id = ma.message_attribute_id AND bmp.borrowernumber = $1
 LEFT JOIN borrower_message_transport_preferences bmtp
  ON bmtp.borrower_message_preference_id = bmp.borrower_message_preference_id
  AND bmtp.message_transport_type = mt.message_transport_type`, borrowerNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MessagingRow
	for rows.Next() {
		var m MessagingRow
		if err = rows.Scan(&m.AttributeID, &m.Name, &m.TransportType, &m.Selected, &m.DaysInAdvance); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) ReadingHistory(ctx extctx.ExtendedContext, borrowerNumber string) ([]HistoryRow, error) {
	rows, err := v.DB.QueryContext(ctx, `SELECT items.biblionumber, biblio.title, biblio.author, issues.issuedate, NULL::timestamp
 FROM issues
 LEFT JOIN items ON items.itemnumber = issues.itemnumber
 LEFT JOIN biblio ON items.biblionumber = biblio.biblionumber
 WHERE issues.borrowernumber = $1
 UNION ALL
 SELECT items.biblionumber, biblio.title, biblio.author, old_issues.issuedate, old_issues.returndate
 FROM old_issues
 LEFT JOIN items ON items.itemnumber = old_issues.itemnumber
 LEFT JOIN biblio ON items.biblionumber = biblio.biblionumber
 WHERE old_issues.borrowernumber = $1`, borrowerNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err = rows.Scan(&h.BiblioNumber, &h.Title, &h.Author, &h.IssueDate, &h.ReturnDate); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (v *SqlVendorDB) ReadingHistoryDisabled(ctx extctx.ExtendedContext, borrowerNumber string) (bool, error) {
	var disabled bool
	err := v.DB.QueryRowContext(ctx,
		"SELECT disable_reading_history FROM borrowers WHERE borrowernumber = $1", borrowerNumber).Scan(&disabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return disabled, err
}

func (v *SqlVendorDB) AutoRenewalEnabled(ctx extctx.ExtendedContext, borrowerNumber string) (bool, error) {
	var enabled bool
	err := v.DB.QueryRowContext(ctx,
		"SELECT autorenew_checkouts FROM borrowers WHERE borrowernumber = $1", borrowerNumber).Scan(&enabled)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return enabled, err
}
