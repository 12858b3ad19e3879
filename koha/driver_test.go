package koha

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/indexdata/patronlink/cache"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/model"
	"github.com/indexdata/patronlink/stats"
	"github.com/stretchr/testify/assert"
)

func testCtx() common.ExtendedContext {
	return common.CreateExtCtxWithArgs(context.Background(), nil)
}

func testPatron() *model.Patron {
	return &model.Patron{Id: "42", Barcode: "29123", Password: "pin", VendorId: "42"}
}

// fakeVendorDB is an in-memory VendorDB for driver tests.
type fakeVendorDB struct {
	prefs        map[string]string
	borrowers    map[string]Borrower
	lookupErr    error
	issues       []IssueRow
	reserves     []ReserveRow
	items        []ItemRow
	fines        []AccountLineRow
	fineTotal    float64
	suggestions  []SuggestionRow
	messaging    []MessagingRow
	history      []HistoryRow
	historyOff   bool
	numCheckouts int
	numOverdue   int
	numAvailable int
	numPending   int
	autoRenew    bool
}

func (f *fakeVendorDB) SystemPreference(ctx common.ExtendedContext, name string) (string, error) {
	return f.prefs[name], nil
}

func (f *fakeVendorDB) SystemPreferencesLike(ctx common.ExtendedContext, pattern string) (map[string]string, error) {
	return f.prefs, nil
}

func (f *fakeVendorDB) BorrowerByID(ctx common.ExtendedContext, borrowerNumber string) (Borrower, error) {
	if b, ok := f.borrowers[borrowerNumber]; ok {
		return b, nil
	}
	return Borrower{}, sql.ErrNoRows
}

func (f *fakeVendorDB) LookupBorrower(ctx common.ExtendedContext, barcodeOrUserID string) (Borrower, error) {
	if f.lookupErr != nil {
		return Borrower{}, f.lookupErr
	}
	return Borrower{BorrowerNumber: "42"}, nil
}

func (f *fakeVendorDB) Issues(ctx common.ExtendedContext, borrowerNumber string) ([]IssueRow, error) {
	return f.issues, nil
}

func (f *fakeVendorDB) IssueCounts(ctx common.ExtendedContext, borrowerNumber string) (int, int, error) {
	return f.numCheckouts, f.numOverdue, nil
}

func (f *fakeVendorDB) Reserves(ctx common.ExtendedContext, borrowerNumber string) ([]ReserveRow, error) {
	return f.reserves, nil
}

func (f *fakeVendorDB) ItemsForBiblio(ctx common.ExtendedContext, biblioNumber string) ([]ItemRow, error) {
	return f.items, nil
}

func (f *fakeVendorDB) ReserveCounts(ctx common.ExtendedContext, borrowerNumber string) (int, int, error) {
	return f.numAvailable, f.numPending, nil
}

func (f *fakeVendorDB) Fines(ctx common.ExtendedContext, borrowerNumber string) ([]AccountLineRow, error) {
	return f.fines, nil
}

func (f *fakeVendorDB) OutstandingFineTotal(ctx common.ExtendedContext, borrowerNumber string) (float64, error) {
	return f.fineTotal, nil
}

func (f *fakeVendorDB) Suggestions(ctx common.ExtendedContext, borrowerNumber string) ([]SuggestionRow, error) {
	return f.suggestions, nil
}

func (f *fakeVendorDB) SuggestionCount(ctx common.ExtendedContext, borrowerNumber string) (int, error) {
	return len(f.suggestions), nil
}

func (f *fakeVendorDB) MessagingPreferences(ctx common.ExtendedContext, borrowerNumber string) ([]MessagingRow, error) {
	return f.messaging, nil
}

func (f *fakeVendorDB) ReadingHistory(ctx common.ExtendedContext, borrowerNumber string) ([]HistoryRow, error) {
	return f.history, nil
}

func (f *fakeVendorDB) ReadingHistoryDisabled(ctx common.ExtendedContext, borrowerNumber string) (bool, error) {
	return f.historyOff, nil
}

func (f *fakeVendorDB) AutoRenewalEnabled(ctx common.ExtendedContext, borrowerNumber string) (bool, error) {
	return f.autoRenew, nil
}

func newFakeDB() *fakeVendorDB {
	return &fakeVendorDB{
		prefs: map[string]string{},
		borrowers: map[string]Borrower{
			"42": {
				BorrowerNumber: "42",
				Surname:        sql.NullString{String: "Smith", Valid: true},
				FirstName:      sql.NullString{String: "Pat", Valid: true},
				Email:          sql.NullString{String: "pat@example.com", Valid: true},
				BranchCode:     sql.NullString{String: "MAIN", Valid: true},
			},
		},
	}
}

func newTestDriver(ilsdiUrl string, apiUrl string, db VendorDB, tracker stats.Tracker, summaries cache.SummaryCache) *Driver {
	return NewDriver(Config{
		ApiUrl:        apiUrl,
		IlsDiUrl:      ilsdiUrl,
		ClientID:      "client",
		ClientSecret:  "secret",
		BarcodePrefix: "29",
		ProfileId:     "profile1",
	}, db, tracker, summaries)
}

func ilsdiServer(t *testing.T, handler func(service string, query map[string]string) string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := map[string]string{}
		for key, vals := range r.URL.Query() {
			query[key] = vals[0]
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(handler(query["service"], query)))
	}))
}

func TestLoginWithBarcodePrefixRetry(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		assert.Equal(t, "AuthenticatePatron", service)
		if query["username"] == "29123" && query["password"] == "pin" {
			return `<AuthenticatePatron><id>42</id></AuthenticatePatron>`
		}
		return `<AuthenticatePatron><code>PatronNotFound</code></AuthenticatePatron>`
	})
	defer server.Close()
	d := newTestDriver(server.URL, "", newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())

	// bare username authenticates on the prefixed retry
	patron, result := d.Login(testCtx(), "123", "pin")
	assert.True(t, result.Success)
	assert.NotNil(t, patron)
	assert.Equal(t, "42", patron.VendorId)
	assert.Equal(t, "29123", patron.Barcode)
	assert.Equal(t, "Smith", patron.LastName)
}

func TestLoginInvalidPassword(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		return `<AuthenticatePatron><code>PatronNotFound</code></AuthenticatePatron>`
	})
	defer server.Close()
	db := newFakeDB()
	d := newTestDriver(server.URL, "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	// the barcode exists, so the password must be wrong
	patron, result := d.Login(testCtx(), "123", "wrong")
	assert.Nil(t, patron)
	assert.False(t, result.Success)
	assert.True(t, result.InvalidPassword)
	assert.Equal(t, "The password you entered is incorrect.", result.Message)
}

func TestLoginUnknownPatron(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		return `<AuthenticatePatron><code>PatronNotFound</code></AuthenticatePatron>`
	})
	defer server.Close()
	db := newFakeDB()
	db.lookupErr = sql.ErrNoRows
	d := newTestDriver(server.URL, "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	patron, result := d.Login(testCtx(), "nobody", "pin")
	assert.Nil(t, patron)
	assert.False(t, result.Success)
	assert.False(t, result.InvalidPassword)
	assert.Equal(t, "Unable to find a patron with that barcode or username.", result.Message)
}

func TestCheckoutsAutoRenew(t *testing.T) {
	db := newFakeDB()
	db.prefs["OpacRenewalAllowed"] = "1"
	due := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	db.issues = []IssueRow{
		{
			IssueID:      "i1",
			BiblioNumber: sql.NullString{String: "b1", Valid: true},
			Title:        sql.NullString{String: "Manual Renewal", Valid: true},
			DateDue:      sql.NullTime{Time: due, Valid: true},
		},
		{
			IssueID:        "i2",
			BiblioNumber:   sql.NullString{String: "b2", Valid: true},
			Title:          sql.NullString{String: "Auto Renewal", Valid: true},
			DateDue:        sql.NullTime{Time: due, Valid: true},
			AutoRenew:      true,
			AutoRenewError: sql.NullString{String: "auto_too_soon", Valid: true},
		},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	checkouts, err := d.Checkouts(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Len(t, checkouts, 2)
	assert.True(t, checkouts[0].CanRenew)
	assert.False(t, checkouts[1].CanRenew)
	assert.Equal(t, "If eligible, this item will renew on 09/15/2026", checkouts[1].AutoRenewError)
}

func TestHoldsStatuses(t *testing.T) {
	db := newFakeDB()
	until := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	db.reserves = []ReserveRow{
		{ReserveID: "r1", Found: sql.NullString{String: "W", Valid: true}},
		{ReserveID: "r2", Found: sql.NullString{String: "T", Valid: true}},
		{ReserveID: "r3", Suspend: true, SuspendUntil: sql.NullTime{Time: until, Valid: true}},
		{ReserveID: "r4", Priority: sql.NullInt64{Int64: 5, Valid: true}},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	holds, err := d.Holds(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Len(t, holds.Available, 1)
	assert.Len(t, holds.Unavailable, 3)
	ready := holds.Available[0]
	assert.Equal(t, "Ready to Pickup", ready.Status)
	assert.False(t, ready.Cancelable)
	assert.Equal(t, "In Transit", holds.Unavailable[0].Status)
	suspended := holds.Unavailable[1]
	assert.Equal(t, "Suspended until 10/01/2026", suspended.Status)
	assert.True(t, suspended.Frozen)
	pending := holds.Unavailable[2]
	assert.Equal(t, "Pending", pending.Status)
	assert.True(t, pending.CanFreeze)
	assert.Equal(t, 5, pending.Position)
}

func TestPlaceHoldQueuePosition(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		assert.Equal(t, "HoldTitle", service)
		assert.Equal(t, "42", query["patron_id"])
		assert.Equal(t, "b1", query["bib_id"])
		return `<HoldTitle><title>A Title</title><pickup_location>MAIN</pickup_location></HoldTitle>`
	})
	defer server.Close()
	db := newFakeDB()
	db.reserves = []ReserveRow{
		{ReserveID: "r1", BiblioNumber: sql.NullString{String: "b1", Valid: true}, Priority: sql.NullInt64{Int64: 2, Valid: true}},
	}
	tracker := stats.NewMemTracker()
	d := newTestDriver(server.URL, "", db, tracker, cache.NewMemSummaryCache())

	result := d.PlaceHold(testCtx(), testPatron(), "b1", "MAIN", "")
	assert.True(t, result.Success)
	assert.Equal(t, "Your hold was placed successfully.  You are number 2 in the queue.", result.Message)
	assert.Equal(t, 2, result.QueuePosition)
	assert.Equal(t, "r1", result.HoldId)
	assert.Equal(t, int64(1), tracker.Counters[stats.NumHoldsPlaced])
	assert.Equal(t, int64(1), tracker.Records["b1:"+stats.TimesHeld])
}

func TestPlaceHoldFailure(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		return `<HoldTitle><code>NotHoldable</code></HoldTitle>`
	})
	defer server.Close()
	tracker := stats.NewMemTracker()
	d := newTestDriver(server.URL, "", newFakeDB(), tracker, cache.NewMemSummaryCache())

	result := d.PlaceHold(testCtx(), testPatron(), "b1", "MAIN", "")
	assert.False(t, result.Success)
	assert.Equal(t, "Your hold could not be placed. NotHoldable", result.Message)
	assert.Equal(t, int64(1), tracker.Counters[stats.NumApiErrors])
}

func TestPlaceHoldItemLevelForced(t *testing.T) {
	db := newFakeDB()
	db.prefs["OPACItemHolds"] = "force"
	db.items = []ItemRow{
		{ItemNumber: "i1", Barcode: sql.NullString{String: "31000000001", Valid: true}, Branch: sql.NullString{String: "MAIN", Valid: true}},
		{ItemNumber: "i2", Barcode: sql.NullString{String: "31000000002", Valid: true}},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.PlaceHold(testCtx(), testPatron(), "b1", "MAIN", "")
	assert.False(t, result.Success)
	assert.True(t, result.NeedsItemLevelHold)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, "i1", result.Items[0].ItemId)
	assert.Equal(t, "MAIN", result.Items[0].Location)
}

func TestPlaceHoldBlockedByFines(t *testing.T) {
	db := newFakeDB()
	db.prefs["MaxOutstanding"] = "5"
	db.fineTotal = 12.50
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.PlaceHold(testCtx(), testPatron(), "b1", "MAIN", "")
	assert.False(t, result.Success)
	assert.Equal(t, "Sorry, your account has too many outstanding fines to place holds.", result.Message)
}

func TestPlaceItemHold(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		assert.Equal(t, "HoldItem", service)
		assert.Equal(t, "i1", query["item_id"])
		return `<HoldItem><pickup_location>MAIN</pickup_location></HoldItem>`
	})
	defer server.Close()
	d := newTestDriver(server.URL, "", newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.PlaceItemHold(testCtx(), testPatron(), "b1", "i1", "MAIN")
	assert.True(t, result.Success)
}

func TestCancelHold(t *testing.T) {
	code := "Cancelled"
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		assert.Equal(t, "CancelHold", service)
		return `<CancelHold><code>` + code + `</code></CancelHold>`
	})
	defer server.Close()
	tracker := stats.NewMemTracker()
	d := newTestDriver(server.URL, "", newFakeDB(), tracker, cache.NewMemSummaryCache())

	result := d.CancelHold(testCtx(), testPatron(), "b1", "r1")
	assert.True(t, result.Success)
	assert.Equal(t, "Cancelled 1 hold successfully.", result.Message)
	assert.Equal(t, int64(1), tracker.Counters[stats.NumHoldsCancelled])

	code = "NotFound"
	result = d.CancelHold(testCtx(), testPatron(), "b1", "r1")
	assert.False(t, result.Success)
	assert.Equal(t, "Some holds could not be cancelled.  Please try again later or see your librarian.", result.Message)
}

func TestRenewCheckout(t *testing.T) {
	server := ilsdiServer(t, func(service string, query map[string]string) string {
		assert.Equal(t, "RenewLoan", service)
		if query["item_id"] == "i1" {
			return `<RenewLoan><success>1</success><date_due>2026-09-30</date_due></RenewLoan>`
		}
		return `<RenewLoan><success>0</success><error>too_many</error></RenewLoan>`
	})
	defer server.Close()
	tracker := stats.NewMemTracker()
	d := newTestDriver(server.URL, "", newFakeDB(), tracker, cache.NewMemSummaryCache())

	result := d.RenewCheckout(testCtx(), testPatron(), "b1", "i1")
	assert.True(t, result.Success)
	assert.Equal(t, "Your item was successfully renewed.", result.Message)
	assert.Equal(t, "2026-09-30", result.NewDueDate)
	assert.Equal(t, int64(1), tracker.Counters[stats.NumRenewals])

	result = d.RenewCheckout(testCtx(), testPatron(), "b1", "i2")
	assert.False(t, result.Success)
	assert.Equal(t, "The item could not be renewed.", result.Message)
}

// restServer serves the oauth token endpoint plus the handler for everything else.
func restServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/oauth/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
			return
		}
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		handler(w, r)
	}))
}

func TestCompleteFinePaymentBatching(t *testing.T) {
	var credits []restCredit
	server := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patrons/42/account/credits", r.URL.Path)
		var credit restCredit
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&credit))
		credits = append(credits, credit)
		w.WriteHeader(http.StatusNoContent)
	})
	defer server.Close()
	d := newTestDriver("", server.URL, newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.CompleteFinePayment(testCtx(), testPatron(), &driver.Payment{
		Id:        "pay1",
		TotalPaid: 10,
		Lines: []driver.PaymentLine{
			{FineId: "f1", Amount: 5},
			{FineId: "f2", Amount: 3},
			{FineId: "f3", Amount: 2, Partial: true},
		},
	})
	assert.True(t, result.Success)
	assert.Equal(t, "Your fines have been paid successfully, thank you.", result.Message)
	// fully paid lines go out as one credit, the partial on its own
	assert.Len(t, credits, 2)
	assert.Equal(t, []string{"f1", "f2"}, credits[0].AccountLinesIds)
	assert.Equal(t, 8.0, credits[0].Amount)
	assert.Equal(t, "Payment pay1", credits[0].Note)
	assert.Equal(t, []string{"f3"}, credits[1].AccountLinesIds)
	assert.Equal(t, 2.0, credits[1].Amount)
}

func TestCompleteFinePaymentPartialFailure(t *testing.T) {
	server := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	})
	defer server.Close()
	d := newTestDriver("", server.URL, newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.CompleteFinePayment(testCtx(), testPatron(), &driver.Payment{
		Id:        "pay2",
		TotalPaid: 5,
		Lines:     []driver.PaymentLine{{FineId: "f1", Amount: 5}},
	})
	assert.False(t, result.Success)
	assert.Equal(t, "Your payment could not be fully applied to your account.  Please contact the library.", result.Message)
}

func TestFreezeAndThawHold(t *testing.T) {
	var methods []string
	server := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/holds/r1/suspension", r.URL.Path)
		methods = append(methods, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	defer server.Close()
	tracker := stats.NewMemTracker()
	d := newTestDriver("", server.URL, newFakeDB(), tracker, cache.NewMemSummaryCache())

	result := d.FreezeHold(testCtx(), testPatron(), "r1", "10/01/2026")
	assert.True(t, result.Success)
	assert.Equal(t, "Your hold was frozen successfully.", result.Message)

	result = d.ThawHold(testCtx(), testPatron(), "r1")
	assert.True(t, result.Success)
	assert.Equal(t, "Your hold has been thawed successfully.", result.Message)

	assert.Equal(t, []string{http.MethodPost, http.MethodDelete}, methods)
	assert.Equal(t, int64(1), tracker.Counters[stats.NumHoldsFrozen])
	assert.Equal(t, int64(1), tracker.Counters[stats.NumHoldsThawed])
}

func TestAccountSummaryExpiration(t *testing.T) {
	db := newFakeDB()
	db.numCheckouts = 3
	db.numOverdue = 1
	db.numAvailable = 1
	db.numPending = 2
	db.fineTotal = 4.25
	borrower := db.borrowers["42"]
	borrower.DateExpiry = sql.NullString{String: time.Now().Add(10 * 24 * time.Hour).Format("2006-01-02"), Valid: true}
	db.borrowers["42"] = borrower
	summaries := cache.NewMemSummaryCache()
	d := newTestDriver("", "", db, stats.NewMemTracker(), summaries)

	summary, err := d.AccountSummary(testCtx(), testPatron(), false)
	assert.Nil(t, err)
	assert.Equal(t, 3, summary.NumCheckedOut)
	assert.Equal(t, 1, summary.NumOverdue)
	assert.Equal(t, 3, summary.NumHolds())
	assert.Equal(t, 4.25, summary.TotalFines)
	assert.False(t, summary.Expired)
	assert.True(t, summary.ExpireClose)

	// loaded summary lands in the cache
	cached := summaries.Get(testCtx(), "42", "profile1", time.Minute)
	assert.NotNil(t, cached)
	assert.Equal(t, 3, cached.NumCheckedOut)
}

func TestAccountSummaryCacheHit(t *testing.T) {
	db := newFakeDB()
	db.numCheckouts = 1
	summaries := cache.NewMemSummaryCache()
	d := newTestDriver("", "", db, stats.NewMemTracker(), summaries)

	_, err := d.AccountSummary(testCtx(), testPatron(), false)
	assert.Nil(t, err)
	// the database moved on, the cache answers until it is invalidated
	db.numCheckouts = 7
	summary, err := d.AccountSummary(testCtx(), testPatron(), false)
	assert.Nil(t, err)
	assert.Equal(t, 1, summary.NumCheckedOut)

	summary, err = d.AccountSummary(testCtx(), testPatron(), true)
	assert.Nil(t, err)
	assert.Equal(t, 7, summary.NumCheckedOut)
}

func TestUpdatePinRequiresOldPin(t *testing.T) {
	d := newTestDriver("", "", newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())
	result := d.UpdatePin(testCtx(), testPatron(), "wrong", "new")
	assert.False(t, result.Success)
	assert.Equal(t, "The old PIN provided is incorrect.", result.Message)
}

func TestUpdatePin(t *testing.T) {
	var payload restPassword
	server := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/patrons/42/password", r.URL.Path)
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()
	d := newTestDriver("", server.URL, newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.UpdatePin(testCtx(), testPatron(), "pin", "newpin")
	assert.True(t, result.Success)
	assert.Equal(t, "newpin", payload.Password)
	assert.Equal(t, "newpin", payload.Password2)
}

func TestUpdateAutoRenewal(t *testing.T) {
	var payload restPatronUpdate
	server := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/patrons/42", r.URL.Path)
		assert.Nil(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()
	db := newFakeDB()
	db.autoRenew = true
	d := newTestDriver("", server.URL, db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.UpdateAutoRenewal(testCtx(), testPatron(), true)
	assert.True(t, result.Success)
	assert.True(t, payload.AutorenewCheckouts)
	assert.Equal(t, "Smith", payload.Surname)
}

func TestUpdateAutoRenewalNotApplied(t *testing.T) {
	server := restServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer server.Close()
	// replica still reports the setting off after the update
	db := newFakeDB()
	db.autoRenew = false
	d := newTestDriver("", server.URL, db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	result := d.UpdateAutoRenewal(testCtx(), testPatron(), true)
	assert.False(t, result.Success)
	assert.Equal(t, "Sorry, your auto renewal setting could not be updated.", result.Message)
}

func TestSelfRegistrationFields(t *testing.T) {
	db := newFakeDB()
	db.prefs["PatronSelfRegistrationBorrowerUnwantedField"] = "dateofbirth|borrower_phone"
	db.prefs["PatronSelfRegistrationBorrowerMandatoryField"] = "surname|email"
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	fields, err := d.SelfRegistrationFields(testCtx())
	assert.Nil(t, err)
	byProperty := map[string]model.SelfRegistrationField{}
	for _, field := range fields {
		byProperty[field.Property] = field
	}
	assert.NotContains(t, byProperty, "dateofbirth")
	assert.NotContains(t, byProperty, "phone")
	assert.True(t, byProperty["surname"].Required)
	assert.True(t, byProperty["email"].Required)
	assert.False(t, byProperty["city"].Required)
}

func TestMessagingPreferencesGrouping(t *testing.T) {
	db := newFakeDB()
	db.messaging = []MessagingRow{
		{AttributeID: 1, Name: "Item due", TransportType: "email", Selected: true},
		{AttributeID: 1, Name: "Item due", TransportType: "sms", Selected: false},
		{AttributeID: 2, Name: "Advance notice", TransportType: "email", Selected: true, DaysInAdvance: sql.NullInt64{Int64: 3, Valid: true}},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	prefs, err := d.MessagingPreferences(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Len(t, prefs, 2)
	assert.Equal(t, "Item due", prefs[0].Name)
	assert.True(t, prefs[0].Transports["email"])
	assert.False(t, prefs[0].Transports["sms"])
	assert.Equal(t, 3, prefs[1].DaysInAdvance)
}

func TestMaterialsRequestsStatus(t *testing.T) {
	db := newFakeDB()
	db.suggestions = []SuggestionRow{
		{SuggestionID: "s1", Title: sql.NullString{String: "Wanted Book", Valid: true},
			Status: sql.NullString{String: "REJECTED", Valid: true},
			Reason: sql.NullString{String: "out of print", Valid: true}},
		{SuggestionID: "s2", Status: sql.NullString{String: "ASKED", Valid: true}},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	requests, err := d.MaterialsRequests(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Len(t, requests, 2)
	assert.Equal(t, "Rejected (out of print)", requests[0].Status)
	assert.Equal(t, "Asked", requests[1].Status)

	count, err := d.MaterialsRequestCount(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Equal(t, 2, count)
}

func TestReadingHistoryOptOut(t *testing.T) {
	db := newFakeDB()
	db.history = []HistoryRow{
		{BiblioNumber: sql.NullString{String: "b1", Valid: true}, Title: sql.NullString{String: "Past Read", Valid: true}},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	entries, err := d.ReadingHistory(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "Past Read", entries[0].Title)

	db.historyOff = true
	entries, err = d.ReadingHistory(testCtx(), testPatron())
	assert.Nil(t, err)
	assert.Empty(t, entries)
}

func TestFines(t *testing.T) {
	db := newFakeDB()
	db.fines = []AccountLineRow{
		{AccountLinesID: "a1", AccountType: sql.NullString{String: "F", Valid: true},
			Description: sql.NullString{String: "3 days late", Valid: true}, Amount: 1.5, AmountOutstanding: 1.5},
	}
	d := newTestDriver("", "", db, stats.NewMemTracker(), cache.NewMemSummaryCache())

	fines, err := d.Fines(testCtx(), testPatron(), false)
	assert.Nil(t, err)
	assert.Len(t, fines, 1)
	assert.Equal(t, "Overdue fine", fines[0].Type)
	assert.Equal(t, "3 days late", fines[0].Reason)
	assert.Equal(t, "$1.50", fines[0].FormattedAmount())
}

func TestConvertDate(t *testing.T) {
	assert.Equal(t, "2026-10-01", convertDate("10/01/2026"))
	assert.Equal(t, "", convertDate(""))
	assert.Equal(t, "", convertDate("not a date"))
}

func TestCapabilities(t *testing.T) {
	d := newTestDriver("", "", newFakeDB(), stats.NewMemTracker(), cache.NewMemSummaryCache())
	caps := d.Capabilities()
	assert.True(t, caps.NativeReadingHistory)
	assert.True(t, caps.SelfRegistration)
	assert.Equal(t, driver.ForgotPasswordEmailResetLink, caps.ForgotPasswordType)
}
