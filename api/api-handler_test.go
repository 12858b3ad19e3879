package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/indexdata/patronlink/account_db"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/model"
	"github.com/indexdata/patronlink/registry"
	"github.com/stretchr/testify/assert"
)

// stubDriver answers the core operations with canned results and records the
// hold dispatch so the handler's routing can be asserted.
type stubDriver struct {
	driver.Unsupported
	checkoutsErr  bool
	itemHoldCalls int
	holdCalls     int
}

func (d *stubDriver) Login(ctx common.ExtendedContext, username string, password string) (*model.Patron, driver.LoginResult) {
	if password != "pin" {
		return nil, driver.LoginResult{Result: driver.Fail("The password you entered is incorrect."), InvalidPassword: true}
	}
	return &model.Patron{Id: "p1", Barcode: username}, driver.LoginResult{Result: driver.Ok("")}
}

func (d *stubDriver) Checkouts(ctx common.ExtendedContext, patron *model.Patron) ([]model.Checkout, error) {
	if d.checkoutsErr {
		return nil, errors.New("replica down")
	}
	return []model.Checkout{{Source: "koha", RecordId: "b1", Title: "A Book"}}, nil
}

func (d *stubDriver) Holds(ctx common.ExtendedContext, patron *model.Patron) (model.HoldSet, error) {
	return model.HoldSet{Available: []model.Hold{}, Unavailable: []model.Hold{}}, nil
}

func (d *stubDriver) PlaceHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, pickupLocation string, cancelDate string) driver.HoldResult {
	d.holdCalls++
	return driver.HoldResult{Result: driver.Ok("Your hold was placed successfully.")}
}

func (d *stubDriver) PlaceItemHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string, pickupLocation string) driver.HoldResult {
	d.itemHoldCalls++
	return driver.HoldResult{Result: driver.Ok("Your hold was placed successfully.")}
}

func (d *stubDriver) CancelHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, holdId string) driver.Result {
	return driver.Ok("Cancelled 1 hold successfully.")
}

func (d *stubDriver) RenewCheckout(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string) driver.RenewResult {
	return driver.RenewResult{Result: driver.Ok("Your item was successfully renewed."), NewDueDate: "2026-09-30"}
}

func (d *stubDriver) AccountSummary(ctx common.ExtendedContext, patron *model.Patron, forceRefresh bool) (*model.AccountSummary, error) {
	return &model.AccountSummary{NumCheckedOut: 2}, nil
}

func (d *stubDriver) Capabilities() driver.Capabilities {
	return driver.Capabilities{NativeReadingHistory: true, ForgotPasswordType: driver.ForgotPasswordEmailResetLink}
}

type stubCreator struct {
	driver driver.Driver
	err    error
}

func (c *stubCreator) GetDriver(ctx common.ExtendedContext, libraryId string) (driver.Driver, *account_db.AccountProfile, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	return c.driver, &account_db.AccountProfile{ID: "profile1"}, nil
}

type stubRepo struct {
	stats    []account_db.UsageStat
	statsErr error
	lastCql  *string
}

func (f *stubRepo) WithTxFunc(ctx common.ExtendedContext, fn func(account_db.AccountRepo) error) error {
	return fn(f)
}

func (f *stubRepo) SaveAccountProfile(ctx common.ExtendedContext, params account_db.SaveAccountProfileParams) (account_db.AccountProfile, error) {
	return account_db.AccountProfile{}, nil
}

func (f *stubRepo) GetAccountProfileById(ctx common.ExtendedContext, id string) (account_db.AccountProfile, error) {
	return account_db.AccountProfile{}, nil
}

func (f *stubRepo) GetProfileForLibrary(ctx common.ExtendedContext, libraryId string) (account_db.AccountProfile, error) {
	return account_db.AccountProfile{}, nil
}

func (f *stubRepo) SaveScope(ctx common.ExtendedContext, params account_db.SaveScopeParams) (account_db.Scope, error) {
	return account_db.Scope{}, nil
}

func (f *stubRepo) GetAccountSummary(ctx common.ExtendedContext, patronId string, profileId string) (account_db.AccountSummaryRow, error) {
	return account_db.AccountSummaryRow{}, nil
}

func (f *stubRepo) SaveAccountSummary(ctx common.ExtendedContext, params account_db.SaveAccountSummaryParams) (account_db.AccountSummaryRow, error) {
	return account_db.AccountSummaryRow{}, nil
}

func (f *stubRepo) DeleteAccountSummary(ctx common.ExtendedContext, patronId string, profileId string) error {
	return nil
}

func (f *stubRepo) IncrementUsageStat(ctx common.ExtendedContext, params account_db.IncrementUsageStatParams) error {
	return nil
}

func (f *stubRepo) IncrementRecordUsage(ctx common.ExtendedContext, params account_db.IncrementRecordUsageParams) error {
	return nil
}

func (f *stubRepo) GetUsageStat(ctx common.ExtendedContext, instance string, year int32, month int32) (account_db.UsageStat, error) {
	return account_db.UsageStat{}, nil
}

func (f *stubRepo) ListUsageStats(ctx common.ExtendedContext, params account_db.ListUsageStatsParams, cql *string) ([]account_db.UsageStat, error) {
	f.lastCql = cql
	return f.stats, f.statsErr
}

func (f *stubRepo) GetRecordUsage(ctx common.ExtendedContext, recordId string, instance string, year int32, month int32) (account_db.RecordUsage, error) {
	return account_db.RecordUsage{}, nil
}

func newTestMux(creator registry.DriverCreator, repo account_db.AccountRepo) *http.ServeMux {
	handler := NewApiHandler(creator, repo, 10)
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux
}

func postJson(t *testing.T, mux *http.ServeMux, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func TestIndex(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp indexResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Signature, "patronlink")
}

func TestLogin(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	rr := postJson(t, mux, "/login", `{"library":"lib1","username":"29123","password":"pin"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp loginResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Patron)
	assert.Equal(t, "lib1", resp.Patron.HomeLibrary)
}

func TestLoginInvalidPassword(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	rr := postJson(t, mux, "/login", `{"library":"lib1","username":"29123","password":"bad"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp loginResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.True(t, resp.InvalidPassword)
	assert.Nil(t, resp.Patron)
}

func TestNotConnected(t *testing.T) {
	mux := newTestMux(&stubCreator{err: registry.ErrNoProfile}, &stubRepo{})
	rr := postJson(t, mux, "/checkouts", `{"library":"lib1","patron":{"id":"p1"}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp driver.Result
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, common.MsgNotConnected, resp.Message)
}

func TestResolveFailure(t *testing.T) {
	mux := newTestMux(&stubCreator{err: errors.New("db unavailable")}, &stubRepo{})
	rr := postJson(t, mux, "/checkouts", `{"library":"lib1","patron":{"id":"p1"}}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestGetCheckouts(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	rr := postJson(t, mux, "/checkouts", `{"library":"lib1","patron":{"id":"p1"}}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp checkoutsResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, "A Book", resp.Items[0].Title)
}

func TestGetCheckoutsDriverError(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{checkoutsErr: true}}, &stubRepo{})
	rr := postJson(t, mux, "/checkouts", `{"library":"lib1","patron":{"id":"p1"}}`)
	// vendor failures stay behind a 200 with a patron-facing message
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp checkoutsResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, msgAccountUnavailable, resp.Message)
	assert.Empty(t, resp.Items)
}

func TestPlaceHoldDispatch(t *testing.T) {
	stub := &stubDriver{}
	mux := newTestMux(&stubCreator{driver: stub}, &stubRepo{})

	rr := postJson(t, mux, "/holds/place", `{"library":"lib1","patron":{"id":"p1"},"recordId":"b1"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, stub.holdCalls)
	assert.Equal(t, 0, stub.itemHoldCalls)

	// an itemId routes to the item level hold
	rr = postJson(t, mux, "/holds/place", `{"library":"lib1","patron":{"id":"p1"},"recordId":"b1","itemId":"i1"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, stub.itemHoldCalls)
}

func TestUnsupportedOperation(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	rr := postJson(t, mux, "/checkouts/return", `{"library":"lib1","patron":{"id":"p1"},"transactionId":"tx1"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp driver.Result
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, driver.NotSupported().Message, resp.Message)
}

func TestGetCapabilities(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	req := httptest.NewRequest(http.MethodGet, "/capabilities?library=lib1", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp capabilitiesResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.NativeReadingHistory)
	assert.Equal(t, driver.ForgotPasswordEmailResetLink, resp.ForgotPasswordType)
}

func TestBadJsonRequest(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	rr := postJson(t, mux, "/holds", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetStats(t *testing.T) {
	repo := &stubRepo{stats: []account_db.UsageStat{
		{Instance: "koha-main", Year: 2026, Month: 8, NumCheckouts: 12, NumApiErrors: 1},
	}}
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, repo)
	req := httptest.NewRequest(http.MethodGet, "/stats?limit=5&cql=instance%3Dkoha-main", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	var resp usageStatsResponse
	assert.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, int64(12), resp.Items[0].NumCheckouts)
	assert.NotNil(t, repo.lastCql)
	assert.Equal(t, "instance=koha-main", *repo.lastCql)
}

func TestGetStatsBadLimit(t *testing.T) {
	mux := newTestMux(&stubCreator{driver: &stubDriver{}}, &stubRepo{})
	req := httptest.NewRequest(http.MethodGet, "/stats?limit=abc", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
