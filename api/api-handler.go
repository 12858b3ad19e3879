package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/indexdata/patronlink/account_db"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/model"
	"github.com/indexdata/patronlink/registry"
	"github.com/indexdata/patronlink/vcs"
)

var LIMIT_DEFAULT int32 = 10

const msgAccountUnavailable = "Your account information could not be loaded, please try again later."

type ApiHandler struct {
	creator      registry.DriverCreator
	accountRepo  account_db.AccountRepo
	limitDefault int32
}

func NewApiHandler(creator registry.DriverCreator, accountRepo account_db.AccountRepo, limitDefault int32) ApiHandler {
	return ApiHandler{
		creator:      creator,
		accountRepo:  accountRepo,
		limitDefault: limitDefault,
	}
}

func (a *ApiHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.Index)
	mux.HandleFunc("POST /login", a.Login)
	mux.HandleFunc("GET /capabilities", a.GetCapabilities)
	mux.HandleFunc("POST /checkouts", a.GetCheckouts)
	mux.HandleFunc("POST /checkouts/renew", a.RenewCheckout)
	mux.HandleFunc("POST /checkouts/renew_all", a.RenewAll)
	mux.HandleFunc("POST /checkouts/return", a.ReturnCheckout)
	mux.HandleFunc("POST /checkouts/checkout", a.Checkout)
	mux.HandleFunc("POST /holds", a.GetHolds)
	mux.HandleFunc("POST /holds/place", a.PlaceHold)
	mux.HandleFunc("POST /holds/cancel", a.CancelHold)
	mux.HandleFunc("POST /holds/freeze", a.FreezeHold)
	mux.HandleFunc("POST /holds/thaw", a.ThawHold)
	mux.HandleFunc("POST /summary", a.GetAccountSummary)
	mux.HandleFunc("POST /fines", a.GetFines)
	mux.HandleFunc("POST /fines/pay", a.PayFines)
	mux.HandleFunc("POST /patron/update", a.UpdatePatronInfo)
	mux.HandleFunc("POST /patron/pin", a.UpdatePin)
	mux.HandleFunc("POST /patron/auto_renewal", a.UpdateAutoRenewal)
	mux.HandleFunc("POST /register", a.SelfRegister)
	mux.HandleFunc("GET /register/fields", a.GetSelfRegistrationFields)
	mux.HandleFunc("POST /messaging", a.GetMessagingPreferences)
	mux.HandleFunc("POST /messaging/update", a.UpdateMessagingPreferences)
	mux.HandleFunc("POST /materials_requests", a.GetMaterialsRequests)
	mux.HandleFunc("POST /materials_requests/new", a.NewMaterialsRequest)
	mux.HandleFunc("POST /materials_requests/delete", a.DeleteMaterialsRequests)
	mux.HandleFunc("POST /reading_history", a.GetReadingHistory)
	mux.HandleFunc("GET /stats", a.GetStats)
}

func (a *ApiHandler) Index(w http.ResponseWriter, r *http.Request) {
	writeJsonResponse(w, indexResponse{
		Revision:  vcs.GetCommit(),
		Signature: vcs.GetSignature(),
	})
}

// resolve maps the patron's home library to a vendor driver. A missing
// profile is not an error, the caller gets the fixed not-connected result.
func (a *ApiHandler) resolve(ctx common.ExtendedContext, w http.ResponseWriter, library string) (driver.Driver, bool) {
	drv, _, err := a.creator.GetDriver(ctx, library)
	if err != nil {
		if errors.Is(err, registry.ErrNoProfile) {
			writeJsonResponse(w, driver.NotConnected())
			return nil, false
		}
		addInternalError(ctx, w, err)
		return nil, false
	}
	return drv, true
}

func (a *ApiHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	ctx := createCtx("Login", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("Login", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	patron, result := drv.Login(ctx, req.Username, req.Password)
	if patron != nil {
		patron.HomeLibrary = req.Library
	}
	writeJsonResponse(w, loginResponse{LoginResult: result, Patron: patron})
}

func (a *ApiHandler) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	library := r.URL.Query().Get("library")
	ctx := createCtx("GetCapabilities", library)
	drv, ok := a.resolve(ctx, w, library)
	if !ok {
		return
	}
	caps := drv.Capabilities()
	writeJsonResponse(w, capabilitiesResponse{
		NativeReadingHistory: caps.NativeReadingHistory,
		FastRenewAll:         caps.FastRenewAll,
		MaterialsRequests:    caps.MaterialsRequests,
		ShowOutstandingFines: caps.ShowOutstandingFines,
		SelfRegistration:     caps.SelfRegistration,
		MessagingSettings:    caps.MessagingSettings,
		ForgotPasswordType:   caps.ForgotPasswordType,
	})
}

func (a *ApiHandler) GetCheckouts(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	ctx := createCtx("GetCheckouts", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetCheckouts", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	items, err := drv.Checkouts(ctx, &req.Patron)
	if err != nil {
		ctx.Logger().Error("failed to load checkouts", "error", err)
		writeJsonResponse(w, checkoutsResponse{Result: driver.Fail(msgAccountUnavailable), Items: []model.Checkout{}})
		return
	}
	writeJsonResponse(w, checkoutsResponse{Result: driver.Ok(""), Items: items})
}

func (a *ApiHandler) GetHolds(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	ctx := createCtx("GetHolds", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetHolds", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	holds, err := drv.Holds(ctx, &req.Patron)
	if err != nil {
		ctx.Logger().Error("failed to load holds", "error", err)
		writeJsonResponse(w, holdsResponse{Result: driver.Fail(msgAccountUnavailable)})
		return
	}
	writeJsonResponse(w, holdsResponse{Result: driver.Ok(""), Holds: holds})
}

func (a *ApiHandler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	var req placeHoldRequest
	ctx := createCtx("PlaceHold", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("PlaceHold", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	var result driver.HoldResult
	if req.ItemId != "" {
		result = drv.PlaceItemHold(ctx, &req.Patron, req.RecordId, req.ItemId, req.PickupLocation)
	} else {
		result = drv.PlaceHold(ctx, &req.Patron, req.RecordId, req.PickupLocation, req.CancelDate)
	}
	writeJsonResponse(w, result)
}

func (a *ApiHandler) CancelHold(w http.ResponseWriter, r *http.Request) {
	var req cancelHoldRequest
	ctx := createCtx("CancelHold", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("CancelHold", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.CancelHold(ctx, &req.Patron, req.RecordId, req.HoldId))
}

func (a *ApiHandler) FreezeHold(w http.ResponseWriter, r *http.Request) {
	var req freezeHoldRequest
	ctx := createCtx("FreezeHold", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("FreezeHold", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.FreezeHold(ctx, &req.Patron, req.HoldId, req.ReactivationDate))
}

func (a *ApiHandler) ThawHold(w http.ResponseWriter, r *http.Request) {
	var req freezeHoldRequest
	ctx := createCtx("ThawHold", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("ThawHold", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.ThawHold(ctx, &req.Patron, req.HoldId))
}

func (a *ApiHandler) RenewCheckout(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	ctx := createCtx("RenewCheckout", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("RenewCheckout", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.RenewCheckout(ctx, &req.Patron, req.RecordId, req.ItemId))
}

func (a *ApiHandler) RenewAll(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	ctx := createCtx("RenewAll", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("RenewAll", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.RenewAll(ctx, &req.Patron))
}

func (a *ApiHandler) ReturnCheckout(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	ctx := createCtx("ReturnCheckout", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("ReturnCheckout", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.ReturnCheckout(ctx, &req.Patron, req.TransactionId))
}

func (a *ApiHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	ctx := createCtx("Checkout", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("Checkout", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.Checkout(ctx, &req.Patron, req.RecordId))
}

func (a *ApiHandler) GetAccountSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	ctx := createCtx("GetAccountSummary", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetAccountSummary", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	summary, err := drv.AccountSummary(ctx, &req.Patron, req.ForceRefresh)
	if err != nil {
		ctx.Logger().Error("failed to load account summary", "error", err)
		writeJsonResponse(w, summaryResponse{Result: driver.Fail(msgAccountUnavailable)})
		return
	}
	writeJsonResponse(w, summaryResponse{Result: driver.Ok(""), Summary: summary})
}

func (a *ApiHandler) GetFines(w http.ResponseWriter, r *http.Request) {
	var req finesRequest
	ctx := createCtx("GetFines", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetFines", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	items, err := drv.Fines(ctx, &req.Patron, req.IncludeMessages)
	if err != nil {
		ctx.Logger().Error("failed to load fines", "error", err)
		writeJsonResponse(w, finesResponse{Result: driver.Fail(msgAccountUnavailable), Items: []model.Fine{}})
		return
	}
	writeJsonResponse(w, finesResponse{Result: driver.Ok(""), Items: items})
}

func (a *ApiHandler) PayFines(w http.ResponseWriter, r *http.Request) {
	var req payFinesRequest
	ctx := createCtx("PayFines", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("PayFines", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.CompleteFinePayment(ctx, &req.Patron, &req.Payment))
}

func (a *ApiHandler) UpdatePatronInfo(w http.ResponseWriter, r *http.Request) {
	var req updatePatronRequest
	ctx := createCtx("UpdatePatronInfo", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("UpdatePatronInfo", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.UpdatePatronInfo(ctx, &req.Patron, req.Fields))
}

func (a *ApiHandler) UpdatePin(w http.ResponseWriter, r *http.Request) {
	var req updatePinRequest
	ctx := createCtx("UpdatePin", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("UpdatePin", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.UpdatePin(ctx, &req.Patron, req.OldPin, req.NewPin))
}

func (a *ApiHandler) UpdateAutoRenewal(w http.ResponseWriter, r *http.Request) {
	var req autoRenewalRequest
	ctx := createCtx("UpdateAutoRenewal", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("UpdateAutoRenewal", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.UpdateAutoRenewal(ctx, &req.Patron, req.Allow))
}

func (a *ApiHandler) SelfRegister(w http.ResponseWriter, r *http.Request) {
	var req selfRegisterRequest
	ctx := createCtx("SelfRegister", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("SelfRegister", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.SelfRegister(ctx, req.Fields))
}

func (a *ApiHandler) GetSelfRegistrationFields(w http.ResponseWriter, r *http.Request) {
	library := r.URL.Query().Get("library")
	ctx := createCtx("GetSelfRegistrationFields", library)
	drv, ok := a.resolve(ctx, w, library)
	if !ok {
		return
	}
	fields, err := drv.SelfRegistrationFields(ctx)
	if err != nil {
		ctx.Logger().Error("failed to load registration fields", "error", err)
		writeJsonResponse(w, registrationFieldsResponse{Result: driver.Fail(msgAccountUnavailable)})
		return
	}
	writeJsonResponse(w, registrationFieldsResponse{Result: driver.Ok(""), Fields: fields})
}

func (a *ApiHandler) GetMessagingPreferences(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	ctx := createCtx("GetMessagingPreferences", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetMessagingPreferences", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	prefs, err := drv.MessagingPreferences(ctx, &req.Patron)
	if err != nil {
		ctx.Logger().Error("failed to load messaging preferences", "error", err)
		writeJsonResponse(w, messagingResponse{Result: driver.Fail(msgAccountUnavailable)})
		return
	}
	writeJsonResponse(w, messagingResponse{Result: driver.Ok(""), Preferences: prefs})
}

func (a *ApiHandler) UpdateMessagingPreferences(w http.ResponseWriter, r *http.Request) {
	var req updateMessagingRequest
	ctx := createCtx("UpdateMessagingPreferences", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("UpdateMessagingPreferences", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.UpdateMessagingPreferences(ctx, &req.Patron, req.Preferences))
}

func (a *ApiHandler) GetMaterialsRequests(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	ctx := createCtx("GetMaterialsRequests", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetMaterialsRequests", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	items, err := drv.MaterialsRequests(ctx, &req.Patron)
	if err != nil {
		ctx.Logger().Error("failed to load materials requests", "error", err)
		writeJsonResponse(w, materialsRequestsResponse{Result: driver.Fail(msgAccountUnavailable), Items: []model.MaterialsRequest{}})
		return
	}
	count, err := drv.MaterialsRequestCount(ctx, &req.Patron)
	if err != nil {
		count = len(items)
	}
	writeJsonResponse(w, materialsRequestsResponse{Result: driver.Ok(""), Items: items, Count: count})
}

func (a *ApiHandler) NewMaterialsRequest(w http.ResponseWriter, r *http.Request) {
	var req newMaterialsRequest
	ctx := createCtx("NewMaterialsRequest", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("NewMaterialsRequest", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.NewMaterialsRequest(ctx, &req.Patron, &req.Request))
}

func (a *ApiHandler) DeleteMaterialsRequests(w http.ResponseWriter, r *http.Request) {
	var req deleteMaterialsRequest
	ctx := createCtx("DeleteMaterialsRequests", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("DeleteMaterialsRequests", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	writeJsonResponse(w, drv.DeleteMaterialsRequests(ctx, &req.Patron, req.Ids))
}

func (a *ApiHandler) GetReadingHistory(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	ctx := createCtx("GetReadingHistory", "")
	if !readJsonRequest(ctx, w, r, &req) {
		return
	}
	ctx = createCtx("GetReadingHistory", req.Library)
	drv, ok := a.resolve(ctx, w, req.Library)
	if !ok {
		return
	}
	items, err := drv.ReadingHistory(ctx, &req.Patron)
	if err != nil {
		ctx.Logger().Error("failed to load reading history", "error", err)
		writeJsonResponse(w, readingHistoryResponse{Result: driver.Fail(msgAccountUnavailable), Items: []model.ReadingHistoryEntry{}})
		return
	}
	writeJsonResponse(w, readingHistoryResponse{Result: driver.Ok(""), Items: items})
}

func (a *ApiHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := createCtx("GetStats", "")
	limit := a.limitDefault
	if val := r.URL.Query().Get("limit"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			addBadRequestError(ctx, w, err)
			return
		}
		limit = int32(parsed)
	}
	var offset int32
	if val := r.URL.Query().Get("offset"); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 32)
		if err != nil {
			addBadRequestError(ctx, w, err)
			return
		}
		offset = int32(parsed)
	}
	var cql *string
	if val := r.URL.Query().Get("cql"); val != "" {
		cql = &val
	}
	rows, err := a.accountRepo.ListUsageStats(ctx, account_db.ListUsageStatsParams{Limit: limit, Offset: offset}, cql)
	if err != nil {
		addBadRequestError(ctx, w, err)
		return
	}
	resp := usageStatsResponse{Items: []usageStat{}}
	for _, row := range rows {
		resp.Items = append(resp.Items, usageStat{
			Instance:              row.Instance,
			Year:                  row.Year,
			Month:                 row.Month,
			NumCheckouts:          row.NumCheckouts,
			NumRenewals:           row.NumRenewals,
			NumEarlyReturns:       row.NumEarlyReturns,
			NumHoldsPlaced:        row.NumHoldsPlaced,
			NumHoldsCancelled:     row.NumHoldsCancelled,
			NumHoldsFrozen:        row.NumHoldsFrozen,
			NumHoldsThawed:        row.NumHoldsThawed,
			NumApiErrors:          row.NumApiErrors,
			NumConnectionFailures: row.NumConnectionFailures,
		})
	}
	writeJsonResponse(w, resp)
}
