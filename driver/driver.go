package driver

import (
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/model"
)

// Driver is the contract every vendor adapter implements. Operations never
// return vendor errors to callers, failures are folded into the result types
// with a patron-facing message.
type Driver interface {
	Login(ctx common.ExtendedContext, username string, password string) (*model.Patron, LoginResult)
	Checkouts(ctx common.ExtendedContext, patron *model.Patron) ([]model.Checkout, error)
	Holds(ctx common.ExtendedContext, patron *model.Patron) (model.HoldSet, error)
	PlaceHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, pickupLocation string, cancelDate string) HoldResult
	PlaceItemHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string, pickupLocation string) HoldResult
	CancelHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, holdId string) Result
	FreezeHold(ctx common.ExtendedContext, patron *model.Patron, holdId string, reactivationDate string) Result
	ThawHold(ctx common.ExtendedContext, patron *model.Patron, holdId string) Result
	RenewCheckout(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string) RenewResult
	RenewAll(ctx common.ExtendedContext, patron *model.Patron) RenewAllResult
	ReturnCheckout(ctx common.ExtendedContext, patron *model.Patron, transactionId string) Result
	Checkout(ctx common.ExtendedContext, patron *model.Patron, recordId string) CheckoutResult
	AccountSummary(ctx common.ExtendedContext, patron *model.Patron, forceRefresh bool) (*model.AccountSummary, error)
	Fines(ctx common.ExtendedContext, patron *model.Patron, includeMessages bool) ([]model.Fine, error)
	CompleteFinePayment(ctx common.ExtendedContext, patron *model.Patron, payment *Payment) Result
	UpdatePatronInfo(ctx common.ExtendedContext, patron *model.Patron, fields map[string]string) Result
	UpdatePin(ctx common.ExtendedContext, patron *model.Patron, oldPin string, newPin string) Result
	UpdateAutoRenewal(ctx common.ExtendedContext, patron *model.Patron, allow bool) Result
	SelfRegister(ctx common.ExtendedContext, fields map[string]string) SelfRegistrationResult
	SelfRegistrationFields(ctx common.ExtendedContext) ([]model.SelfRegistrationField, error)
	MessagingPreferences(ctx common.ExtendedContext, patron *model.Patron) ([]model.MessagingPreference, error)
	UpdateMessagingPreferences(ctx common.ExtendedContext, patron *model.Patron, prefs []model.MessagingPreference) Result
	NewMaterialsRequest(ctx common.ExtendedContext, patron *model.Patron, request *model.MaterialsRequest) Result
	MaterialsRequests(ctx common.ExtendedContext, patron *model.Patron) ([]model.MaterialsRequest, error)
	MaterialsRequestCount(ctx common.ExtendedContext, patron *model.Patron) (int, error)
	DeleteMaterialsRequests(ctx common.ExtendedContext, patron *model.Patron, ids []string) Result
	ReadingHistory(ctx common.ExtendedContext, patron *model.Patron) ([]model.ReadingHistoryEntry, error)
	Capabilities() Capabilities
}

// Capabilities describes the optional operations a vendor supports so the
// caller can hide what would only ever return a not-supported result.
type Capabilities struct {
	NativeReadingHistory bool
	FastRenewAll         bool
	MaterialsRequests    bool
	ShowOutstandingFines bool
	SelfRegistration     bool
	MessagingSettings    bool
	// none, emailResetLink or pinReset
	ForgotPasswordType string
}

const (
	ForgotPasswordNone           = "none"
	ForgotPasswordEmailResetLink = "emailResetLink"
	ForgotPasswordPinReset       = "pinReset"
)

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type LoginResult struct {
	Result
	// wrong password as opposed to unknown user
	InvalidPassword bool `json:"invalidPassword,omitempty"`
}

type HoldResult struct {
	Result
	// vendor requires the hold on a specific item, caller should re-ask with an item
	NeedsItemLevelHold bool           `json:"needsItemLevelHold,omitempty"`
	Items              []HoldableItem `json:"items,omitempty"`
	QueuePosition      int            `json:"queuePosition,omitempty"`
	HoldId             string         `json:"holdId,omitempty"`
	// title was available, the hold was converted into a checkout
	ConvertedToCheckout bool `json:"convertedToCheckout,omitempty"`
}

type HoldableItem struct {
	ItemId     string `json:"itemId"`
	Barcode    string `json:"barcode,omitempty"`
	CallNumber string `json:"callNumber,omitempty"`
	Location   string `json:"location,omitempty"`
}

type CheckoutResult struct {
	Result
	// no copies left, caller should offer a hold instead
	NoCopies      bool   `json:"noCopies,omitempty"`
	TransactionId string `json:"transactionId,omitempty"`
	AccessUrl     string `json:"accessUrl,omitempty"`
}

type RenewResult struct {
	Result
	NewDueDate string `json:"newDueDate,omitempty"`
}

type RenewAllResult struct {
	Result
	Renewed int `json:"renewed"`
	Failed  int `json:"failed"`
}

type SelfRegistrationResult struct {
	Result
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Payment carries fine lines being settled. A line covering the whole
// outstanding amount is grouped with other fully paid lines, a partial line
// is settled on its own.
type Payment struct {
	Id        string        `json:"id"`
	TotalPaid float64       `json:"totalPaid"`
	Lines     []PaymentLine `json:"lines"`
}

type PaymentLine struct {
	FineId string  `json:"fineId"`
	Amount float64 `json:"amount"`
	// true when Amount is less than the outstanding amount of the fine
	Partial bool `json:"partial,omitempty"`
}

func Ok(message string) Result {
	return Result{Success: true, Message: message}
}

func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// NotSupported is the fixed result for operations a vendor does not implement.
func NotSupported() Result {
	return Result{Success: false, Message: "this library system does not support the requested action"}
}

// NotConnected is the fixed result when vendor settings cannot be resolved.
func NotConnected() Result {
	return Result{Success: false, Message: common.MsgNotConnected}
}
