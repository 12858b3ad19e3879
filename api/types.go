package api

import (
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/model"
)

// every account operation carries the patron's home library, used to resolve
// the vendor profile, plus the patron handed back by login
type accountRequest struct {
	Library string       `json:"library"`
	Patron  model.Patron `json:"patron"`
}

type loginRequest struct {
	Library  string `json:"library"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	driver.LoginResult
	Patron *model.Patron `json:"patron,omitempty"`
}

type checkoutsResponse struct {
	driver.Result
	Items []model.Checkout `json:"items"`
}

type holdsResponse struct {
	driver.Result
	Holds model.HoldSet `json:"holds"`
}

type placeHoldRequest struct {
	accountRequest
	RecordId       string `json:"recordId"`
	ItemId         string `json:"itemId,omitempty"`
	PickupLocation string `json:"pickupLocation,omitempty"`
	CancelDate     string `json:"cancelDate,omitempty"`
}

type cancelHoldRequest struct {
	accountRequest
	RecordId string `json:"recordId"`
	HoldId   string `json:"holdId"`
}

type freezeHoldRequest struct {
	accountRequest
	HoldId           string `json:"holdId"`
	ReactivationDate string `json:"reactivationDate,omitempty"`
}

type renewRequest struct {
	accountRequest
	RecordId string `json:"recordId"`
	ItemId   string `json:"itemId"`
}

type returnRequest struct {
	accountRequest
	TransactionId string `json:"transactionId"`
}

type checkoutRequest struct {
	accountRequest
	RecordId string `json:"recordId"`
}

type summaryRequest struct {
	accountRequest
	ForceRefresh bool `json:"forceRefresh,omitempty"`
}

type summaryResponse struct {
	driver.Result
	Summary *model.AccountSummary `json:"summary,omitempty"`
}

type finesRequest struct {
	accountRequest
	IncludeMessages bool `json:"includeMessages,omitempty"`
}

type finesResponse struct {
	driver.Result
	Items []model.Fine `json:"items"`
}

type payFinesRequest struct {
	accountRequest
	Payment driver.Payment `json:"payment"`
}

type updatePatronRequest struct {
	accountRequest
	Fields map[string]string `json:"fields"`
}

type updatePinRequest struct {
	accountRequest
	OldPin string `json:"oldPin"`
	NewPin string `json:"newPin"`
}

type autoRenewalRequest struct {
	accountRequest
	Allow bool `json:"allow"`
}

type selfRegisterRequest struct {
	Library string            `json:"library"`
	Fields  map[string]string `json:"fields"`
}

type registrationFieldsResponse struct {
	driver.Result
	Fields []model.SelfRegistrationField `json:"fields"`
}

type messagingResponse struct {
	driver.Result
	Preferences []model.MessagingPreference `json:"preferences"`
}

type updateMessagingRequest struct {
	accountRequest
	Preferences []model.MessagingPreference `json:"preferences"`
}

type newMaterialsRequest struct {
	accountRequest
	Request model.MaterialsRequest `json:"request"`
}

type materialsRequestsResponse struct {
	driver.Result
	Items []model.MaterialsRequest `json:"items"`
	Count int                      `json:"count"`
}

type deleteMaterialsRequest struct {
	accountRequest
	Ids []string `json:"ids"`
}

type readingHistoryResponse struct {
	driver.Result
	Items []model.ReadingHistoryEntry `json:"items"`
}

type capabilitiesResponse struct {
	NativeReadingHistory bool   `json:"nativeReadingHistory"`
	FastRenewAll         bool   `json:"fastRenewAll"`
	MaterialsRequests    bool   `json:"materialsRequests"`
	ShowOutstandingFines bool   `json:"showOutstandingFines"`
	SelfRegistration     bool   `json:"selfRegistration"`
	MessagingSettings    bool   `json:"messagingSettings"`
	ForgotPasswordType   string `json:"forgotPasswordType"`
}

type usageStatsResponse struct {
	Items []usageStat `json:"items"`
}

type usageStat struct {
	Instance              string `json:"instance"`
	Year                  int32  `json:"year"`
	Month                 int32  `json:"month"`
	NumCheckouts          int64  `json:"numCheckouts"`
	NumRenewals           int64  `json:"numRenewals"`
	NumEarlyReturns       int64  `json:"numEarlyReturns"`
	NumHoldsPlaced        int64  `json:"numHoldsPlaced"`
	NumHoldsCancelled     int64  `json:"numHoldsCancelled"`
	NumHoldsFrozen        int64  `json:"numHoldsFrozen"`
	NumHoldsThawed        int64  `json:"numHoldsThawed"`
	NumApiErrors          int64  `json:"numApiErrors"`
	NumConnectionFailures int64  `json:"numConnectionFailures"`
}

type indexResponse struct {
	Revision  string `json:"revision"`
	Signature string `json:"signature"`
}
