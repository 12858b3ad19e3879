package model

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Patron is the discovery-side user handed to every driver operation.
type Patron struct {
	Id          string `json:"id"`
	Barcode     string `json:"barcode"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	HomeLibrary string `json:"homeLibrary"`
	// vendor-assigned id, e.g. Koha borrowernumber
	VendorId string `json:"vendorId"`
}

type Checkout struct {
	Source         string    `json:"source"`
	SourceId       string    `json:"sourceId"`
	RecordId       string    `json:"recordId"`
	ItemId         string    `json:"itemId,omitempty"`
	Title          string    `json:"title"`
	Author         string    `json:"author,omitempty"`
	Barcode        string    `json:"barcode,omitempty"`
	CallNumber     string    `json:"callNumber,omitempty"`
	DueDate        time.Time `json:"dueDate"`
	CheckoutDate   time.Time `json:"checkoutDate"`
	RenewCount     int       `json:"renewCount"`
	CanRenew       bool      `json:"canRenew"`
	AutoRenew      bool      `json:"autoRenew"`
	AutoRenewError string    `json:"autoRenewError,omitempty"`
	AccessUrl      string    `json:"accessUrl,omitempty"`
	TransactionId  string    `json:"transactionId,omitempty"`
	Fine           float64   `json:"fine,omitempty"`
	ReturnClaim    string    `json:"returnClaim,omitempty"`
	Format         string    `json:"format,omitempty"`
}

type Hold struct {
	Source         string    `json:"source"`
	SourceId       string    `json:"sourceId"`
	RecordId       string    `json:"recordId"`
	HoldId         string    `json:"holdId"`
	Title          string    `json:"title"`
	Author         string    `json:"author,omitempty"`
	PatronId       string    `json:"patronId"`
	PickupLocation string    `json:"pickupLocation,omitempty"`
	Status         string    `json:"status"`
	Position       int       `json:"position,omitempty"`
	QueueLength    int       `json:"queueLength,omitempty"`
	CreateDate     time.Time `json:"createDate"`
	ExpireDate     time.Time `json:"expireDate"`
	ReactivateDate time.Time `json:"reactivateDate"`
	Available      bool      `json:"available"`
	Cancelable     bool      `json:"cancelable"`
	CanFreeze      bool      `json:"canFreeze"`
	Frozen         bool      `json:"frozen"`
	ItemId         string    `json:"itemId,omitempty"`
}

// Key identifies a hold uniquely across vendors.
func (h *Hold) Key() string {
	return h.Source + h.SourceId + h.PatronId
}

// HoldSet partitions a patron's holds by availability.
type HoldSet struct {
	Available   []Hold `json:"available"`
	Unavailable []Hold `json:"unavailable"`
}

type Fine struct {
	Id                string    `json:"id"`
	Type              string    `json:"type"`
	Reason            string    `json:"reason,omitempty"`
	Message           string    `json:"message,omitempty"`
	Date              time.Time `json:"date"`
	Amount            float64   `json:"amount"`
	AmountOutstanding float64   `json:"amountOutstanding"`
}

func (f *Fine) FormattedAmount() string {
	return FormatCurrency(f.Amount)
}

func (f *Fine) FormattedOutstanding() string {
	return FormatCurrency(f.AmountOutstanding)
}

func FormatCurrency(amount float64) string {
	return "$" + humanize.FormatFloat("#,###.##", amount)
}

type AccountSummary struct {
	NumCheckedOut       int       `json:"numCheckedOut"`
	NumOverdue          int       `json:"numOverdue"`
	NumAvailableHolds   int       `json:"numAvailableHolds"`
	NumUnavailableHolds int       `json:"numUnavailableHolds"`
	TotalFines          float64   `json:"totalFines"`
	ExpirationDate      time.Time `json:"expirationDate"`
	Expired             bool      `json:"expired"`
	ExpireClose         bool      `json:"expireClose"`
	LastLoaded          time.Time `json:"lastLoaded"`
}

func (s *AccountSummary) NumHolds() int {
	return s.NumAvailableHolds + s.NumUnavailableHolds
}

type MessagingPreference struct {
	AttributeId int    `json:"attributeId"`
	Name        string `json:"name"`
	// selected transports keyed by transport type: email, sms, phone, digest
	Transports    map[string]bool `json:"transports"`
	DaysInAdvance int             `json:"daysInAdvance,omitempty"`
}

type MaterialsRequest struct {
	Id          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Format      string    `json:"format,omitempty"`
	Note        string    `json:"note,omitempty"`
	Status      string    `json:"status,omitempty"`
	CreatedDate time.Time `json:"createdDate"`
}

type SelfRegistrationField struct {
	Property string            `json:"property"`
	Label    string            `json:"label"`
	Type     string            `json:"type"`
	Required bool              `json:"required"`
	Options  map[string]string `json:"options,omitempty"`
}

type ReadingHistoryEntry struct {
	RecordId     string    `json:"recordId"`
	Title        string    `json:"title"`
	Author       string    `json:"author,omitempty"`
	Format       string    `json:"format,omitempty"`
	CheckoutDate time.Time `json:"checkoutDate"`
	ReturnDate   time.Time `json:"returnDate"`
}
