package koha

import "encoding/xml"

// ILS-DI responses signal success by the presence of a payload element and
// failure by a code element, never by HTTP status.

type ilsdiAuthResponse struct {
	XMLName xml.Name
	Id      string `xml:"id"`
	Code    string `xml:"code"`
}

type ilsdiHoldResponse struct {
	XMLName        xml.Name
	Title          string `xml:"title"`
	PickupLocation string `xml:"pickup_location"`
	Code           string `xml:"code"`
	Message        string `xml:"message"`
}

type ilsdiCancelResponse struct {
	XMLName xml.Name
	Code    string `xml:"code"`
	Message string `xml:"message"`
}

type ilsdiRenewResponse struct {
	XMLName xml.Name
	Success int    `xml:"success"`
	DateDue string `xml:"date_due"`
	Error   string `xml:"error"`
}

type restSuspension struct {
	EndDate string `json:"end_date,omitempty"`
}

type restCredit struct {
	AccountLinesIds []string `json:"account_lines_ids"`
	Amount          float64  `json:"amount"`
	CreditType      string   `json:"credit_type"`
	PaymentType     string   `json:"payment_type,omitempty"`
	Description     string   `json:"description"`
	Note            string   `json:"note,omitempty"`
}

type restPassword struct {
	Password  string `json:"password"`
	Password2 string `json:"password_2"`
}

type restPatronUpdate struct {
	Surname            string `json:"surname"`
	Address            string `json:"address"`
	City               string `json:"city"`
	LibraryId          string `json:"library_id"`
	CategoryId         string `json:"category_id"`
	AutorenewCheckouts bool   `json:"autorenew_checkouts"`
}
