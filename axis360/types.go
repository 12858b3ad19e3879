package axis360

import "encoding/xml"

// statusOk is the vendor's success sentinel, anything else carries a
// patron-facing statusMessage.
const statusOk = "0000"

// statusTitleAvailable on addToHold means the title can be checked out right away.
const statusTitleAvailable = "3111"

// statusNoCopies on checkout means all copies are out, a hold should be offered.
const statusNoCopies = "3113"

type Status struct {
	Code          string `xml:"code"`
	StatusMessage string `xml:"statusMessage"`
}

type availability struct {
	IsCheckedout    string `xml:"isCheckedout"`
	IsInHoldQueue   string `xml:"isInHoldQueue"`
	IsReserved      string `xml:"isReserved"`
	IsButtonRenew   string `xml:"IsButtonRenew"`
	CheckoutEndDate string `xml:"checkoutEndDate"`
	TransactionID   string `xml:"transactionID"`
}

type availabilityTitle struct {
	TitleId      string       `xml:"titleId"`
	BookTitle    string       `xml:"bookTitle"`
	Author       string       `xml:"author"`
	TitleUrl     string       `xml:"titleUrl"`
	Availability availability `xml:"availability"`
}

type availabilityResponse struct {
	XMLName xml.Name
	Status  Status              `xml:"status"`
	Titles  []availabilityTitle `xml:"title"`
}

type rawHold struct {
	TitleID         string `xml:"titleID"`
	BookTitle       string `xml:"bookTitle"`
	Author          string `xml:"author"`
	IsAvailable     string `xml:"isAvailable"`
	IsSuspendHold   string `xml:"isSuspendHold"`
	TotalHoldSize   int    `xml:"totalHoldSize"`
	HoldPosition    int    `xml:"holdPosition"`
	ReservedEndDate string `xml:"reservedEndDate"`
}

type getHoldsResponse struct {
	XMLName xml.Name
	Result  struct {
		Status Status `xml:"status"`
		Holds  struct {
			Hold []rawHold `xml:"hold"`
		} `xml:"holds"`
	} `xml:"getHoldsResult"`
}

type addToHoldResponse struct {
	XMLName xml.Name
	Result  struct {
		Status Status `xml:"status"`
	} `xml:"addtoholdResult"`
}

type removeHoldResponse struct {
	XMLName xml.Name
	Result  struct {
		Status Status `xml:"status"`
	} `xml:"removeholdResult"`
}

type holdActionResponse struct {
	XMLName xml.Name
	Result  struct {
		Status Status `xml:"status"`
	} `xml:"HoldResult"`
}

type earlyCheckinResponse struct {
	XMLName xml.Name
	Result  struct {
		Status Status `xml:"status"`
	} `xml:"EarlyCheckinRestResult"`
}

type checkoutResponse struct {
	XMLName xml.Name
	Result  struct {
		Status Status `xml:"status"`
	} `xml:"checkoutResult"`
}

func yes(val string) bool {
	return val == "Y" || val == "y" || val == "true"
}
