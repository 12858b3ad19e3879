package koha

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/indexdata/patronlink/auth"
	"github.com/indexdata/patronlink/cache"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/httpclient"
	"github.com/indexdata/patronlink/model"
	"github.com/indexdata/patronlink/stats"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const SourceName = "koha"

const (
	msgUnableToConnect = "Unable to connect to the library system"
	msgAuthFailed      = "Unable to authenticate with the ILS.  Please try again later or contact the library."
)

type Config struct {
	// REST API base, e.g. https://staff.library.example
	ApiUrl string
	// full ILS-DI endpoint, e.g. https://opac.library.example/cgi-bin/koha/ilsdi.pl
	IlsDiUrl string
	// patron-facing catalog, used for screen-scraped operations
	OpacUrl       string
	ClientID      string
	ClientSecret  string
	BarcodePrefix string
	ProfileId     string
	SummaryTtl    time.Duration
	Timeout       time.Duration
}

// Driver integrates a Koha installation through three surfaces: the REST API
// for authenticated staff operations, ILS-DI for circulation, and direct reads
// of a replica of the vendor schema for account listings. Operations without
// any API land on the OPAC and are screen scraped. Instances are request-scoped.
type Driver struct {
	driver.Unsupported
	config    Config
	db        VendorDB
	tokens    auth.TokenSource
	client    *http.Client
	http      *httpclient.HttpClient
	opac      *auth.OpacSession
	tracker   stats.Tracker
	summaries cache.SummaryCache
	checkouts map[string][]model.Checkout
	holds     map[string]model.HoldSet
}

func NewDriver(config Config, db VendorDB, tracker stats.Tracker, summaries cache.SummaryCache) *Driver {
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.SummaryTtl == 0 {
		config.SummaryTtl = 15 * time.Minute
	}
	return &Driver{
		config:    config,
		db:        db,
		tokens:    auth.NewOAuthClientCredentials(config.ApiUrl+"/api/v1/oauth/token", config.ClientID, config.ClientSecret),
		client:    &http.Client{Timeout: config.Timeout},
		http:      httpclient.NewClient(),
		tracker:   tracker,
		summaries: summaries,
		checkouts: map[string][]model.Checkout{},
		holds:     map[string]model.HoldSet{},
	}
}

func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		NativeReadingHistory: true,
		MaterialsRequests:    true,
		ShowOutstandingFines: true,
		SelfRegistration:     true,
		MessagingSettings:    true,
		ForgotPasswordType:   driver.ForgotPasswordEmailResetLink,
	}
}

func (d *Driver) ilsdi(ctx common.ExtendedContext, params url.Values, res any) error {
	return d.http.GetXml(d.client, d.config.IlsDiUrl+"?"+params.Encode(), res)
}

func (d *Driver) restClient(ctx common.ExtendedContext) (*httpclient.HttpClient, bool) {
	token, err := d.tokens.Get(ctx, d.client)
	if err != nil {
		ctx.Logger().Error("failed to get oauth token", "error", err)
		d.tracker.Increment(ctx, stats.NumConnectionFailures)
		return nil, false
	}
	return httpclient.NewClient().WithHeaders("Authorization", "Bearer "+token.Value), true
}

func (d *Driver) opacSession(ctx common.ExtendedContext, patron *model.Patron) (*auth.OpacSession, error) {
	if d.opac == nil {
		session, err := auth.NewOpacSession(d.config.OpacUrl, d.config.Timeout)
		if err != nil {
			return nil, err
		}
		d.opac = session
	}
	if patron != nil && !d.opac.LoggedIn() {
		if err := d.opac.Login(ctx, patron.Barcode, patron.Password); err != nil {
			return nil, err
		}
	}
	return d.opac, nil
}

func (d *Driver) Login(ctx common.ExtendedContext, username string, password string) (*model.Patron, driver.LoginResult) {
	barcodes := []string{username}
	if d.config.BarcodePrefix != "" && !strings.HasPrefix(username, d.config.BarcodePrefix) {
		barcodes = append(barcodes, d.config.BarcodePrefix+username)
	}
	for _, barcode := range barcodes {
		params := url.Values{}
		params.Set("service", "AuthenticatePatron")
		params.Set("username", barcode)
		params.Set("password", password)
		var res ilsdiAuthResponse
		err := d.ilsdi(ctx, params, &res)
		if err != nil {
			ctx.Logger().Error("patron authentication request failed", "error", err)
			d.tracker.Increment(ctx, stats.NumConnectionFailures)
			return nil, driver.LoginResult{Result: driver.Fail(msgUnableToConnect)}
		}
		if res.Id == "" {
			continue
		}
		borrower, err := d.db.BorrowerByID(ctx, res.Id)
		if err != nil {
			ctx.Logger().Error("failed to load authenticated borrower", "borrowerNumber", res.Id, "error", err)
			return nil, driver.LoginResult{Result: driver.Fail(msgUnableToConnect)}
		}
		return patronFromBorrower(borrower, barcode, password), driver.LoginResult{Result: driver.Ok("")}
	}
	// distinguish a bad password from an unknown account
	_, err := d.db.LookupBorrower(ctx, username)
	if err == nil {
		return nil, driver.LoginResult{
			Result:          driver.Fail("The password you entered is incorrect."),
			InvalidPassword: true,
		}
	}
	if !errors.Is(err, sql.ErrNoRows) {
		ctx.Logger().Error("borrower lookup failed", "error", err)
	}
	return nil, driver.LoginResult{Result: driver.Fail("Unable to find a patron with that barcode or username.")}
}

func patronFromBorrower(b Borrower, barcode string, password string) *model.Patron {
	return &model.Patron{
		Id:          b.BorrowerNumber,
		Barcode:     barcode,
		Username:    b.UserID.String,
		Password:    password,
		FirstName:   b.FirstName.String,
		LastName:    b.Surname.String,
		Email:       b.Email.String,
		Phone:       b.Phone.String,
		HomeLibrary: b.BranchCode.String,
		VendorId:    b.BorrowerNumber,
	}
}

func (d *Driver) Checkouts(ctx common.ExtendedContext, patron *model.Patron) ([]model.Checkout, error) {
	if memo, ok := d.checkouts[patron.Id]; ok {
		return memo, nil
	}
	checkouts := []model.Checkout{}
	renewalAllowed, err := d.db.SystemPreference(ctx, "OpacRenewalAllowed")
	if err != nil {
		return checkouts, fmt.Errorf("failed to read renewal preference: %w", err)
	}
	rows, err := d.db.Issues(ctx, patron.VendorId)
	if err != nil {
		return checkouts, fmt.Errorf("failed to load checkouts: %w", err)
	}
	for _, row := range rows {
		checkout := model.Checkout{
			Source:       SourceName,
			SourceId:     row.IssueID,
			RecordId:     row.BiblioNumber.String,
			Title:        row.Title.String,
			Author:       row.Author.String,
			CallNumber:   row.CallNumber.String,
			Format:       row.ItemType.String,
			DueDate:      row.DateDue.Time,
			CheckoutDate: row.IssueDate.Time,
			RenewCount:   int(row.Renewals.Int64),
			AutoRenew:    row.AutoRenew,
			CanRenew:     !row.AutoRenew && renewalAllowed == "1",
			ItemId:       row.ItemNumber.String,
		}
		if row.AutoRenew && row.AutoRenewError.Valid {
			checkout.AutoRenewError = autoRenewErrorLabel(row.AutoRenewError.String, row.DateDue.Time)
		}
		checkouts = append(checkouts, checkout)
	}
	d.checkouts[patron.Id] = checkouts
	return checkouts, nil
}

func autoRenewErrorLabel(code string, dueDate time.Time) string {
	switch code {
	case "on_reserve":
		return "Cannot auto renew, on hold for another user"
	case "too_many":
		return "Cannot auto renew, too many renewals"
	case "auto_account_expired":
		return "Cannot auto renew, your account has expired"
	case "auto_too_soon":
		return "If eligible, this item will renew on " + dueDate.Format("01/02/2006")
	default:
		return code
	}
}

func (d *Driver) Holds(ctx common.ExtendedContext, patron *model.Patron) (model.HoldSet, error) {
	if memo, ok := d.holds[patron.Id]; ok {
		return memo, nil
	}
	holds := model.HoldSet{Available: []model.Hold{}, Unavailable: []model.Hold{}}
	rows, err := d.db.Reserves(ctx, patron.VendorId)
	if err != nil {
		return holds, fmt.Errorf("failed to load holds: %w", err)
	}
	for _, row := range rows {
		hold := model.Hold{
			Source:         SourceName,
			SourceId:       row.ReserveID,
			RecordId:       row.BiblioNumber.String,
			HoldId:         row.ReserveID,
			Title:          row.Title.String,
			Author:         row.Author.String,
			PatronId:       patron.Id,
			PickupLocation: row.BranchCode.String,
			Position:       int(row.Priority.Int64),
			CreateDate:     row.ReserveDate.Time,
			ExpireDate:     row.ExpirationDate.Time,
			ItemId:         row.ItemNumber.String,
			Cancelable:     true,
		}
		switch {
		case row.Suspend:
			hold.Status = "Suspended"
			hold.Frozen = true
			if row.SuspendUntil.Valid {
				hold.Status += " until " + row.SuspendUntil.Time.Format("01/02/2006")
				hold.ReactivateDate = row.SuspendUntil.Time
			}
		case row.Found.String == "W":
			hold.Status = "Ready to Pickup"
			hold.Available = true
			hold.Cancelable = false
		case row.Found.String == "T":
			hold.Status = "In Transit"
		default:
			hold.Status = "Pending"
			hold.CanFreeze = true
		}
		if hold.Available {
			holds.Available = append(holds.Available, hold)
		} else {
			holds.Unavailable = append(holds.Unavailable, hold)
		}
	}
	d.holds[patron.Id] = holds
	return holds, nil
}

func (d *Driver) PlaceHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, pickupLocation string, cancelDate string) driver.HoldResult {
	if eligible, msg := d.patronEligibleForHolds(ctx, patron); !eligible {
		return driver.HoldResult{Result: driver.Fail(msg)}
	}
	itemHolds, err := d.db.SystemPreference(ctx, "OPACItemHolds")
	if err == nil && itemHolds == "force" {
		items, err := d.db.ItemsForBiblio(ctx, recordId)
		if err != nil {
			ctx.Logger().Error("failed to load holdable items", "recordId", recordId, "error", err)
			return driver.HoldResult{Result: driver.Fail(msgUnableToConnect)}
		}
		result := driver.HoldResult{
			Result:             driver.Fail("This title allows item level holds, please select an item to place a hold on."),
			NeedsItemLevelHold: true,
		}
		for _, item := range items {
			result.Items = append(result.Items, driver.HoldableItem{
				ItemId:     item.ItemNumber,
				Barcode:    item.Barcode.String,
				CallNumber: item.CallNumber.String,
				Location:   item.Branch.String,
			})
		}
		return result
	}
	params := url.Values{}
	params.Set("service", "HoldTitle")
	params.Set("patron_id", patron.VendorId)
	params.Set("bib_id", recordId)
	params.Set("request_location", "127.0.0.1")
	if pickupLocation != "" {
		params.Set("pickup_location", pickupLocation)
	}
	if neededBefore := convertDate(cancelDate); neededBefore != "" {
		params.Set("needed_before_date", neededBefore)
	}
	var res ilsdiHoldResponse
	err = d.ilsdi(ctx, params, &res)
	if err != nil {
		ctx.Logger().Error("failed to place hold", "recordId", recordId, "error", err)
		d.tracker.Increment(ctx, stats.NumConnectionFailures)
		return driver.HoldResult{Result: driver.Fail(msgUnableToConnect)}
	}
	if res.Title == "" {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.HoldResult{Result: driver.Fail("Your hold could not be placed. " + res.Code)}
	}
	return d.holdPlaced(ctx, patron, recordId)
}

func (d *Driver) PlaceItemHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string, pickupLocation string) driver.HoldResult {
	if eligible, msg := d.patronEligibleForHolds(ctx, patron); !eligible {
		return driver.HoldResult{Result: driver.Fail(msg)}
	}
	params := url.Values{}
	params.Set("service", "HoldItem")
	params.Set("patron_id", patron.VendorId)
	params.Set("bib_id", recordId)
	params.Set("item_id", itemId)
	if pickupLocation != "" {
		params.Set("pickup_location", pickupLocation)
	}
	var res ilsdiHoldResponse
	err := d.ilsdi(ctx, params, &res)
	if err != nil {
		ctx.Logger().Error("failed to place item hold", "recordId", recordId, "itemId", itemId, "error", err)
		d.tracker.Increment(ctx, stats.NumConnectionFailures)
		return driver.HoldResult{Result: driver.Fail(msgUnableToConnect)}
	}
	if res.PickupLocation == "" {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.HoldResult{Result: driver.Fail("Your hold could not be placed. " + res.Code)}
	}
	return d.holdPlaced(ctx, patron, recordId)
}

// holdPlaced records a successful hold and resolves the queue position from a
// fresh hold listing.
func (d *Driver) holdPlaced(ctx common.ExtendedContext, patron *model.Patron, recordId string) driver.HoldResult {
	d.tracker.Increment(ctx, stats.NumHoldsPlaced)
	d.tracker.RecordUsed(ctx, recordId, stats.TimesHeld)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.holds, patron.Id)
	result := driver.HoldResult{Result: driver.Ok("Your hold was placed successfully.")}
	holds, err := d.Holds(ctx, patron)
	if err != nil {
		return result
	}
	for _, hold := range holds.Unavailable {
		if hold.RecordId == recordId {
			result.HoldId = hold.HoldId
			if hold.Position > 0 {
				result.QueuePosition = hold.Position
				result.Message += fmt.Sprintf("  You are number %d in the queue.", hold.Position)
			}
			break
		}
	}
	return result
}

func (d *Driver) CancelHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, holdId string) driver.Result {
	params := url.Values{}
	params.Set("service", "CancelHold")
	params.Set("patron_id", patron.VendorId)
	params.Set("item_id", holdId)
	var res ilsdiCancelResponse
	err := d.ilsdi(ctx, params, &res)
	if err != nil {
		ctx.Logger().Error("failed to cancel hold", "holdId", holdId, "error", err)
		d.tracker.Increment(ctx, stats.NumConnectionFailures)
		return driver.Fail(msgUnableToConnect)
	}
	if res.Code != "Cancelled" && res.Code != "Canceled" {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Some holds could not be cancelled.  Please try again later or see your librarian.")
	}
	d.tracker.Increment(ctx, stats.NumHoldsCancelled)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.holds, patron.Id)
	return driver.Ok("Cancelled 1 hold successfully.")
}

func (d *Driver) FreezeHold(ctx common.ExtendedContext, patron *model.Patron, holdId string, reactivationDate string) driver.Result {
	rest, ok := d.restClient(ctx)
	if !ok {
		return driver.Fail(msgAuthFailed)
	}
	var body any = struct{}{}
	if endDate := convertDate(reactivationDate); endDate != "" {
		body = restSuspension{EndDate: endDate}
	}
	err := rest.PostJson(d.client, d.config.ApiUrl+"/api/v1/holds/"+url.PathEscape(holdId)+"/suspension", body, nil)
	if err != nil {
		ctx.Logger().Error("failed to freeze hold", "holdId", holdId, "error", err)
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Sorry, your hold could not be frozen.  Please try again later or contact the library.")
	}
	d.tracker.Increment(ctx, stats.NumHoldsFrozen)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.holds, patron.Id)
	return driver.Ok("Your hold was frozen successfully.")
}

func (d *Driver) ThawHold(ctx common.ExtendedContext, patron *model.Patron, holdId string) driver.Result {
	rest, ok := d.restClient(ctx)
	if !ok {
		return driver.Fail(msgAuthFailed)
	}
	err := rest.DeleteJson(d.client, d.config.ApiUrl+"/api/v1/holds/"+url.PathEscape(holdId)+"/suspension")
	if err != nil {
		ctx.Logger().Error("failed to thaw hold", "holdId", holdId, "error", err)
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Sorry, your hold could not be thawed.  Please try again later or contact the library.")
	}
	d.tracker.Increment(ctx, stats.NumHoldsThawed)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.holds, patron.Id)
	return driver.Ok("Your hold has been thawed successfully.")
}

func (d *Driver) RenewCheckout(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string) driver.RenewResult {
	params := url.Values{}
	params.Set("service", "RenewLoan")
	params.Set("patron_id", patron.VendorId)
	params.Set("item_id", itemId)
	var res ilsdiRenewResponse
	err := d.ilsdi(ctx, params, &res)
	if err != nil {
		ctx.Logger().Error("failed to renew checkout", "itemId", itemId, "error", err)
		d.tracker.Increment(ctx, stats.NumConnectionFailures)
		return driver.RenewResult{Result: driver.Fail(msgUnableToConnect)}
	}
	if res.Success != 1 {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.RenewResult{Result: driver.Fail("The item could not be renewed.")}
	}
	d.tracker.Increment(ctx, stats.NumRenewals)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.checkouts, patron.Id)
	return driver.RenewResult{
		Result:     driver.Ok("Your item was successfully renewed."),
		NewDueDate: res.DateDue,
	}
}

func (d *Driver) Fines(ctx common.ExtendedContext, patron *model.Patron, includeMessages bool) ([]model.Fine, error) {
	fines := []model.Fine{}
	rows, err := d.db.Fines(ctx, patron.VendorId)
	if err != nil {
		return fines, fmt.Errorf("failed to load fines: %w", err)
	}
	for _, row := range rows {
		fines = append(fines, model.Fine{
			Id:                row.AccountLinesID,
			Type:              fineTypeLabel(row.AccountType.String),
			Reason:            row.Description.String,
			Date:              row.Date.Time,
			Amount:            row.Amount,
			AmountOutstanding: row.AmountOutstanding,
		})
	}
	return fines, nil
}

func (d *Driver) CompleteFinePayment(ctx common.ExtendedContext, patron *model.Patron, payment *driver.Payment) driver.Result {
	rest, ok := d.restClient(ctx)
	if !ok {
		return driver.Fail(msgAuthFailed)
	}
	// partial lines are settled one by one, the rest go out as a single credit
	var fullIds []string
	fullAmount := payment.TotalPaid
	var partials []driver.PaymentLine
	for _, line := range payment.Lines {
		if line.Partial {
			partials = append(partials, line)
			fullAmount -= line.Amount
		} else {
			fullIds = append(fullIds, line.FineId)
		}
	}
	creditsUrl := d.config.ApiUrl + "/api/v1/patrons/" + url.PathEscape(patron.VendorId) + "/account/credits"
	allPaid := true
	if len(fullIds) > 0 {
		err := rest.PostJson(d.client, creditsUrl, restCredit{
			AccountLinesIds: fullIds,
			Amount:          fullAmount,
			CreditType:      "payment",
			Description:     "Paid online",
			Note:            "Payment " + payment.Id,
		}, nil)
		if err != nil {
			ctx.Logger().Error("failed to apply payment", "paymentId", payment.Id, "error", err)
			d.tracker.Increment(ctx, stats.NumApiErrors)
			allPaid = false
		}
	}
	for _, line := range partials {
		err := rest.PostJson(d.client, creditsUrl, restCredit{
			AccountLinesIds: []string{line.FineId},
			Amount:          line.Amount,
			CreditType:      "payment",
			Description:     "Paid online",
			Note:            "Payment " + payment.Id,
		}, nil)
		if err != nil {
			ctx.Logger().Error("failed to apply partial payment", "paymentId", payment.Id, "fineId", line.FineId, "error", err)
			d.tracker.Increment(ctx, stats.NumApiErrors)
			allPaid = false
		}
	}
	// the vendor may have taken some of the lines, force the next summary load
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	if !allPaid {
		return driver.Fail("Your payment could not be fully applied to your account.  Please contact the library.")
	}
	return driver.Ok("Your fines have been paid successfully, thank you.")
}

func (d *Driver) AccountSummary(ctx common.ExtendedContext, patron *model.Patron, forceRefresh bool) (*model.AccountSummary, error) {
	if !forceRefresh {
		if cached := d.summaries.Get(ctx, patron.Id, d.config.ProfileId, d.config.SummaryTtl); cached != nil {
			return cached, nil
		}
	}
	summary := &model.AccountSummary{}
	var err error
	summary.NumCheckedOut, summary.NumOverdue, err = d.db.IssueCounts(ctx, patron.VendorId)
	if err != nil {
		return summary, fmt.Errorf("failed to count checkouts: %w", err)
	}
	summary.NumAvailableHolds, summary.NumUnavailableHolds, err = d.db.ReserveCounts(ctx, patron.VendorId)
	if err != nil {
		return summary, fmt.Errorf("failed to count holds: %w", err)
	}
	summary.TotalFines, err = d.db.OutstandingFineTotal(ctx, patron.VendorId)
	if err != nil {
		return summary, fmt.Errorf("failed to total fines: %w", err)
	}
	borrower, err := d.db.BorrowerByID(ctx, patron.VendorId)
	if err != nil {
		return summary, fmt.Errorf("failed to load borrower: %w", err)
	}
	if borrower.DateExpiry.Valid {
		if expiry, perr := time.Parse("2006-01-02", borrower.DateExpiry.String); perr == nil {
			summary.ExpirationDate = expiry
			summary.Expired = expiry.Before(time.Now())
			summary.ExpireClose = !summary.Expired && time.Until(expiry) <= 30*24*time.Hour
		}
	}
	summary.LastLoaded = time.Now()
	d.summaries.Put(ctx, patron.Id, d.config.ProfileId, summary)
	return summary, nil
}

func (d *Driver) patronEligibleForHolds(ctx common.ExtendedContext, patron *model.Patron) (bool, string) {
	maxStr, err := d.db.SystemPreference(ctx, "MaxOutstanding")
	if err != nil || maxStr == "" {
		return true, ""
	}
	max, err := strconv.ParseFloat(maxStr, 64)
	if err != nil || max <= 0 {
		return true, ""
	}
	summary, err := d.AccountSummary(ctx, patron, true)
	if err != nil {
		return true, ""
	}
	if summary.TotalFines > max {
		return false, "Sorry, your account has too many outstanding fines to place holds."
	}
	return true, ""
}

func (d *Driver) UpdatePatronInfo(ctx common.ExtendedContext, patron *model.Patron, fields map[string]string) driver.Result {
	session, err := d.opacSession(ctx, patron)
	if err != nil {
		ctx.Logger().Error("opac login failed", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	page, err := session.Get(ctx, "/cgi-bin/koha/opac-memberentry.pl")
	if err != nil {
		return driver.Fail(msgUnableToConnect)
	}
	form := url.Values{}
	form.Set("action", "update")
	form.Set("borrowernumber", patron.VendorId)
	if token := parseCsrfToken(page); token != "" {
		form.Set("csrf_token", token)
	}
	for name, value := range fields {
		if !strings.HasPrefix(name, "borrower_") {
			name = "borrower_" + name
		}
		form.Set(name, value)
	}
	body, err := session.PostForm(ctx, "/cgi-bin/koha/opac-memberentry.pl", form)
	if err != nil {
		ctx.Logger().Error("failed to submit patron update", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	if alert := parseAlertError(body); alert != "" {
		ctx.Logger().Warn("patron update rejected", "alert", alert)
		return driver.Fail("Your account could not be updated, please contact the library.")
	}
	return driver.Ok("Your account was updated successfully.")
}

func (d *Driver) UpdatePin(ctx common.ExtendedContext, patron *model.Patron, oldPin string, newPin string) driver.Result {
	if patron.Password != oldPin {
		return driver.Fail("The old PIN provided is incorrect.")
	}
	rest, ok := d.restClient(ctx)
	if !ok {
		return driver.Fail(msgAuthFailed)
	}
	err := rest.PostJson(d.client, d.config.ApiUrl+"/api/v1/patrons/"+url.PathEscape(patron.VendorId)+"/password",
		restPassword{Password: newPin, Password2: newPin}, nil)
	if err != nil {
		ctx.Logger().Error("failed to update pin", "error", err)
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Sorry, your PIN could not be updated.  Please try again later or contact the library.")
	}
	return driver.Ok("Your PIN was updated successfully.")
}

func (d *Driver) UpdateAutoRenewal(ctx common.ExtendedContext, patron *model.Patron, allow bool) driver.Result {
	rest, ok := d.restClient(ctx)
	if !ok {
		return driver.Fail(msgAuthFailed)
	}
	// the vendor's PUT replaces the record, required fields ride along
	borrower, err := d.db.BorrowerByID(ctx, patron.VendorId)
	if err != nil {
		ctx.Logger().Error("failed to load borrower for update", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	err = rest.PutJson(d.client, d.config.ApiUrl+"/api/v1/patrons/"+url.PathEscape(patron.VendorId), restPatronUpdate{
		Surname:            borrower.Surname.String,
		Address:            borrower.Address.String,
		City:               borrower.City.String,
		LibraryId:          borrower.BranchCode.String,
		CategoryId:         borrower.CategoryCode.String,
		AutorenewCheckouts: allow,
	}, nil)
	if err != nil {
		ctx.Logger().Error("failed to update auto renewal", "error", err)
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Sorry, your auto renewal setting could not be updated.")
	}
	// confirm the setting landed, the PUT replaces the whole record
	enabled, err := d.db.AutoRenewalEnabled(ctx, patron.VendorId)
	if err != nil {
		ctx.Logger().Warn("could not confirm auto renewal setting", "error", err)
	} else if enabled != allow {
		return driver.Fail("Sorry, your auto renewal setting could not be updated.")
	}
	return driver.Ok("Your account was updated successfully.")
}

func (d *Driver) SelfRegister(ctx common.ExtendedContext, fields map[string]string) driver.SelfRegistrationResult {
	session, err := d.opacSession(ctx, nil)
	if err != nil {
		return driver.SelfRegistrationResult{Result: driver.Fail(msgUnableToConnect)}
	}
	page, err := session.Get(ctx, "/cgi-bin/koha/opac-memberentry.pl")
	if err != nil {
		ctx.Logger().Error("failed to load registration page", "error", err)
		return driver.SelfRegistrationResult{Result: driver.Fail(msgUnableToConnect)}
	}
	form := url.Values{}
	form.Set("action", "create")
	if challenge, digest, ok := parseCaptcha(page); ok {
		form.Set("captcha", challenge)
		form.Set("captcha_digest", digest)
	}
	for name, value := range fields {
		if !strings.HasPrefix(name, "borrower_") {
			name = "borrower_" + name
		}
		form.Set(name, value)
	}
	body, err := session.PostForm(ctx, "/cgi-bin/koha/opac-memberentry.pl", form)
	if err != nil {
		ctx.Logger().Error("failed to submit registration", "error", err)
		return driver.SelfRegistrationResult{Result: driver.Fail(msgUnableToConnect)}
	}
	outcome := parseRegistrationPage(body)
	switch {
	case outcome.Complete && outcome.Username != "":
		return driver.SelfRegistrationResult{
			Result:   driver.Ok("Your account was registered successfully."),
			Username: outcome.Username,
			Password: outcome.Password,
		}
	case outcome.Complete:
		return driver.SelfRegistrationResult{
			Result: driver.Ok("Your account was registered, but a barcode was not provided, please contact your library for barcode and password to use when logging in."),
		}
	case outcome.DuplicateEmail:
		return driver.SelfRegistrationResult{
			Result: driver.Fail("This email address already exists in our database, please contact your library."),
		}
	default:
		if outcome.Error != "" {
			ctx.Logger().Warn("registration rejected", "alert", outcome.Error)
		}
		return driver.SelfRegistrationResult{
			Result: driver.Fail("Unable to complete your registration, please contact your library."),
		}
	}
}

// the registration fields the OPAC form understands, filtered per instance by
// the PatronSelfRegistration preferences
var registrationFields = []model.SelfRegistrationField{
	{Property: "surname", Label: "Last name", Type: "text"},
	{Property: "firstname", Label: "First name", Type: "text"},
	{Property: "address", Label: "Mailing address", Type: "text"},
	{Property: "city", Label: "City", Type: "text"},
	{Property: "state", Label: "State", Type: "text"},
	{Property: "zipcode", Label: "Zip code", Type: "text"},
	{Property: "phone", Label: "Primary phone", Type: "tel"},
	{Property: "email", Label: "Email", Type: "email"},
	{Property: "dateofbirth", Label: "Date of birth", Type: "date"},
	{Property: "branchcode", Label: "Home library", Type: "select"},
}

func (d *Driver) SelfRegistrationFields(ctx common.ExtendedContext) ([]model.SelfRegistrationField, error) {
	prefs, err := d.db.SystemPreferencesLike(ctx, "PatronSelf%")
	if err != nil {
		return nil, fmt.Errorf("failed to read registration preferences: %w", err)
	}
	unwanted := splitFieldList(prefs["PatronSelfRegistrationBorrowerUnwantedField"])
	mandatory := splitFieldList(prefs["PatronSelfRegistrationBorrowerMandatoryField"])
	fields := []model.SelfRegistrationField{}
	for _, field := range registrationFields {
		if unwanted[field.Property] {
			continue
		}
		field.Required = mandatory[field.Property]
		fields = append(fields, field)
	}
	return fields, nil
}

func splitFieldList(val string) map[string]bool {
	set := map[string]bool{}
	for _, name := range strings.Split(val, "|") {
		name = strings.TrimPrefix(strings.TrimSpace(name), "borrower_")
		if name != "" {
			set[name] = true
		}
	}
	return set
}

func (d *Driver) MessagingPreferences(ctx common.ExtendedContext, patron *model.Patron) ([]model.MessagingPreference, error) {
	rows, err := d.db.MessagingPreferences(ctx, patron.VendorId)
	if err != nil {
		return nil, fmt.Errorf("failed to load messaging preferences: %w", err)
	}
	byAttribute := map[int]*model.MessagingPreference{}
	var order []int
	for _, row := range rows {
		pref, ok := byAttribute[row.AttributeID]
		if !ok {
			pref = &model.MessagingPreference{
				AttributeId: row.AttributeID,
				Name:        row.Name,
				Transports:  map[string]bool{},
			}
			byAttribute[row.AttributeID] = pref
			order = append(order, row.AttributeID)
		}
		pref.Transports[row.TransportType] = row.Selected
		if row.DaysInAdvance.Valid {
			pref.DaysInAdvance = int(row.DaysInAdvance.Int64)
		}
	}
	prefs := []model.MessagingPreference{}
	for _, id := range order {
		prefs = append(prefs, *byAttribute[id])
	}
	return prefs, nil
}

func (d *Driver) UpdateMessagingPreferences(ctx common.ExtendedContext, patron *model.Patron, prefs []model.MessagingPreference) driver.Result {
	session, err := d.opacSession(ctx, patron)
	if err != nil {
		ctx.Logger().Error("opac login failed", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	params := url.Values{}
	params.Set("modify", "yes")
	for _, pref := range prefs {
		for transport, selected := range pref.Transports {
			if selected {
				params.Add(transport, strconv.Itoa(pref.AttributeId))
			}
		}
		if pref.DaysInAdvance > 0 {
			params.Set(fmt.Sprintf("%d-DAYS", pref.AttributeId), strconv.Itoa(pref.DaysInAdvance))
		}
	}
	body, err := session.Get(ctx, "/cgi-bin/koha/opac-messaging.pl?"+params.Encode())
	if err != nil {
		ctx.Logger().Error("failed to submit messaging preferences", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	if !strings.Contains(string(body), markerSettingsUpdated) {
		return driver.Fail("Sorry your settings could not be updated, please contact the library.")
	}
	return driver.Ok("Your settings were updated successfully.")
}

func (d *Driver) NewMaterialsRequest(ctx common.ExtendedContext, patron *model.Patron, request *model.MaterialsRequest) driver.Result {
	session, err := d.opacSession(ctx, patron)
	if err != nil {
		ctx.Logger().Error("opac login failed", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	form := url.Values{}
	form.Set("op", "add_confirm")
	form.Set("title", request.Title)
	form.Set("author", request.Author)
	form.Set("itemtype", request.Format)
	form.Set("note", request.Note)
	body, err := session.PostForm(ctx, "/cgi-bin/koha/opac-suggestions.pl", form)
	if err != nil {
		ctx.Logger().Error("failed to submit materials request", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	if alert := parseAlertError(body); alert != "" {
		ctx.Logger().Warn("materials request rejected", "alert", alert)
		return driver.Fail("Your request could not be submitted, please contact the library.")
	}
	if !strings.Contains(string(body), markerSuggestionsPage) {
		return driver.Fail("Unknown error submitting your request.")
	}
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	return driver.Ok("Successfully submitted your request.")
}

var statusCaser = cases.Title(language.English)

func (d *Driver) MaterialsRequests(ctx common.ExtendedContext, patron *model.Patron) ([]model.MaterialsRequest, error) {
	requests := []model.MaterialsRequest{}
	rows, err := d.db.Suggestions(ctx, patron.VendorId)
	if err != nil {
		return requests, fmt.Errorf("failed to load materials requests: %w", err)
	}
	for _, row := range rows {
		status := statusCaser.String(strings.ToLower(row.Status.String))
		if row.Reason.String != "" {
			status += " (" + row.Reason.String + ")"
		}
		requests = append(requests, model.MaterialsRequest{
			Id:          row.SuggestionID,
			Title:       row.Title.String,
			Author:      row.Author.String,
			Format:      row.ItemType.String,
			Note:        row.Note.String,
			Status:      status,
			CreatedDate: row.SuggestedDate.Time,
		})
	}
	return requests, nil
}

func (d *Driver) MaterialsRequestCount(ctx common.ExtendedContext, patron *model.Patron) (int, error) {
	return d.db.SuggestionCount(ctx, patron.VendorId)
}

func (d *Driver) DeleteMaterialsRequests(ctx common.ExtendedContext, patron *model.Patron, ids []string) driver.Result {
	session, err := d.opacSession(ctx, patron)
	if err != nil {
		ctx.Logger().Error("opac login failed", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	form := url.Values{}
	form.Set("op", "delete_confirm")
	for _, id := range ids {
		form.Add("delete_field", id)
	}
	_, err = session.PostForm(ctx, "/cgi-bin/koha/opac-suggestions.pl", form)
	if err != nil {
		ctx.Logger().Error("failed to delete materials requests", "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	return driver.Ok("Deleted your requests.")
}

func (d *Driver) ReadingHistory(ctx common.ExtendedContext, patron *model.Patron) ([]model.ReadingHistoryEntry, error) {
	entries := []model.ReadingHistoryEntry{}
	disabled, err := d.db.ReadingHistoryDisabled(ctx, patron.VendorId)
	if err != nil {
		return entries, fmt.Errorf("failed to check reading history opt-out: %w", err)
	}
	if disabled {
		return entries, nil
	}
	rows, err := d.db.ReadingHistory(ctx, patron.VendorId)
	if err != nil {
		return entries, fmt.Errorf("failed to load reading history: %w", err)
	}
	for _, row := range rows {
		entries = append(entries, model.ReadingHistoryEntry{
			RecordId:     row.BiblioNumber.String,
			Title:        row.Title.String,
			Author:       row.Author.String,
			CheckoutDate: row.IssueDate.Time,
			ReturnDate:   row.ReturnDate.Time,
		})
	}
	return entries, nil
}

// convertDate turns the caller's MM/DD/YYYY into the vendor's YYYY-MM-DD,
// empty in means empty out.
func convertDate(val string) string {
	if val == "" {
		return ""
	}
	t, err := time.Parse("01/02/2006", val)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
