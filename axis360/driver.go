package axis360

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/indexdata/patronlink/auth"
	"github.com/indexdata/patronlink/cache"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/httpclient"
	"github.com/indexdata/patronlink/model"
	"github.com/indexdata/patronlink/stats"
)

const SourceName = "axis360"

const msgUnableToConnect = "Unable to connect to Axis 360"

type Config struct {
	ApiUrl         string
	LibraryPrefix  string
	VendorUsername string
	VendorPassword string
	ProfileId      string
	SummaryTtl     time.Duration
	Timeout        time.Duration
}

// Driver talks to the Axis 360 vendor XML API. Instances are request-scoped
// and memoize list responses per patron for the life of the request.
type Driver struct {
	driver.Unsupported
	config    Config
	tokens    auth.TokenSource
	client    *http.Client
	tracker   stats.Tracker
	summaries cache.SummaryCache
	checkouts map[string][]model.Checkout
	holds     map[string]model.HoldSet
}

func NewDriver(config Config, tracker stats.Tracker, summaries cache.SummaryCache) *Driver {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	if config.SummaryTtl == 0 {
		config.SummaryTtl = 15 * time.Minute
	}
	return &Driver{
		config:    config,
		tokens:    auth.NewVendorAPIToken(config.ApiUrl+"/Services/VendorAPI/accesstoken", config.VendorUsername, config.VendorPassword, config.LibraryPrefix),
		client:    &http.Client{Timeout: config.Timeout},
		tracker:   tracker,
		summaries: summaries,
		checkouts: map[string][]model.Checkout{},
		holds:     map[string]model.HoldSet{},
	}
}

func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		ForgotPasswordType: driver.ForgotPasswordNone,
	}
}

// Login is handled by the circulation system the patron belongs to, the
// vendor only knows barcodes.
func (d *Driver) Login(ctx common.ExtendedContext, username string, password string) (*model.Patron, driver.LoginResult) {
	return nil, driver.LoginResult{Result: driver.NotSupported()}
}

func (d *Driver) vendorClient(token auth.Token) *httpclient.HttpClient {
	return httpclient.NewClient().WithHeaders(
		"Authorization", token.Value,
		"Library", d.config.LibraryPrefix,
	)
}

func (d *Driver) token(ctx common.ExtendedContext) (auth.Token, bool) {
	token, err := d.tokens.Get(ctx, d.client)
	if err != nil {
		ctx.Logger().Error("failed to get vendor token", "error", err)
		d.tracker.Increment(ctx, stats.NumConnectionFailures)
		return auth.Token{}, false
	}
	return token, true
}

func (d *Driver) Checkouts(ctx common.ExtendedContext, patron *model.Patron) ([]model.Checkout, error) {
	if memo, ok := d.checkouts[patron.Id]; ok {
		return memo, nil
	}
	checkouts := []model.Checkout{}
	token, ok := d.token(ctx)
	if !ok {
		return checkouts, nil
	}
	form := url.Values{}
	form.Set("statusFilter", "CHECKOUT")
	form.Set("patronId", patron.Barcode)
	var res availabilityResponse
	err := d.vendorClient(token).PostFormXml(d.client, d.config.ApiUrl+"/Services/VendorAPI/availability/v3_1", form, &res)
	if err != nil {
		return checkouts, fmt.Errorf("failed to load checkouts: %w", err)
	}
	if res.Status.Code != statusOk {
		ctx.Logger().Error("error loading checkouts", "statusMessage", res.Status.StatusMessage)
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return checkouts, nil
	}
	for _, title := range res.Titles {
		// a returned title lingers in the feed for a while, flagged not checked out
		if title.Availability.IsCheckedout == "N" {
			continue
		}
		checkouts = append(checkouts, model.Checkout{
			Source:        SourceName,
			SourceId:      title.TitleId,
			RecordId:      title.TitleId,
			Title:         title.BookTitle,
			Author:        title.Author,
			CanRenew:      title.Availability.IsButtonRenew != "N",
			DueDate:       parseVendorTime(title.Availability.CheckoutEndDate),
			AccessUrl:     title.TitleUrl,
			TransactionId: title.Availability.TransactionID,
		})
	}
	d.checkouts[patron.Id] = checkouts
	return checkouts, nil
}

func (d *Driver) Holds(ctx common.ExtendedContext, patron *model.Patron) (model.HoldSet, error) {
	if memo, ok := d.holds[patron.Id]; ok {
		return memo, nil
	}
	holds := model.HoldSet{Available: []model.Hold{}, Unavailable: []model.Hold{}}
	token, ok := d.token(ctx)
	if !ok {
		return holds, nil
	}
	var res getHoldsResponse
	err := d.vendorClient(token).GetXml(d.client, d.config.ApiUrl+"/Services/VendorAPI/GetHolds/"+url.PathEscape(patron.Barcode), &res)
	if err != nil {
		return holds, fmt.Errorf("failed to load holds: %w", err)
	}
	for _, raw := range res.Result.Holds.Hold {
		hold := model.Hold{
			Source:      SourceName,
			SourceId:    raw.TitleID,
			RecordId:    raw.TitleID,
			HoldId:      raw.TitleID,
			Title:       raw.BookTitle,
			Author:      raw.Author,
			PatronId:    patron.Id,
			QueueLength: raw.TotalHoldSize,
			Position:    raw.HoldPosition,
			Available:   yes(raw.IsAvailable),
			Cancelable:  true,
		}
		if hold.Available {
			hold.ExpireDate = parseVendorTime(raw.ReservedEndDate)
			holds.Available = append(holds.Available, hold)
		} else {
			hold.CanFreeze = true
			hold.Frozen = raw.IsSuspendHold == "R"
			if hold.Frozen {
				hold.Status = "Frozen"
			}
			holds.Unavailable = append(holds.Unavailable, hold)
		}
	}
	d.holds[patron.Id] = holds
	return holds, nil
}

func (d *Driver) PlaceHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, pickupLocation string, cancelDate string) driver.HoldResult {
	token, ok := d.token(ctx)
	if !ok {
		return driver.HoldResult{Result: driver.Fail(msgUnableToConnect)}
	}
	holdUrl := d.config.ApiUrl + "/Services/VendorAPI/addToHold/v2/" + url.PathEscape(recordId) +
		"/" + url.PathEscape(patron.Email) + "/" + url.PathEscape(patron.Barcode)
	var res addToHoldResponse
	err := d.vendorClient(token).GetXml(d.client, holdUrl, &res)
	if err != nil {
		ctx.Logger().Error("failed to place hold", "recordId", recordId, "error", err)
		return driver.HoldResult{Result: driver.Fail(msgUnableToConnect)}
	}
	status := res.Result.Status
	switch status.Code {
	case statusTitleAvailable:
		// the title is available, check it out instead
		checkout := d.checkOutTitle(ctx, patron, recordId, false)
		return driver.HoldResult{Result: checkout.Result, ConvertedToCheckout: checkout.Success}
	case statusOk:
		d.tracker.Increment(ctx, stats.NumHoldsPlaced)
		d.tracker.RecordUsed(ctx, recordId, stats.TimesHeld)
		d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
		delete(d.holds, patron.Id)
		return driver.HoldResult{Result: driver.Ok("Your hold was placed successfully")}
	default:
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.HoldResult{Result: driver.Fail("Could not place hold, " + status.StatusMessage)}
	}
}

func (d *Driver) CancelHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, holdId string) driver.Result {
	token, ok := d.token(ctx)
	if !ok {
		return driver.Fail(msgUnableToConnect)
	}
	cancelUrl := d.config.ApiUrl + "/Services/VendorAPI/removeHold/v2/" + url.PathEscape(recordId) +
		"/" + url.PathEscape(patron.Barcode)
	var res removeHoldResponse
	err := d.vendorClient(token).GetXml(d.client, cancelUrl, &res)
	if err != nil {
		ctx.Logger().Error("failed to cancel hold", "recordId", recordId, "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	status := res.Result.Status
	if status.Code != statusOk {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Could not cancel hold, " + status.StatusMessage)
	}
	d.tracker.Increment(ctx, stats.NumHoldsCancelled)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.holds, patron.Id)
	return driver.Ok("Your hold was cancelled successfully")
}

func (d *Driver) FreezeHold(ctx common.ExtendedContext, patron *model.Patron, holdId string, reactivationDate string) driver.Result {
	res, err := d.holdAction(ctx, "suspendHold", holdId, patron)
	if err != nil {
		ctx.Logger().Error("failed to freeze hold", "holdId", holdId, "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	if res.Result.Status.Code != statusOk {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Could not freeze hold, " + res.Result.Status.StatusMessage)
	}
	d.tracker.Increment(ctx, stats.NumHoldsFrozen)
	delete(d.holds, patron.Id)
	return driver.Ok("Your hold was frozen successfully")
}

func (d *Driver) ThawHold(ctx common.ExtendedContext, patron *model.Patron, holdId string) driver.Result {
	res, err := d.holdAction(ctx, "activateHold", holdId, patron)
	if err != nil {
		ctx.Logger().Error("failed to thaw hold", "holdId", holdId, "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	if res.Result.Status.Code != statusOk {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Could not thaw hold, " + res.Result.Status.StatusMessage)
	}
	d.tracker.Increment(ctx, stats.NumHoldsThawed)
	delete(d.holds, patron.Id)
	return driver.Ok("Your hold was thawed successfully")
}

func (d *Driver) holdAction(ctx common.ExtendedContext, action string, recordId string, patron *model.Patron) (holdActionResponse, error) {
	var res holdActionResponse
	token, ok := d.token(ctx)
	if !ok {
		return res, fmt.Errorf("no vendor token")
	}
	actionUrl := d.config.ApiUrl + "/Services/VendorAPI/" + action + "/v2/" + url.PathEscape(recordId) +
		"/" + url.PathEscape(patron.Barcode)
	err := d.vendorClient(token).GetXml(d.client, actionUrl, &res)
	return res, err
}

func (d *Driver) RenewCheckout(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string) driver.RenewResult {
	checkout := d.checkOutTitle(ctx, patron, recordId, true)
	return driver.RenewResult{Result: checkout.Result}
}

func (d *Driver) ReturnCheckout(ctx common.ExtendedContext, patron *model.Patron, transactionId string) driver.Result {
	token, ok := d.token(ctx)
	if !ok {
		return driver.Fail(msgUnableToConnect)
	}
	returnUrl := d.config.ApiUrl + "/Services/VendorAPI/EarlyCheckin/v2?transactionID=" + url.QueryEscape(transactionId)
	var res earlyCheckinResponse
	err := d.vendorClient(token).GetXml(d.client, returnUrl, &res)
	if err != nil {
		ctx.Logger().Error("failed to return checkout", "transactionId", transactionId, "error", err)
		return driver.Fail(msgUnableToConnect)
	}
	status := res.Result.Status
	if status.Code != statusOk {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.Fail("Could not return title, " + status.StatusMessage)
	}
	d.tracker.Increment(ctx, stats.NumEarlyReturns)
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.checkouts, patron.Id)
	return driver.Ok("Your title was returned successfully")
}

func (d *Driver) Checkout(ctx common.ExtendedContext, patron *model.Patron, recordId string) driver.CheckoutResult {
	return d.checkOutTitle(ctx, patron, recordId, false)
}

func (d *Driver) checkOutTitle(ctx common.ExtendedContext, patron *model.Patron, titleId string, fromRenew bool) driver.CheckoutResult {
	token, ok := d.token(ctx)
	if !ok {
		return driver.CheckoutResult{Result: driver.Fail(msgUnableToConnect)}
	}
	form := url.Values{}
	form.Set("titleId", titleId)
	form.Set("patronId", patron.Barcode)
	var res checkoutResponse
	err := d.vendorClient(token).PostFormXml(d.client, d.config.ApiUrl+"/Services/VendorAPI/checkout/v2", form, &res)
	if err != nil {
		ctx.Logger().Error("failed to checkout title", "titleId", titleId, "error", err)
		return driver.CheckoutResult{Result: driver.Fail(msgUnableToConnect)}
	}
	status := res.Result.Status
	if status.Code != statusOk {
		if status.Code == statusNoCopies {
			return driver.CheckoutResult{
				Result:   driver.Fail("Sorry, we could not checkout this title to you.\r\n\r\nWould you like to place a hold instead?"),
				NoCopies: true,
			}
		}
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return driver.CheckoutResult{Result: driver.Fail("Sorry, we could not checkout this title to you. " + status.StatusMessage)}
	}
	if fromRenew {
		d.tracker.Increment(ctx, stats.NumRenewals)
	} else {
		d.tracker.Increment(ctx, stats.NumCheckouts)
		d.tracker.RecordUsed(ctx, titleId, stats.TimesCheckedOut)
	}
	d.summaries.Invalidate(ctx, patron.Id, d.config.ProfileId)
	delete(d.checkouts, patron.Id)
	return driver.CheckoutResult{
		Result: driver.Ok("Your title was checked out successfully. You may now download the title from your Account."),
	}
}

func (d *Driver) AccountSummary(ctx common.ExtendedContext, patron *model.Patron, forceRefresh bool) (*model.AccountSummary, error) {
	if !forceRefresh {
		if cached := d.summaries.Get(ctx, patron.Id, d.config.ProfileId, d.config.SummaryTtl); cached != nil {
			return cached, nil
		}
	}
	summary := &model.AccountSummary{}
	token, ok := d.token(ctx)
	if !ok {
		return summary, nil
	}
	form := url.Values{}
	form.Set("patronId", patron.Barcode)
	var res availabilityResponse
	err := d.vendorClient(token).PostFormXml(d.client, d.config.ApiUrl+"/Services/VendorAPI/availability/v3_1", form, &res)
	if err != nil {
		return summary, fmt.Errorf("failed to load account summary: %w", err)
	}
	if res.Status.Code != statusOk {
		d.tracker.Increment(ctx, stats.NumApiErrors)
		return summary, nil
	}
	for _, title := range res.Titles {
		if yes(title.Availability.IsCheckedout) {
			summary.NumCheckedOut++
		} else if yes(title.Availability.IsInHoldQueue) {
			if yes(title.Availability.IsReserved) {
				summary.NumAvailableHolds++
			} else {
				summary.NumUnavailableHolds++
			}
		}
	}
	summary.LastLoaded = time.Now()
	d.summaries.Put(ctx, patron.Id, d.config.ProfileId, summary)
	return summary, nil
}

var vendorTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006 3:04:05 PM",
	time.RFC3339,
}

func parseVendorTime(val string) time.Time {
	for _, layout := range vendorTimeLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t
		}
	}
	return time.Time{}
}
