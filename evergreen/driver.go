// Package evergreen is a placeholder adapter for Evergreen installations.
// Circulation is expected to arrive over SIP2, until that lands every
// operation reports not supported.
package evergreen

import (
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/model"
)

const SourceName = "evergreen"

type Config struct {
	// SIP2 endpoint, host:port
	SipAddress string
	ProfileId  string
}

type Driver struct {
	driver.Unsupported
	config Config
}

func NewDriver(config Config) *Driver {
	return &Driver{config: config}
}

func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		// Evergreen renews everything in one round trip once SIP2 is wired
		FastRenewAll:       true,
		ForgotPasswordType: driver.ForgotPasswordNone,
	}
}

func (d *Driver) Login(ctx common.ExtendedContext, username string, password string) (*model.Patron, driver.LoginResult) {
	return nil, driver.LoginResult{Result: driver.NotSupported()}
}

func (d *Driver) Checkouts(ctx common.ExtendedContext, patron *model.Patron) ([]model.Checkout, error) {
	return []model.Checkout{}, nil
}

func (d *Driver) Holds(ctx common.ExtendedContext, patron *model.Patron) (model.HoldSet, error) {
	return model.HoldSet{Available: []model.Hold{}, Unavailable: []model.Hold{}}, nil
}

func (d *Driver) PlaceHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, pickupLocation string, cancelDate string) driver.HoldResult {
	return driver.HoldResult{Result: driver.NotSupported()}
}

func (d *Driver) CancelHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, holdId string) driver.Result {
	return driver.NotSupported()
}

func (d *Driver) RenewCheckout(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string) driver.RenewResult {
	return driver.RenewResult{Result: driver.NotSupported()}
}

func (d *Driver) AccountSummary(ctx common.ExtendedContext, patron *model.Patron, forceRefresh bool) (*model.AccountSummary, error) {
	return &model.AccountSummary{}, nil
}
