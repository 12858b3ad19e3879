package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/indexdata/patronlink/account_db"
	"github.com/indexdata/patronlink/axis360"
	"github.com/indexdata/patronlink/cache"
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/driver"
	"github.com/indexdata/patronlink/evergreen"
	"github.com/indexdata/patronlink/koha"
	"github.com/indexdata/patronlink/stats"
	"github.com/jackc/pgx/v5"
)

// ErrNoProfile means the patron's library resolves to no account profile and
// no default profile is configured.
var ErrNoProfile = errors.New("no account profile for library")

// DriverCreator resolves a patron home library to a vendor driver. Drivers are
// request-scoped, vendor database pools are shared across requests.
type DriverCreator interface {
	GetDriver(ctx common.ExtendedContext, libraryId string) (driver.Driver, *account_db.AccountProfile, error)
}

type driverCreatorImpl struct {
	repo      account_db.AccountRepo
	summaries cache.SummaryCache
	mu        sync.Mutex
	vendorDBs map[string]koha.VendorDB
}

func NewDriverCreator(repo account_db.AccountRepo, summaries cache.SummaryCache) DriverCreator {
	return &driverCreatorImpl{
		repo:      repo,
		summaries: summaries,
		vendorDBs: map[string]koha.VendorDB{},
	}
}

func (c *driverCreatorImpl) GetDriver(ctx common.ExtendedContext, libraryId string) (driver.Driver, *account_db.AccountProfile, error) {
	profile, err := c.repo.GetProfileForLibrary(ctx, libraryId)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNoProfile
		}
		return nil, nil, fmt.Errorf("failed to resolve account profile: %w", err)
	}
	ttl := account_db.DefaultSummaryTtl
	if profile.SummaryTtl.Valid {
		ttl = time.Duration(profile.SummaryTtl.Int32) * time.Second
	}
	tracker := stats.NewPgTracker(profile.Name, c.repo)
	switch common.Vendor(profile.Vendor) {
	case common.VendorKoha:
		db, err := c.vendorDB(profile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open vendor database: %w", err)
		}
		return koha.NewDriver(koha.Config{
			ApiUrl:        profile.ApiUrl.String,
			IlsDiUrl:      profile.IlsDiUrl.String,
			OpacUrl:       profile.OpacUrl.String,
			ClientID:      profile.ClientID.String,
			ClientSecret:  profile.ClientSecret.String,
			BarcodePrefix: profile.LibraryPrefix.String,
			ProfileId:     profile.ID,
			SummaryTtl:    ttl,
		}, db, tracker, c.summaries), &profile, nil
	case common.VendorAxis360:
		return axis360.NewDriver(axis360.Config{
			ApiUrl:         profile.ApiUrl.String,
			LibraryPrefix:  profile.LibraryPrefix.String,
			VendorUsername: profile.VendorUsername.String,
			VendorPassword: profile.VendorPassword.String,
			ProfileId:      profile.ID,
			SummaryTtl:     ttl,
		}, tracker, c.summaries), &profile, nil
	case common.VendorEvergreen:
		return evergreen.NewDriver(evergreen.Config{
			SipAddress: profile.ApiUrl.String,
			ProfileId:  profile.ID,
		}), &profile, nil
	default:
		return nil, nil, fmt.Errorf("unknown vendor %q in profile %v", profile.Vendor, profile.ID)
	}
}

func (c *driverCreatorImpl) vendorDB(profile account_db.AccountProfile) (koha.VendorDB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.vendorDBs[profile.ID]; ok {
		return db, nil
	}
	db, err := koha.OpenVendorDB(profile.VendorDbUrl.String)
	if err != nil {
		return nil, err
	}
	c.vendorDBs[profile.ID] = db
	return db, nil
}
