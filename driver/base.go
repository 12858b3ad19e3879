package driver

import (
	"github.com/indexdata/patronlink/common"
	"github.com/indexdata/patronlink/model"
)

// Unsupported provides not-supported defaults for every optional operation so
// vendor adapters only implement what their system actually offers.
type Unsupported struct{}

func (d Unsupported) PlaceItemHold(ctx common.ExtendedContext, patron *model.Patron, recordId string, itemId string, pickupLocation string) HoldResult {
	return HoldResult{Result: NotSupported()}
}

func (d Unsupported) FreezeHold(ctx common.ExtendedContext, patron *model.Patron, holdId string, reactivationDate string) Result {
	return NotSupported()
}

func (d Unsupported) ThawHold(ctx common.ExtendedContext, patron *model.Patron, holdId string) Result {
	return NotSupported()
}

func (d Unsupported) RenewAll(ctx common.ExtendedContext, patron *model.Patron) RenewAllResult {
	return RenewAllResult{Result: NotSupported()}
}

func (d Unsupported) ReturnCheckout(ctx common.ExtendedContext, patron *model.Patron, transactionId string) Result {
	return NotSupported()
}

func (d Unsupported) Checkout(ctx common.ExtendedContext, patron *model.Patron, recordId string) CheckoutResult {
	return CheckoutResult{Result: NotSupported()}
}

func (d Unsupported) Fines(ctx common.ExtendedContext, patron *model.Patron, includeMessages bool) ([]model.Fine, error) {
	return nil, nil
}

func (d Unsupported) CompleteFinePayment(ctx common.ExtendedContext, patron *model.Patron, payment *Payment) Result {
	return NotSupported()
}

func (d Unsupported) UpdatePatronInfo(ctx common.ExtendedContext, patron *model.Patron, fields map[string]string) Result {
	return NotSupported()
}

func (d Unsupported) UpdatePin(ctx common.ExtendedContext, patron *model.Patron, oldPin string, newPin string) Result {
	return NotSupported()
}

func (d Unsupported) UpdateAutoRenewal(ctx common.ExtendedContext, patron *model.Patron, allow bool) Result {
	return NotSupported()
}

func (d Unsupported) SelfRegister(ctx common.ExtendedContext, fields map[string]string) SelfRegistrationResult {
	return SelfRegistrationResult{Result: NotSupported()}
}

func (d Unsupported) SelfRegistrationFields(ctx common.ExtendedContext) ([]model.SelfRegistrationField, error) {
	return nil, nil
}

func (d Unsupported) MessagingPreferences(ctx common.ExtendedContext, patron *model.Patron) ([]model.MessagingPreference, error) {
	return nil, nil
}

func (d Unsupported) UpdateMessagingPreferences(ctx common.ExtendedContext, patron *model.Patron, prefs []model.MessagingPreference) Result {
	return NotSupported()
}

func (d Unsupported) NewMaterialsRequest(ctx common.ExtendedContext, patron *model.Patron, request *model.MaterialsRequest) Result {
	return NotSupported()
}

func (d Unsupported) MaterialsRequests(ctx common.ExtendedContext, patron *model.Patron) ([]model.MaterialsRequest, error) {
	return nil, nil
}

func (d Unsupported) MaterialsRequestCount(ctx common.ExtendedContext, patron *model.Patron) (int, error) {
	return 0, nil
}

func (d Unsupported) DeleteMaterialsRequests(ctx common.ExtendedContext, patron *model.Patron, ids []string) Result {
	return NotSupported()
}

func (d Unsupported) ReadingHistory(ctx common.ExtendedContext, patron *model.Patron) ([]model.ReadingHistoryEntry, error) {
	return nil, nil
}
