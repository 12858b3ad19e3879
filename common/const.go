package common

type Vendor string

const (
	VendorKoha      Vendor = "Koha"
	VendorAxis360   Vendor = "Axis360"
	VendorEvergreen Vendor = "Evergreen"
	VendorUnknown   Vendor = "Unknown"
)

// message returned by every operation when vendor settings cannot be resolved
const MsgNotConnected = "not connected to the library system"
