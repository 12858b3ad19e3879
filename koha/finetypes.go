package koha

// fineTypes translates accountlines accounttype codes to patron-facing labels.
var fineTypes = map[string]string{
	"A":   "Account management fee",
	"C":   "Credit",
	"F":   "Overdue fine",
	"FOR": "Forgiven",
	"FU":  "Overdue, still accruing",
	"L":   "Lost item",
	"LR":  "Lost item returned/refunded",
	"M":   "Sundry",
	"N":   "New card",
	"PAY": "Payment",
	"W":   "Writeoff",
}

func fineTypeLabel(code string) string {
	if label, ok := fineTypes[code]; ok {
		return label
	}
	return code
}
