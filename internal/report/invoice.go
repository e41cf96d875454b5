package report

// VATRate is the fixed tax rate applied to invoices. Policy constant, not
// configurable.
const VATRate = 0.20

// InvoiceTotals is the numeric block of an invoice over an aggregate.
type InvoiceTotals struct {
	TotalHT  float64 `json:"total_ht"`
	TVA      float64 `json:"tva"`
	TotalTTC float64 `json:"total_ttc"`
}

// Invoice computes tax-inclusive totals from a pre-tax amount.
func Invoice(totalHT float64) InvoiceTotals {
	tva := totalHT * VATRate
	return InvoiceTotals{
		TotalHT:  totalHT,
		TVA:      tva,
		TotalTTC: totalHT + tva,
	}
}
