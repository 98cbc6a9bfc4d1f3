package contracts

import (
	"fmt"
	"html/template"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders a monetary value with grouping, e.g. "EUR 50,000.00".
func formatAmount(v float64, currency string) string {
	return amountPrinter.Sprintf("%s %.2f", currency, v)
}

var contractTmpl = template.Must(template.New("contract").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Contract {{.Number}}</title></head>
<body>
<h1>Contract {{.Number}}</h1>
<p>Status: {{.Status}}</p>
{{if .SignedBy}}<p>Signed by {{.SignedBy}} on {{.SignedAt.Format "2006-01-02"}}</p>{{end}}
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Description</th><th>Qty</th><th>Unit price</th><th>Total</th></tr>
{{range .LineItems}}<tr><td>{{.Description}}</td><td>{{.Quantity}}</td><td>{{.UnitPrice}}</td><td>{{.TotalPrice}}</td></tr>
{{end}}</table>
<p>Subtotal: {{.SubtotalFmt}}</p>
<p>Discount ({{.DiscountPercent}}%): {{.DiscountFmt}}</p>
<p>Tax: {{.TaxFmt}}</p>
<p><strong>Total: {{.TotalFmt}}</strong></p>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
</body></html>`))

type contractView struct {
	Contract
	SubtotalFmt string
	DiscountFmt string
	TaxFmt      string
	TotalFmt    string
}

func contractHTML(c Contract) string {
	view := contractView{
		Contract:    c,
		SubtotalFmt: formatAmount(c.Subtotal, c.Currency),
		DiscountFmt: formatAmount(c.DiscountAmount, c.Currency),
		TaxFmt:      formatAmount(c.TaxAmount, c.Currency),
		TotalFmt:    formatAmount(c.Total, c.Currency),
	}
	var b strings.Builder
	if err := contractTmpl.Execute(&b, view); err != nil {
		// Template data is fully under our control; fall back to a bare page.
		return fmt.Sprintf("<html><body><h1>Contract %s</h1></body></html>", c.Number)
	}
	return b.String()
}

var supplierContractTmpl = template.Must(template.New("supplier_contract").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Supplier contract {{.Number}}</title></head>
<body>
<h1>Supplier Contract {{.Number}}</h1>
<p>Status: {{.Status}}</p>
<p><strong>Contract value: {{.ValueFmt}}</strong></p>
{{if .PaymentSchedule}}<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Milestone</th><th>%</th><th>Amount</th><th>Status</th></tr>
{{range .PaymentSchedule}}<tr><td>{{.Description}}</td><td>{{.Percentage}}</td><td>{{.Amount}}</td><td>{{.Status}}</td></tr>
{{end}}</table>{{end}}
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
</body></html>`))

type supplierContractView struct {
	SupplierContract
	ValueFmt string
}

func supplierContractHTML(sc SupplierContract) string {
	view := supplierContractView{SupplierContract: sc, ValueFmt: formatAmount(sc.ContractValue, sc.Currency)}
	var b strings.Builder
	if err := supplierContractTmpl.Execute(&b, view); err != nil {
		return fmt.Sprintf("<html><body><h1>Supplier Contract %s</h1></body></html>", sc.Number)
	}
	return b.String()
}
