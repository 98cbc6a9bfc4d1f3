package contracts

import "math"

// round2 rounds to two decimal places, the resolution financial figures are
// stored at.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Totals carries every derived financial figure of a contract.
type Totals struct {
	LineItems      []LineItem
	Subtotal       float64
	DiscountAmount float64
	TaxAmount      float64
	Total          float64
}

// ComputeTotals derives line totals and the contract totals. Rounding is
// applied at every intermediate step, not only at the end; downstream
// figures build on the already rounded predecessors.
func ComputeTotals(items []LineItem, discountPercent, taxRate float64) Totals {
	out := Totals{LineItems: make([]LineItem, len(items))}
	for i, item := range items {
		item.TotalPrice = round2(item.Quantity * item.UnitPrice)
		out.LineItems[i] = item
		out.Subtotal += item.TotalPrice
	}
	out.Subtotal = round2(out.Subtotal)
	out.DiscountAmount = round2(out.Subtotal * discountPercent / 100)
	out.TaxAmount = round2((out.Subtotal - out.DiscountAmount) * taxRate)
	out.Total = round2(out.Subtotal - out.DiscountAmount + out.TaxAmount)
	return out
}

// ScheduleAmounts derives milestone amounts from percentages of the
// contract value, each rounded to two decimals.
func ScheduleAmounts(value float64, schedule []PaymentMilestone) []PaymentMilestone {
	out := make([]PaymentMilestone, len(schedule))
	for i, m := range schedule {
		m.Amount = round2(value * m.Percentage / 100)
		if m.Status == "" {
			m.Status = MilestoneOpen
		}
		out[i] = m
	}
	return out
}
