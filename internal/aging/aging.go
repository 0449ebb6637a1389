// Package aging buckets outstanding invoice balances by how overdue they
// are, for account statements.
package aging

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkowalski/dunlin/internal/clock"
	"github.com/mkowalski/dunlin/internal/db"
)

// Breakdown is the classic five-bucket aging report. Each bucket is the sum
// of outstanding amounts whose overdue age falls in the bucket's day range.
// Upper bounds are inclusive: day 30 is D30, day 31 is D60, day 90 is D90,
// day 91 is D90Plus.
type Breakdown struct {
	Current decimal.Decimal `json:"current"` // not yet due
	D30     decimal.Decimal `json:"d30"`     // 0-30 days overdue
	D60     decimal.Decimal `json:"d60"`     // 31-60
	D90     decimal.Decimal `json:"d90"`     // 61-90
	D90Plus decimal.Decimal `json:"d90_plus"`
}

// Zero returns a breakdown with every bucket at zero, so JSON renders 0
// rather than null.
func Zero() Breakdown {
	return Breakdown{
		Current: decimal.Zero,
		D30:     decimal.Zero,
		D60:     decimal.Zero,
		D90:     decimal.Zero,
		D90Plus: decimal.Zero,
	}
}

// Total sums all buckets.
func (b Breakdown) Total() decimal.Decimal {
	return b.Current.Add(b.D30).Add(b.D60).Add(b.D90).Add(b.D90Plus)
}

// Calculate buckets the outstanding amounts of invoices as of asOf. Paid
// invoices and invoices with nothing outstanding are skipped. Both asOf and
// due dates are normalized to midnight in loc before the day subtraction so
// time-of-day drift cannot shift an invoice across a boundary.
func Calculate(invoices []*db.Invoice, asOf time.Time, loc *time.Location) Breakdown {
	b := Zero()

	for _, inv := range invoices {
		if inv.Status == db.InvoiceStatusPaid {
			continue
		}
		outstanding := inv.Outstanding()
		if outstanding.LessThanOrEqual(decimal.Zero) {
			continue
		}

		daysOverdue := clock.DaysBetween(inv.DueDate, asOf, loc)

		switch {
		case daysOverdue < 0:
			b.Current = b.Current.Add(outstanding)
		case daysOverdue <= 30:
			b.D30 = b.D30.Add(outstanding)
		case daysOverdue <= 60:
			b.D60 = b.D60.Add(outstanding)
		case daysOverdue <= 90:
			b.D90 = b.D90.Add(outstanding)
		default:
			b.D90Plus = b.D90Plus.Add(outstanding)
		}
	}

	return b
}
