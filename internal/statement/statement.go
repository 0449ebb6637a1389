// Package statement assembles monthly account statements: the outstanding
// invoice list, total, and aging breakdown for one client, plus the rendered
// PDF that rides along on the statement email.
package statement

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkowalski/dunlin/internal/aging"
	"github.com/mkowalski/dunlin/internal/db"
)

// Statement is one client's monthly account summary as of a date.
type Statement struct {
	OrganizationName string
	ClientName       string
	AsOf             time.Time
	Invoices         []*db.Invoice
	TotalOutstanding decimal.Decimal
	Aging            aging.Breakdown
}

// Build assembles a statement from the (already filtered) invoice set.
func Build(orgName string, client *db.Client, invoices []*db.Invoice, asOf time.Time, loc *time.Location) *Statement {
	total := decimal.Zero
	for _, inv := range invoices {
		if inv.Open() {
			total = total.Add(inv.Outstanding())
		}
	}

	return &Statement{
		OrganizationName: orgName,
		ClientName:       client.DisplayName(),
		AsOf:             asOf,
		Invoices:         invoices,
		TotalOutstanding: total,
		Aging:            aging.Calculate(invoices, asOf, loc),
	}
}

// EmailSubject is the subject line of the statement email.
func (s *Statement) EmailSubject() string {
	return fmt.Sprintf("Account statement from %s, %s", s.OrganizationName, s.AsOf.Format("January 2006"))
}

// EmailBody renders the plain-text companion to the PDF attachment.
func (s *Statement) EmailBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", s.ClientName)
	fmt.Fprintf(&b, "Please find attached your account statement as of %s.\n\n", s.AsOf.Format("2 January 2006"))
	fmt.Fprintf(&b, "Total outstanding: %s\n\n", s.TotalOutstanding.StringFixed(2))
	fmt.Fprintf(&b, "Invoices on this statement:\n")
	for _, inv := range s.Invoices {
		fmt.Fprintf(&b, "  %s  due %s  outstanding %s\n",
			inv.Number, inv.DueDate.Format("2 Jan 2006"), inv.Outstanding().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nRegards,\n%s\n", s.OrganizationName)
	return b.String()
}

// AttachmentName is the file name of the PDF attachment.
func (s *Statement) AttachmentName() string {
	return fmt.Sprintf("statement-%s.pdf", s.AsOf.Format("2006-01"))
}
