package statement

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// RenderPDF produces the statement PDF bytes.
func RenderPDF(s *Statement) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Account statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New(s.OrganizationName, props.Text{Style: fontstyle.Bold}),
			text.New("Statement for: "+s.ClientName, props.Text{Top: 5}),
			text.New("As of: "+s.AsOf.Format("2 January 2006"), props.Text{Top: 9}),
		),
		col.New(6),
	)

	// Invoice table
	m.AddRow(10,
		text.NewCol(4, "Invoice", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Due date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Outstanding", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, inv := range s.Invoices {
		m.AddRow(8,
			text.NewCol(4, inv.Number, props.Text{Size: 9}),
			text.NewCol(3, inv.DueDate.Format("2 Jan 2006"), props.Text{Size: 9}),
			text.NewCol(2, inv.TotalAmount.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, inv.Outstanding().StringFixed(2), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(12,
		col.New(7),
		text.NewCol(2, "Total outstanding", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, s.TotalOutstanding.StringFixed(2), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	// Aging breakdown
	m.AddRow(10,
		text.NewCol(12, "Aging", props.Text{Style: fontstyle.Bold, Size: 11, Top: 2}),
	)
	m.AddRow(8,
		text.NewCol(2, "Current", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "1-30 days", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "31-60 days", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "61-90 days", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "90+ days", props.Text{Style: fontstyle.Bold, Size: 9}),
		col.New(2),
	)
	m.AddRow(8,
		text.NewCol(2, s.Aging.Current.StringFixed(2), props.Text{Size: 9}),
		text.NewCol(2, s.Aging.D30.StringFixed(2), props.Text{Size: 9}),
		text.NewCol(2, s.Aging.D60.StringFixed(2), props.Text{Size: 9}),
		text.NewCol(2, s.Aging.D90.StringFixed(2), props.Text{Size: 9}),
		text.NewCol(2, s.Aging.D90Plus.StringFixed(2), props.Text{Size: 9}),
		col.New(2),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate statement pdf: %w", err)
	}

	return doc.GetBytes(), nil
}
