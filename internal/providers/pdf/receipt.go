package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFProvider struct {
	// Issuer is printed in the receipt header.
	Issuer string
}

func NewPDFProvider(issuer string) *PDFProvider {
	return &PDFProvider{Issuer: issuer}
}

func (p *PDFProvider) RenderReceipt(ctx context.Context, receipt Receipt) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(receipt.PaymentID) == "" {
		return nil, fmt.Errorf("pdf: receipt without payment id")
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "Payment receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, p.Issuer, props.Text{
			Size:  10,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Receipt for payment "+receipt.PaymentID, props.Text{Top: 0}),
			text.New("Date paid: "+receipt.PaidAt, props.Text{Top: 5}),
			text.New("Reference: "+receipt.IntentID, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold}),
			text.New(receipt.BuyerName, props.Text{Top: 5}),
			text.New(receipt.BuyerEmail, props.Text{Top: 10}),
		),
	)

	total := receipt.Amount + " " + strings.ToUpper(receipt.Currency)
	m.AddRow(15,
		text.NewCol(12, total+" paid on "+receipt.PaidAt, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(8, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(8, describe(receipt), props.Text{Size: 9}),
		text.NewCol(4, total, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(2, total, props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf: generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

func describe(r Receipt) string {
	if d := strings.TrimSpace(r.Description); d != "" {
		return d
	}
	if r.OrderRef != "" {
		return "Order #" + r.OrderRef
	}
	return "Payment " + r.PaymentID
}
