package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/money"
	"github.com/garyjia/fulfillment-engine/pkg/utils"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Sheet layout
const (
	sheetName = "Invoice"

	cellSellerName  = "B1"
	cellSellerGSTIN = "B2"
	cellStateCode   = "D2"
	cellNumber      = "B4"
	cellIssuedAt    = "D4"
	cellIRN         = "B5"
	cellOrderID     = "B6"
	cellCustomerID  = "D6"
	cellStatus      = "B7"

	headerRow    = 9
	dataRowStart = 10

	colSequence = "A"
	colBase     = "D"
	colTax      = "G"
	colTotal    = "H"

	amountFormat = "#,##0.00"
)

// SellerInfo identifies the issuing business on the document
type SellerInfo struct {
	Name  string
	GSTIN string
}

// InvoiceRenderer renders an issued invoice snapshot as an xlsx workbook
type InvoiceRenderer struct {
	seller SellerInfo
	logger *zap.Logger
}

var _ port.InvoiceRenderer = (*InvoiceRenderer)(nil)

// NewInvoiceRenderer creates a renderer. A configured GSTIN must be well formed.
func NewInvoiceRenderer(seller SellerInfo, logger *zap.Logger) (*InvoiceRenderer, error) {
	if seller.GSTIN != "" {
		if err := utils.ValidateGSTIN(seller.GSTIN); err != nil {
			return nil, fmt.Errorf("invalid seller GSTIN: %w", err)
		}
	}
	return &InvoiceRenderer{
		seller: seller,
		logger: logger,
	}, nil
}

// Render writes the invoice. Amounts come from the invoice snapshot; the
// order only supplies descriptions and quantities for matching lines.
func (r *InvoiceRenderer) Render(ctx context.Context, inv *entity.Invoice, order *entity.OrderPayload) ([]byte, error) {
	if inv == nil {
		return nil, errors.New("invoice is required")
	}

	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := r.fillHeaderSection(file, inv); err != nil {
		return nil, fmt.Errorf("failed to fill header: %w", err)
	}
	lastRow, err := r.fillLineRows(file, inv, order)
	if err != nil {
		return nil, fmt.Errorf("failed to fill lines: %w", err)
	}
	if err := r.fillSummary(file, inv, lastRow+2); err != nil {
		return nil, fmt.Errorf("failed to fill summary: %w", err)
	}
	if err := r.applyAmountFormat(file, lastRow+6); err != nil {
		return nil, fmt.Errorf("failed to format amounts: %w", err)
	}

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	r.logger.Debug("Invoice rendered",
		zap.String("invoice_number", inv.Number),
		zap.Int("lines", len(inv.Totals.Lines)))
	return buf.Bytes(), nil
}

func (r *InvoiceRenderer) fillHeaderSection(file *excelize.File, inv *entity.Invoice) error {
	status := "ACTIVE"
	if inv.Voided {
		status = "VOID: " + inv.VoidReason
	}
	cells := []struct {
		label, labelCell, cell string
		value                  interface{}
	}{
		{"Seller", "A1", cellSellerName, r.seller.Name},
		{"GSTIN", "A2", cellSellerGSTIN, r.seller.GSTIN},
		{"State code", "C2", cellStateCode, utils.StateCode(r.seller.GSTIN)},
		{"Invoice no.", "A4", cellNumber, inv.Number},
		{"Date", "C4", cellIssuedAt, inv.IssuedAt.Format("2006-01-02")},
		{"IRN", "A5", cellIRN, inv.IRN},
		{"Order", "A6", cellOrderID, inv.OrderID},
		{"Customer", "C6", cellCustomerID, inv.CustomerID},
		{"Status", "A7", cellStatus, status},
	}
	for _, c := range cells {
		if err := file.SetCellValue(sheetName, c.labelCell, c.label); err != nil {
			return fmt.Errorf("failed to set %s label: %w", c.label, err)
		}
		if err := file.SetCellValue(sheetName, c.cell, c.value); err != nil {
			return fmt.Errorf("failed to set %s: %w", c.label, err)
		}
	}

	headers := []string{"#", "Description", "Qty", "Base", "Discount", "Taxable", "GST", "Total"}
	if err := file.SetSheetRow(sheetName, fmt.Sprintf("A%d", headerRow), &headers); err != nil {
		return fmt.Errorf("failed to set column headers: %w", err)
	}
	return nil
}

// fillLineRows returns the last row written
func (r *InvoiceRenderer) fillLineRows(file *excelize.File, inv *entity.Invoice, order *entity.OrderPayload) (int, error) {
	row := dataRowStart - 1
	for i, line := range inv.Totals.Lines {
		row = dataRowStart + i

		description := line.ProductID
		var quantity interface{}
		if order != nil && i < len(order.Items) && order.Items[i].ProductID == line.ProductID {
			if order.Items[i].Description != "" {
				description = order.Items[i].Description
			}
			quantity = order.Items[i].Quantity
		}

		values := []interface{}{
			i + 1,
			description,
			quantity,
			amount(line.Base),
			amount(line.Discount),
			amount(line.Taxable),
			amount(line.Tax),
			amount(line.Total),
		}
		if err := file.SetSheetRow(sheetName, fmt.Sprintf("%s%d", colSequence, row), &values); err != nil {
			return 0, fmt.Errorf("failed to set line at row %d: %w", row, err)
		}
	}
	return row, nil
}

func (r *InvoiceRenderer) fillSummary(file *excelize.File, inv *entity.Invoice, startRow int) error {
	t := inv.Totals
	summary := []struct {
		label string
		value money.Money
	}{
		{"Subtotal", t.Subtotal},
		{"Discount", t.DiscountAmount},
		{"GST", t.TaxAmount},
		{"Shipping", t.ShippingAmount},
		{"Grand total", t.GrandTotal},
	}
	for i, s := range summary {
		row := startRow + i
		if err := file.SetCellValue(sheetName, fmt.Sprintf("%s%d", colTax, row), s.label); err != nil {
			return fmt.Errorf("failed to set %s label: %w", s.label, err)
		}
		if err := file.SetCellValue(sheetName, fmt.Sprintf("%s%d", colTotal, row), amount(s.value)); err != nil {
			return fmt.Errorf("failed to set %s: %w", s.label, err)
		}
	}
	return nil
}

func (r *InvoiceRenderer) applyAmountFormat(file *excelize.File, lastRow int) error {
	format := amountFormat
	style, err := file.NewStyle(&excelize.Style{CustomNumFmt: &format})
	if err != nil {
		return err
	}
	return file.SetCellStyle(sheetName, fmt.Sprintf("%s%d", colBase, dataRowStart), fmt.Sprintf("%s%d", colTotal, lastRow), style)
}

func amount(m money.Money) float64 {
	return m.Decimal().InexactFloat64()
}
