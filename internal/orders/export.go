package orders

import (
	"context"
	"fmt"
	"io"
	"strings"

	"storefront/internal/domain"
	"storefront/internal/price"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Orders"

var exportHeader = []interface{}{
	"Order ID", "Date", "Customer", "Email", "Phone", "Address",
	"Status", "Payment", "Items", "Quantity", "Total", "Total (display)",
}

// ExportXLSX writes the current order list as a spreadsheet; admin only
func (c *Controller) ExportXLSX(ctx context.Context, w io.Writer) error {
	if _, err := c.gate.RequireRole(ctx, domain.RoleAdmin); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, o := range c.Orders() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := exportRow(o)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write order %s: %w", o.ID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}

func exportRow(o domain.Order) []interface{} {
	names := make([]string, 0, len(o.Items))
	quantity := 0
	for _, item := range o.Items {
		names = append(names, fmt.Sprintf("%s (%s) x%d", item.Name, item.Size, item.Quantity))
		quantity += item.Quantity
	}

	a := o.Shipping.Address
	address := strings.Join(nonEmpty(a.Street, a.City, a.State, a.PostalCode, a.Country), ", ")

	return []interface{}{
		o.ID,
		o.OrderDate.Format("2006-01-02 15:04"),
		o.Shipping.Name,
		o.Shipping.Email,
		o.Shipping.Phone,
		address,
		string(o.Status),
		o.PaymentMethod,
		strings.Join(names, "; "),
		quantity,
		o.Total(),
		price.FormatInt(o.Total()),
	}
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
