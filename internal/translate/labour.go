package translate

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// TranslateLabour derives the labour-cost journal of a completed work order.
// Labour carries no inventory.
func (t *Translator) TranslateLabour(ctx context.Context, order field.WorkOrder, costCenters []field.CostCenter) (Result, error) {
	if shared.ToKey(order.ID) == "" {
		return Result{}, shared.Validationf("work order id missing")
	}
	if !order.Type.Valid() {
		return Result{}, shared.Validationf("work order %s: unknown type %q", order.ID, order.Type)
	}
	if !order.LabourHours.IsPositive() {
		return Result{}, shared.Validationf("work order %s: no labour hours", order.ID)
	}
	if !t.Config.HourlyRate.IsPositive() {
		return Result{}, shared.Validationf("labour hourly rate not configured")
	}
	account, err := t.resolveCostCenter(ctx, order.CostCenterID, order.CostCenterName, costCenters)
	if err != nil {
		return Result{}, err
	}
	ref := Reference(order.Type, order.ID)
	return Result{Accounting: Accounting{
		WorkOrderID:        order.ID,
		OrderType:          order.Type,
		Reference:          ref,
		CostCenterLedgerID: account,
		OffsetAccountID:    t.Config.LabourAccountID,
		Lines: []AccountingLine{{
			Memo:      fmt.Sprintf("%s labour %s h", ref, order.LabourHours),
			UnitPrice: t.Config.HourlyRate,
			Quantity:  order.LabourHours,
		}},
	}}, nil
}
