package field

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// Resource paths.
const (
	ResourceMaterialRequests = "material-requests"
	ResourceFailures         = "failures"
	ResourceScheduleWorks    = "schedule-works"
	ResourceStockEntries     = "stock-entries"
	ResourceMaterials        = "materials"
	ResourceFolders          = "folders"
	ResourceWarehouses       = "warehouses"
	ResourceStocks           = "stocks"
	ResourceCostCenters      = "cost-centers"
	ResourceUsers            = "users"
	ResourceStockMovements   = "stock-movements"
)

// StatusCompleted marks a work order ready for posting.
const StatusCompleted = "COMPLETED"

// OrderResource returns the resource path serving orders of type t.
func OrderResource(t RelatedType) (string, error) {
	switch t {
	case RelatedFailure:
		return ResourceFailures, nil
	case RelatedSchedule:
		return ResourceScheduleWorks, nil
	default:
		return "", shared.Validationf("unknown order type %q", t)
	}
}

func decode[A any, T any](rows []Resource, build func(ID, A) T) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var attrs A
		if len(row.Attributes) > 0 {
			if err := json.Unmarshal(row.Attributes, &attrs); err != nil {
				return nil, shared.Validationf("%s %s: %v", row.Type, row.ID, err)
			}
		}
		out = append(out, build(row.ID, attrs))
	}
	return out, nil
}

func filter(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			v.Set("filter["+pairs[i]+"]", pairs[i+1])
		}
	}
	return v
}

// MaterialRequests lists material requests, optionally narrowed to the
// requests of one work order.
func (c *Client) MaterialRequests(ctx context.Context, relatedToID string) ([]SourceRequest, error) {
	rows, err := c.List(ctx, ResourceMaterialRequests, filter("relatedToId", relatedToID))
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a requestAttributes) SourceRequest { return a.request(id) })
}

// WorkOrders lists completed work orders of type t, optionally narrowed to id.
func (c *Client) WorkOrders(ctx context.Context, t RelatedType, id string) ([]WorkOrder, error) {
	resource, err := OrderResource(t)
	if err != nil {
		return nil, err
	}
	rows, err := c.List(ctx, resource, filter("status", StatusCompleted, "id", id))
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a workOrderAttributes) WorkOrder { return a.order(id, t) })
}

// WorkOrder fetches one work order regardless of status.
func (c *Client) WorkOrder(ctx context.Context, t RelatedType, id string) (WorkOrder, error) {
	resource, err := OrderResource(t)
	if err != nil {
		return WorkOrder{}, err
	}
	rows, err := c.List(ctx, resource, filter("id", id))
	if err != nil {
		return WorkOrder{}, err
	}
	orders, err := decode(rows, func(rid ID, a workOrderAttributes) WorkOrder { return a.order(rid, t) })
	if err != nil {
		return WorkOrder{}, err
	}
	for _, o := range orders {
		if o.ID == shared.ToKey(id) {
			return o, nil
		}
	}
	return WorkOrder{}, shared.Validationf("%s %s not found", resource, id)
}

// OrderDetail gathers the work order, stock entries and material codes for req.
func (c *Client) OrderDetail(ctx context.Context, req SourceRequest) (OrderDetail, error) {
	order, err := c.WorkOrder(ctx, req.RelatedToType, req.RelatedToID)
	if err != nil {
		return OrderDetail{}, err
	}
	rows, err := c.List(ctx, ResourceStockEntries, filter("requestId", req.RequestID))
	if err != nil {
		return OrderDetail{}, err
	}
	entries, err := decode(rows, func(id ID, a stockEntryAttributes) StockEntry {
		return StockEntry{ID: string(id), MaterialID: string(a.MaterialID), Quantity: a.Quantity, UnitPrice: a.UnitPrice}
	})
	if err != nil {
		return OrderDetail{}, err
	}

	ids := make([]string, 0, len(entries))
	seen := map[string]bool{}
	for _, e := range entries {
		if e.MaterialID != "" && !seen[e.MaterialID] {
			seen[e.MaterialID] = true
			ids = append(ids, e.MaterialID)
		}
	}
	if len(ids) > 0 {
		materials, err := c.materials(ctx, filter("id", strings.Join(ids, ",")))
		if err != nil {
			return OrderDetail{}, err
		}
		byID := make(map[string]Material, len(materials))
		for _, m := range materials {
			byID[m.ID] = m
		}
		for i := range entries {
			m := byID[entries[i].MaterialID]
			entries[i].MaterialCode = m.Code
			entries[i].MaterialFullCode = m.FullCode
		}
	}

	costCenter := order.CostCenterID
	if req.CostCenterRef != nil && *req.CostCenterRef != "" {
		costCenter = *req.CostCenterRef
	}
	return OrderDetail{
		RequestID:      req.RequestID,
		OrderID:        order.ID,
		OrderType:      order.Type,
		OrderCode:      order.Code,
		CostCenterID:   costCenter,
		CostCenterName: order.CostCenterName,
		OperatorID:     req.OperatorID,
		LabourHours:    order.LabourHours,
		Entries:        entries,
	}, nil
}

// CostCenters lists every cost center.
func (c *Client) CostCenters(ctx context.Context) ([]CostCenter, error) {
	rows, err := c.List(ctx, ResourceCostCenters, nil)
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a costCenterAttributes) CostCenter {
		return CostCenter{ID: string(id), Code: a.Code, Name: a.Name}
	})
}

// Materials lists every material.
func (c *Client) Materials(ctx context.Context) ([]Material, error) {
	return c.materials(ctx, nil)
}

func (c *Client) materials(ctx context.Context, filters url.Values) ([]Material, error) {
	rows, err := c.List(ctx, ResourceMaterials, filters)
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a materialAttributes) Material {
		return Material{ID: string(id), Code: a.Code, FullCode: a.FullCode, Name: a.Name, FolderID: string(a.FolderID)}
	})
}

// Folders lists every material folder.
func (c *Client) Folders(ctx context.Context) ([]Folder, error) {
	rows, err := c.List(ctx, ResourceFolders, nil)
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a folderAttributes) Folder {
		return Folder{ID: string(id), Code: a.Code, Name: a.Name}
	})
}

// Warehouses lists every warehouse.
func (c *Client) Warehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := c.List(ctx, ResourceWarehouses, nil)
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a warehouseAttributes) Warehouse {
		return Warehouse{ID: string(id), Code: a.Code, FullCode: a.FullCode, Name: a.Name}
	})
}

// Stocks lists the field-system stock snapshot.
func (c *Client) Stocks(ctx context.Context) ([]Stock, error) {
	rows, err := c.List(ctx, ResourceStocks, nil)
	if err != nil {
		return nil, err
	}
	return decode(rows, func(id ID, a stockAttributes) Stock {
		return Stock{ID: string(id), MaterialID: string(a.MaterialID), WarehouseID: string(a.WarehouseID), Quantity: a.Quantity}
	})
}

// User fetches one user's contact details.
func (c *Client) User(ctx context.Context, id string) (User, error) {
	rows, err := c.List(ctx, ResourceUsers, filter("id", id))
	if err != nil {
		return User{}, err
	}
	users, err := decode(rows, func(rid ID, a userAttributes) User {
		return User{ID: string(rid), FirstName: a.FirstName, LastName: a.LastName, Email: a.Email, Phone: a.Phone}
	})
	if err != nil {
		return User{}, err
	}
	if len(users) == 0 {
		return User{}, fmt.Errorf("field: user %s: %w", id, shared.ErrNotFound)
	}
	return users[0], nil
}

// CreateStockMovement posts a stock movement and returns its id.
func (c *Client) CreateStockMovement(ctx context.Context, p StockMovementPayload) (string, error) {
	p.Type = PayloadStockMovement
	res, err := c.Create(ctx, ResourceStockMovements, p)
	if err != nil {
		return "", err
	}
	return string(res.ID), nil
}

// CreateFolder creates a folder and returns its id.
func (c *Client) CreateFolder(ctx context.Context, p FolderPayload) (string, error) {
	p.Type = PayloadFolder
	res, err := c.Create(ctx, ResourceFolders, p)
	if err != nil {
		return "", err
	}
	return string(res.ID), nil
}

// CreateMaterial creates a material and returns its id.
func (c *Client) CreateMaterial(ctx context.Context, p MaterialPayload) (string, error) {
	p.Type = PayloadMaterial
	res, err := c.Create(ctx, ResourceMaterials, p)
	if err != nil {
		return "", err
	}
	return string(res.ID), nil
}
