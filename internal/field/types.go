package field

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// ID is an identifier normalised to its canonical key whether the API sent
// it as a number or a string.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (i *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*i = ID(shared.ToKey(v))
	return nil
}

func (i *ID) ptr() *string {
	if i == nil || *i == "" {
		return nil
	}
	s := string(*i)
	return &s
}

// RelatedType discriminates the work item a request belongs to.
type RelatedType string

const (
	// RelatedFailure is a corrective (failure) work order.
	RelatedFailure RelatedType = "FAILURE"
	// RelatedSchedule is a preventive (scheduled) work order.
	RelatedSchedule RelatedType = "SCHEDULE_WORK"
)

// Valid reports whether t is a known related type.
func (t RelatedType) Valid() bool {
	return t == RelatedFailure || t == RelatedSchedule
}

// SourceRequest is one unit of field-system work.
type SourceRequest struct {
	RequestID      string
	RelatedToID    string
	RelatedToType  RelatedType
	Type           string
	DateCreated    string
	DateUpdated    string
	OperatorID     string
	CostCenterRef  *string
	JournalMoveRef *string
	StockMoveRefs  []string
}

type requestAttributes struct {
	RelatedToID    ID          `json:"relatedToId"`
	RelatedToType  RelatedType `json:"relatedToType"`
	Type           string      `json:"type"`
	DateCreated    string      `json:"dateCreated"`
	DateUpdated    string      `json:"dateUpdated"`
	OperatorID     ID          `json:"operatorId"`
	CostCenterRef  *ID         `json:"costCenterId"`
	JournalMoveRef *ID         `json:"journalMoveRef"`
	StockMoveRefs  []ID        `json:"stockMoveRefs"`
}

func (a requestAttributes) request(id ID) SourceRequest {
	req := SourceRequest{
		RequestID:      string(id),
		RelatedToID:    string(a.RelatedToID),
		RelatedToType:  a.RelatedToType,
		Type:           a.Type,
		DateCreated:    a.DateCreated,
		DateUpdated:    a.DateUpdated,
		OperatorID:     string(a.OperatorID),
		CostCenterRef:  a.CostCenterRef.ptr(),
		JournalMoveRef: a.JournalMoveRef.ptr(),
	}
	for _, ref := range a.StockMoveRefs {
		req.StockMoveRefs = append(req.StockMoveRefs, string(ref))
	}
	return req
}

// WorkOrder is a maintenance task carrying labour effort.
type WorkOrder struct {
	ID             string
	Code           string
	Type           RelatedType
	Status         string
	DateCreated    string
	DateUpdated    string
	OperatorID     string
	CostCenterID   string
	CostCenterName string
	LabourHours    decimal.Decimal
}

type workOrderAttributes struct {
	Code           string          `json:"code"`
	Type           RelatedType     `json:"type"`
	Status         string          `json:"status"`
	DateCreated    string          `json:"dateCreated"`
	DateUpdated    string          `json:"dateUpdated"`
	OperatorID     ID              `json:"operatorId"`
	CostCenterID   ID              `json:"costCenterId"`
	CostCenterName string          `json:"costCenterName"`
	LabourHours    decimal.Decimal `json:"labourHours"`
}

func (a workOrderAttributes) order(id ID, fallback RelatedType) WorkOrder {
	typ := a.Type
	if typ == "" {
		typ = fallback
	}
	return WorkOrder{
		ID:             string(id),
		Code:           a.Code,
		Type:           typ,
		Status:         a.Status,
		DateCreated:    a.DateCreated,
		DateUpdated:    a.DateUpdated,
		OperatorID:     string(a.OperatorID),
		CostCenterID:   string(a.CostCenterID),
		CostCenterName: a.CostCenterName,
		LabourHours:    a.LabourHours,
	}
}

// Request adapts a work order to the request shape used for reconciliation.
func (w WorkOrder) Request() SourceRequest {
	req := SourceRequest{
		RequestID:     w.ID,
		RelatedToID:   w.ID,
		RelatedToType: w.Type,
		Type:          "LABOUR",
		DateCreated:   w.DateCreated,
		DateUpdated:   w.DateUpdated,
		OperatorID:    w.OperatorID,
	}
	if w.CostCenterID != "" {
		cc := w.CostCenterID
		req.CostCenterRef = &cc
	}
	return req
}

// StockEntry is one material consumption line of a request.
type StockEntry struct {
	ID               string
	MaterialID       string
	Quantity         decimal.Decimal
	UnitPrice        decimal.Decimal
	MaterialCode     string
	MaterialFullCode string
}

type stockEntryAttributes struct {
	MaterialID ID              `json:"materialId"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
}

// OrderDetail bundles what translation needs about one request.
type OrderDetail struct {
	RequestID      string
	OrderID        string
	OrderType      RelatedType
	OrderCode      string
	CostCenterID   string
	CostCenterName string
	OperatorID     string
	LabourHours    decimal.Decimal
	Entries        []StockEntry
}

// CostCenter is a field-system cost center.
type CostCenter struct {
	ID   string
	Code string
	Name string
}

type costCenterAttributes struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Material is a field-system catalog item.
type Material struct {
	ID       string
	Code     string
	FullCode string
	Name     string
	FolderID string
}

type materialAttributes struct {
	Code     string `json:"code"`
	FullCode string `json:"fullCode"`
	Name     string `json:"name"`
	FolderID ID     `json:"folderId"`
}

// Folder groups materials.
type Folder struct {
	ID   string
	Code string
	Name string
}

type folderAttributes struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Warehouse is a field-system storage site.
type Warehouse struct {
	ID       string
	Code     string
	FullCode string
	Name     string
}

type warehouseAttributes struct {
	Code     string `json:"code"`
	FullCode string `json:"fullCode"`
	Name     string `json:"name"`
}

// Stock is the field-system quantity of a material in a warehouse.
type Stock struct {
	ID          string
	MaterialID  string
	WarehouseID string
	Quantity    decimal.Decimal
}

type stockAttributes struct {
	MaterialID  ID              `json:"materialId"`
	WarehouseID ID              `json:"warehouseId"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// User is a requester, used to enrich failure notifications.
type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type userAttributes struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// Movement is the direction of a field stock movement.
type Movement string

const (
	// MovementAdd increases field stock.
	MovementAdd Movement = "ADD"
	// MovementConsume decreases field stock.
	MovementConsume Movement = "CONSUME"
)

// Payload discriminators accepted by the create endpoint.
const (
	PayloadFolder        = "FOLDER"
	PayloadMaterial      = "MATERIAL"
	PayloadStockMovement = "stock-movement"
)

// StockMovementPayload creates a field stock movement.
type StockMovementPayload struct {
	Type        string   `json:"_type"`
	MaterialID  string   `json:"materialId"`
	WarehouseID string   `json:"warehouseId"`
	Movement    Movement `json:"movement"`
	Quantity    float64  `json:"quantity"`
	UnitPrice   float64  `json:"unitPrice,omitempty"`
	Reference   string   `json:"reference,omitempty"`
	Note        string   `json:"note,omitempty"`
}

// FolderPayload creates a folder.
type FolderPayload struct {
	Type string `json:"_type"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// MaterialPayload creates a material.
type MaterialPayload struct {
	Type      string  `json:"_type"`
	Code      string  `json:"code"`
	FullCode  string  `json:"fullCode"`
	Name      string  `json:"name"`
	FolderID  string  `json:"folderId"`
	UnitPrice float64 `json:"unitPrice"`
}
