package pipeline

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fieldsync/internal/catalog"
	"github.com/odyssey-erp/fieldsync/internal/drift"
	"github.com/odyssey-erp/fieldsync/internal/field"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/platform/lock"
)

type stockSide struct {
	mu        sync.Mutex
	stocks    []field.Stock
	materials []field.Material
	warehouse []field.Warehouse
	folders   []field.Folder
	moved     []field.StockMovementPayload
	created   []field.MaterialPayload
	failCode  string
	stockErr  error
}

func (s *stockSide) Stocks(ctx context.Context) ([]field.Stock, error) {
	return s.stocks, s.stockErr
}

func (s *stockSide) Materials(ctx context.Context) ([]field.Material, error) {
	return s.materials, nil
}

func (s *stockSide) Warehouses(ctx context.Context) ([]field.Warehouse, error) {
	return s.warehouse, nil
}

func (s *stockSide) Folders(ctx context.Context) ([]field.Folder, error) {
	return s.folders, nil
}

func (s *stockSide) CreateFolder(ctx context.Context, p field.FolderPayload) (string, error) {
	return "f-" + p.Code, nil
}

func (s *stockSide) CreateMaterial(ctx context.Context, p field.MaterialPayload) (string, error) {
	if p.Code == s.failCode {
		return "", errors.New("rejected")
	}
	s.created = append(s.created, p)
	return "m-" + p.Code, nil
}

func (s *stockSide) CreateStockMovement(ctx context.Context, p field.StockMovementPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moved = append(s.moved, p)
	return "mv1", nil
}

type ledgerSide struct {
	stock    []ledger.StockRecord
	products []ledger.Product
}

func (l *ledgerSide) StockSnapshot(ctx context.Context) ([]ledger.StockRecord, error) {
	return l.stock, nil
}

func (l *ledgerSide) Products(ctx context.Context) ([]ledger.Product, error) {
	return l.products, nil
}

func TestDriftPostsCorrections(t *testing.T) {
	ctx := context.Background()
	fs := &stockSide{
		stocks:    []field.Stock{{MaterialID: "m1", WarehouseID: "w1", Quantity: decimal.NewFromInt(3)}},
		materials: []field.Material{{ID: "m1", Code: "PIPE"}},
		warehouse: []field.Warehouse{{ID: "w1", FullCode: "WH-NORTH"}},
	}
	ls := &ledgerSide{
		stock:    []ledger.StockRecord{{ProductID: 77, ProductReferenceCode: "PIPE", WarehouseName: "WH-North Depot", QuantityOnHand: decimal.NewFromInt(10)}},
		products: []ledger.Product{{ID: 77, StandardPrice: decimal.NewFromInt(4)}},
	}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	d := &Drift{
		Field:      fs,
		Ledger:     ls,
		Reconciler: &drift.Reconciler{Mover: fs, Policy: drift.MatchUnique},
		Locker:     lock.NewLocal(),
		Metrics:    metrics,
	}

	resp := d.Run(ctx)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body.Message)
	require.Equal(t, "1 movements posted", resp.Body.Message)
	require.Len(t, fs.moved, 1)
	require.Equal(t, field.MovementAdd, fs.moved[0].Movement)
	require.Equal(t, float64(7), fs.moved[0].Quantity)
	count, err := testutil.GatherAndCount(reg, "fieldsync_drift_movements_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestDriftSnapshotFailureNotifies(t *testing.T) {
	sink := &captureSink{}
	fs := &stockSide{stockErr: errors.New("field down")}
	d := &Drift{
		Field:      fs,
		Ledger:     &ledgerSide{},
		Reconciler: &drift.Reconciler{Mover: fs},
		Notifier:   sink,
	}

	resp := d.Run(context.Background())
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, resp.Body.Message, "field down")
	require.Len(t, sink.notices, 1)
}

func TestCatalogNotifiesOnFailedProducts(t *testing.T) {
	sink := &captureSink{}
	fs := &stockSide{failCode: "BAD"}
	ls := &ledgerSide{products: []ledger.Product{
		{ID: 1, Name: "Pipe", DefaultCode: "PIPE"},
		{ID: 2, Name: "Broken", DefaultCode: "BAD"},
	}}
	c := &Catalog{
		Syncer:   &catalog.Syncer{Field: fs, Ledger: ls},
		Locker:   lock.NewLocal(),
		Notifier: sink,
	}

	resp := c.Run(context.Background())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1 folders and 1 materials created", resp.Body.Message)
	require.Len(t, fs.created, 1)
	require.Len(t, sink.notices, 1)
	require.Contains(t, sink.notices[0].message, "1 products")
}
