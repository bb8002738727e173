// Package catalog creates field-system materials for ledger products that
// the field system does not know yet.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// DefaultFolder receives products without a ledger category.
const DefaultFolder = "GENERAL"

// Field is the part of the field client the syncer needs.
type Field interface {
	Materials(ctx context.Context) ([]field.Material, error)
	Folders(ctx context.Context) ([]field.Folder, error)
	CreateFolder(ctx context.Context, p field.FolderPayload) (string, error)
	CreateMaterial(ctx context.Context, p field.MaterialPayload) (string, error)
}

// Products lists the ledger catalog.
type Products interface {
	Products(ctx context.Context) ([]ledger.Product, error)
}

// Outcome summarises one sync.
type Outcome struct {
	Folders   []field.Folder
	Materials []field.Material
	Skipped   int
	Failed    int
}

// Syncer ensures every coded ledger product exists as a field material.
type Syncer struct {
	Field         Field
	Ledger        Products
	DefaultFolder string
	Logger        *slog.Logger
}

// FolderFor derives the folder code of a product from its category.
func FolderFor(p ledger.Product, fallback string) string {
	name := p.Category.Name
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	name = strings.Join(strings.Fields(name), "-")
	if name == "" {
		return fallback
	}
	return strings.ToUpper(name)
}

// Sync creates missing folders and materials. Products are handled one by
// one; a failure is logged and counted without stopping the rest.
func (s *Syncer) Sync(ctx context.Context) (Outcome, error) {
	products, err := s.Ledger.Products(ctx)
	if err != nil {
		return Outcome{}, err
	}
	materials, err := s.Field.Materials(ctx)
	if err != nil {
		return Outcome{}, err
	}
	folders, err := s.Field.Folders(ctx)
	if err != nil {
		return Outcome{}, err
	}

	known := make(map[string]bool, len(materials))
	for _, m := range materials {
		known[shared.FoldKey(m.Code)] = true
	}
	folderIDs := make(map[string]string, len(folders))
	for _, f := range folders {
		folderIDs[shared.FoldKey(f.Code)] = f.ID
	}
	fallback := s.DefaultFolder
	if fallback == "" {
		fallback = DefaultFolder
	}

	var out Outcome
	for _, p := range products {
		code, err := p.ReferenceCode()
		if err != nil {
			out.Skipped++
			continue
		}
		if known[shared.FoldKey(code)] {
			continue
		}
		folderCode := FolderFor(p, fallback)
		folderID, ok := folderIDs[shared.FoldKey(folderCode)]
		if !ok {
			folderID, err = s.Field.CreateFolder(ctx, field.FolderPayload{Code: folderCode, Name: folderCode})
			if err != nil {
				out.Failed++
				s.log().Error("create folder failed", slog.String("folder", folderCode), slog.Any("error", err))
				continue
			}
			folderIDs[shared.FoldKey(folderCode)] = folderID
			out.Folders = append(out.Folders, field.Folder{ID: folderID, Code: folderCode, Name: folderCode})
		}

		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = p.DisplayName
		}
		material := field.Material{Code: code, FullCode: folderCode + "." + code, Name: name, FolderID: folderID}
		id, err := s.Field.CreateMaterial(ctx, field.MaterialPayload{
			Code:      material.Code,
			FullCode:  material.FullCode,
			Name:      material.Name,
			FolderID:  folderID,
			UnitPrice: p.StandardPrice.InexactFloat64(),
		})
		if err != nil {
			out.Failed++
			s.log().Error("create material failed", slog.String("code", code), slog.Any("error", err))
			continue
		}
		material.ID = id
		known[shared.FoldKey(code)] = true
		out.Materials = append(out.Materials, material)
	}
	s.log().Info("catalog synced",
		slog.Int("products", len(products)),
		slog.Int("folders_created", len(out.Folders)),
		slog.Int("materials_created", len(out.Materials)),
		slog.Int("failed", out.Failed))
	return out, nil
}

func (s *Syncer) log() *slog.Logger {
	if s != nil && s.Logger != nil {
		return s.Logger.With(slog.String("component", "catalog"))
	}
	return slog.Default().With(slog.String("component", "catalog"))
}
