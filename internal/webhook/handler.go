// Package webhook exposes the pipelines over HTTP.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/fieldsync/internal/field"
	"github.com/odyssey-erp/fieldsync/internal/pipeline"
	"github.com/odyssey-erp/fieldsync/internal/platform/httpx"
	"github.com/odyssey-erp/fieldsync/internal/shared"
)

// TokenHeader carries the shared webhook secret.
const TokenHeader = "X-Webhook-Token"

// OrderRunner runs an order pipeline for one trigger.
type OrderRunner interface {
	Run(ctx context.Context, trig pipeline.Trigger) pipeline.Response
}

// SyncRunner runs a pipeline that takes no trigger.
type SyncRunner interface {
	Run(ctx context.Context) pipeline.Response
}

// Event is the inbound payload identifying one order.
type Event struct {
	Data EventData `json:"data" validate:"required"`
}

// EventData names the order. Type accepts both the order type and the
// resource name of the order.
type EventData struct {
	ID   field.ID `json:"id" validate:"required"`
	Type string   `json:"type" validate:"required,oneof=FAILURE SCHEDULE_WORK failures schedule-works"`
}

// Trigger converts the event into a pipeline trigger.
func (e Event) Trigger() pipeline.Trigger {
	t := field.RelatedType(e.Data.Type)
	switch e.Data.Type {
	case field.ResourceFailures:
		t = field.RelatedFailure
	case field.ResourceScheduleWorks:
		t = field.RelatedSchedule
	}
	return pipeline.Trigger{OrderID: string(e.Data.ID), OrderType: t}
}

// Handler serves the webhook and manual-run endpoints.
type Handler struct {
	materials OrderRunner
	labour    OrderRunner
	syncs     map[string]SyncRunner
	tokenHash []byte
	validate  *validator.Validate
	logger    *slog.Logger
}

// Config collects the runners behind the endpoints.
type Config struct {
	Materials OrderRunner
	Labour    OrderRunner
	Drift     SyncRunner
	Catalog   SyncRunner
	// TokenHash is the bcrypt hash of the shared secret. Empty disables the
	// check.
	TokenHash string
	Logger    *slog.Logger
}

// NewHandler constructs the webhook handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		materials: cfg.Materials,
		labour:    cfg.Labour,
		syncs:     map[string]SyncRunner{},
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With(slog.String("component", "webhook")),
	}
	if cfg.TokenHash != "" {
		h.tokenHash = []byte(cfg.TokenHash)
	}
	if cfg.Drift != nil {
		h.syncs[pipeline.NameDrift] = cfg.Drift
	}
	if cfg.Catalog != nil {
		h.syncs[pipeline.NameCatalog] = cfg.Catalog
	}
	return h
}

// MountRoutes attaches the webhook and pipeline routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/webhooks/material-requests", h.orderEvent(h.materials))
		r.Post("/webhooks/work-orders", h.orderEvent(h.labour))
		r.Post("/pipelines/{name}/run", h.runPipeline)
	})
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.tokenHash == nil {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get(TokenHeader))
		if token == "" || bcrypt.CompareHashAndPassword(h.tokenHash, []byte(token)) != nil {
			h.logger.Warn("webhook token rejected", slog.String("path", r.URL.Path))
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) orderEvent(runner OrderRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runner == nil {
			httpx.RespondError(w, shared.ErrNotFound)
			return
		}
		var evt Event
		if err := httpx.DecodeJSON(r, &evt); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
			return
		}
		if err := h.validate.Struct(evt); err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: %s", shared.ErrValidation, describe(err)))
			return
		}
		trig := evt.Trigger()
		h.logger.Info("order event",
			slog.String("path", r.URL.Path),
			slog.String("order_id", trig.OrderID),
			slog.String("order_type", string(trig.OrderType)))
		h.respond(w, runner.Run(r.Context(), trig))
	}
}

func (h *Handler) runPipeline(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	switch name {
	case pipeline.NameMaterials:
		if h.materials != nil {
			h.respond(w, h.materials.Run(r.Context(), pipeline.Trigger{}))
			return
		}
	case pipeline.NameLabour:
		if h.labour != nil {
			h.respond(w, h.labour.Run(r.Context(), pipeline.Trigger{}))
			return
		}
	default:
		if runner, ok := h.syncs[name]; ok {
			h.respond(w, runner.Run(r.Context()))
			return
		}
	}
	httpx.RespondError(w, fmt.Errorf("%w: pipeline %q", shared.ErrNotFound, name))
}

func (h *Handler) respond(w http.ResponseWriter, resp pipeline.Response) {
	if resp.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("pipeline failed", slog.String("message", resp.Body.Message))
	}
	httpx.JSON(w, resp.StatusCode, resp)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
