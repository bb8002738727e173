package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fieldsync/internal/catalog"
	"github.com/odyssey-erp/fieldsync/internal/drift"
	"github.com/odyssey-erp/fieldsync/internal/field"
	jobmetrics "github.com/odyssey-erp/fieldsync/internal/jobs"
	"github.com/odyssey-erp/fieldsync/internal/ledger"
	"github.com/odyssey-erp/fieldsync/internal/notify"
	"github.com/odyssey-erp/fieldsync/internal/pipeline"
	"github.com/odyssey-erp/fieldsync/internal/platform/lock"
	"github.com/odyssey-erp/fieldsync/internal/poster"
	"github.com/odyssey-erp/fieldsync/internal/reconcile"
	"github.com/odyssey-erp/fieldsync/internal/reversal"
	"github.com/odyssey-erp/fieldsync/internal/secrets"
	"github.com/odyssey-erp/fieldsync/internal/store"
	"github.com/odyssey-erp/fieldsync/internal/translate"
	"github.com/odyssey-erp/fieldsync/jobs"
)

// Deps are the process-level resources the pipelines are built from.
type Deps struct {
	Config   *Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    redis.UniversalClient
	Notifier notify.Sink
	Metrics  *jobmetrics.Metrics
}

// Services are the wired pipelines and the clients behind them.
type Services struct {
	Secrets   *secrets.Cached
	Field     *field.Client
	Ledger    *ledger.Gateway
	Materials *pipeline.Materials
	Labour    *pipeline.Labour
	Drift     *pipeline.Drift
	Catalog   *pipeline.Catalog
	Cleaners  []jobs.Cleaner
}

// NewSecrets selects the credential source: a mounted JSON bundle when
// SECRETS_FILE is set, the environment otherwise.
func NewSecrets(cfg *Config) *secrets.Cached {
	var source secrets.Provider = secrets.EnvProvider{}
	if cfg.SecretsFile != "" {
		source = secrets.FileProvider{Path: cfg.SecretsFile}
	}
	return secrets.NewCached(source, cfg.SecretsTTL)
}

// BuildServices wires every pipeline against the configured backends.
func BuildServices(ctx context.Context, d Deps) (*Services, error) {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rate, err := cfg.HourlyRate()
	if err != nil {
		return nil, err
	}

	creds := NewSecrets(cfg)
	httpClient := &http.Client{Timeout: cfg.RemoteTimeout}
	fieldClient, err := field.NewClient(field.Config{
		BaseURL:    cfg.FieldBaseURL,
		Secrets:    creds,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	gateway := ledger.NewGateway(ledger.GatewayConfig{
		BaseURL: cfg.LedgerBaseURL,
		Session: ledger.NewSession(ledger.SessionConfig{
			BaseURL:    cfg.LedgerBaseURL,
			Secrets:    creds,
			HTTPClient: httpClient,
			Logger:     logger,
		}),
		HTTPClient: httpClient,
		Logger:     logger,
	})

	backends, err := newBackends(ctx, d)
	if err != nil {
		return nil, err
	}
	var locker lock.Locker = lock.NewLocal()
	if d.Redis != nil {
		locker = lock.NewRedis(d.Redis, cfg.LockTTL)
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.LogSink{Logger: logger}
	}

	translator := translate.New(gateway, gateway, translate.Config{
		ValuationAccountID: cfg.ValuationAccountID,
		LabourAccountID:    cfg.LabourAccountID,
		HourlyRate:         rate,
	}, logger)
	posterCfg := poster.Config{
		ScrapLocationID:   cfg.ScrapLocationID,
		FailureJournalID:  cfg.FailureJournalID,
		ScheduleJournalID: cfg.ScheduleJournalID,
		Concurrency:       cfg.PostConcurrency,
	}

	options := func(name string, offsetAccountID int64) (pipeline.Options, *poster.Poster) {
		b := backends[name]
		p := poster.New(gateway, b.store, posterCfg, logger)
		return pipeline.Options{
			Reconciler: reconcile.NewEngine(b.store, logger),
			Reversal: &reversal.Engine{
				Store:           b.store,
				Translator:      translator,
				Poster:          p,
				OffsetAccountID: offsetAccountID,
				Logger:          logger,
			},
			Claims:         b.claims,
			Locker:         locker,
			Notifier:       notifier,
			Contacts:       fieldClient,
			Metrics:        d.Metrics,
			StopAfterFirst: cfg.StopAfterFirst,
			Logger:         logger,
		}, p
	}

	materialOpts, materialPoster := options(pipeline.NameMaterials, cfg.ValuationAccountID)
	labourOpts, labourPoster := options(pipeline.NameLabour, cfg.LabourAccountID)

	svc := &Services{
		Secrets: creds,
		Field:   fieldClient,
		Ledger:  gateway,
		Materials: &pipeline.Materials{
			Field:      fieldClient,
			Ledger:     gateway,
			Translator: translator,
			Poster:     materialPoster,
			Options:    materialOpts,
		},
		Labour: &pipeline.Labour{
			Field:      fieldClient,
			Translator: translator,
			Poster:     labourPoster,
			Options:    labourOpts,
		},
		Drift: &pipeline.Drift{
			Field:  fieldClient,
			Ledger: gateway,
			Reconciler: &drift.Reconciler{
				Mover:       fieldClient,
				Policy:      drift.WarehousePolicy(cfg.DriftMatch),
				Concurrency: cfg.PostConcurrency,
				Logger:      logger,
			},
			Locker:   locker,
			Notifier: notifier,
			Metrics:  d.Metrics,
			Logger:   logger,
		},
		Catalog: &pipeline.Catalog{
			Syncer: &catalog.Syncer{
				Field:         fieldClient,
				Ledger:        gateway,
				DefaultFolder: cfg.CatalogFolder,
				Logger:        logger,
			},
			Locker:   locker,
			Notifier: notifier,
			Metrics:  d.Metrics,
			Logger:   logger,
		},
	}
	for _, b := range backends {
		if c, ok := b.claims.(jobs.Cleaner); ok {
			svc.Cleaners = append(svc.Cleaners, c)
		}
	}
	return svc, nil
}

type backend struct {
	store  store.Store
	claims store.Claimer
}

// newBackends creates one namespaced mirror and claim set per order
// pipeline.
func newBackends(ctx context.Context, d Deps) (map[string]backend, error) {
	names := []string{pipeline.NameMaterials, pipeline.NameLabour}
	out := make(map[string]backend, len(names))
	switch d.Config.StoreBackend {
	case StorePostgres:
		if d.Pool == nil {
			return nil, fmt.Errorf("store backend %s requires a database pool", StorePostgres)
		}
		if err := store.Migrate(ctx, d.Pool); err != nil {
			return nil, err
		}
		for _, name := range names {
			out[name] = backend{store: store.NewPostgres(d.Pool, name), claims: store.NewPostgresClaims(d.Pool, name)}
		}
	case StoreRedis:
		if d.Redis == nil {
			return nil, fmt.Errorf("store backend %s requires a redis client", StoreRedis)
		}
		for _, name := range names {
			out[name] = backend{store: store.NewRedis(d.Redis, name), claims: store.NewRedisClaims(d.Redis, name, d.Config.ClaimRetention)}
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", d.Config.StoreBackend)
	}
	return out, nil
}
