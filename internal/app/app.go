// Package app bootstraps the correlation engine and its adapters.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"google.golang.org/grpc"

	"github.com/lcalzada-xor/mids/internal/adapters/cache"
	"github.com/lcalzada-xor/mids/internal/adapters/dispatch"
	"github.com/lcalzada-xor/mids/internal/adapters/explain"
	"github.com/lcalzada-xor/mids/internal/adapters/fingerprint"
	"github.com/lcalzada-xor/mids/internal/adapters/ingest"
	"github.com/lcalzada-xor/mids/internal/adapters/messaging"
	"github.com/lcalzada-xor/mids/internal/adapters/reporting"
	"github.com/lcalzada-xor/mids/internal/adapters/storage"
	"github.com/lcalzada-xor/mids/internal/adapters/web/hub"
	webserver "github.com/lcalzada-xor/mids/internal/adapters/web/server"
	"github.com/lcalzada-xor/mids/internal/config"
	"github.com/lcalzada-xor/mids/internal/core/domain"
	"github.com/lcalzada-xor/mids/internal/core/services/audit"
	"github.com/lcalzada-xor/mids/internal/core/services/correlator"
	grpcserver "github.com/lcalzada-xor/mids/internal/core/services/grpc"
	"github.com/lcalzada-xor/mids/internal/core/services/persistence"
	"github.com/lcalzada-xor/mids/internal/core/services/profile"
	"github.com/lcalzada-xor/mids/internal/core/services/threats"
	"github.com/lcalzada-xor/mids/internal/telemetry"
)

const vendorCacheSize = 20000

// Application holds the engine and every adapter wired around it.
type Application struct {
	Config   *config.Config
	Settings correlator.Settings

	Store              *storage.SQLiteAdapter
	PersistenceManager *persistence.PersistenceManager
	Engine             *correlator.Engine
	Vendors            *fingerprint.Resolver
	Decoder            *ingest.Decoder
	Hub                *hub.Hub
	WebServer          *webserver.Server
	GrpcServer         *grpc.Server

	// Optional integrations, nil when not configured.
	NATS       *nats.Conn
	Subscriber *messaging.TelemetrySubscriber
	RiskCache  *cache.RiskCache

	profiles  *profile.Store
	events    *threats.Store
	decisions *audit.DecisionLog
}

// New creates a new Application instance and bootstraps its components.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}
	if err := app.bootstrap(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}
	return app, nil
}

func (app *Application) bootstrap(ctx context.Context) error {
	telemetry.InitMetrics()

	settings, err := config.LoadPolicy(app.Config.PolicyPath)
	if err != nil {
		return err
	}
	app.Settings = settings

	if err := app.initStorage(ctx); err != nil {
		return err
	}
	app.initVendors()

	if app.Config.NATSURL != "" {
		conn, err := messaging.Connect(app.Config.NATSURL, slog.Default())
		if err != nil {
			return err
		}
		app.NATS = conn
	}
	if app.Config.RedisAddr != "" {
		rc, err := cache.NewRiskCache(ctx, app.Config.RedisAddr, app.Config.RiskTTL)
		if err != nil {
			slog.Warn("risk cache unavailable, continuing without it", "addr", app.Config.RedisAddr, "error", err)
		} else {
			app.RiskCache = rc
		}
	}

	app.Hub = hub.New(slog.Default())
	app.initEngine()

	decoder, err := ingest.NewDecoder(app.Engine, app.Vendors, 0, slog.Default())
	if err != nil {
		return err
	}
	app.Decoder = decoder

	if app.NATS != nil {
		app.Subscriber = messaging.NewTelemetrySubscriber(app.NATS, decoder, slog.Default())
	}
	app.initServers()
	return nil
}

func (app *Application) initStorage(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}
	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	app.Store = store
	app.PersistenceManager = persistence.NewPersistenceManager(app.Config.MaxPendingWrites)

	app.profiles = profile.NewStore(app.Settings.Profile, store, app.PersistenceManager)
	app.events = threats.NewStore(store, app.PersistenceManager)
	app.decisions = audit.NewDecisionLog(store, app.PersistenceManager)

	// A store that cannot be read at startup is fatal; one that fails later only degrades durability.
	if err := app.profiles.Load(ctx); err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if err := app.events.Load(ctx); err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	if err := app.decisions.Load(ctx); err != nil {
		return fmt.Errorf("failed to load decisions: %w", err)
	}
	return nil
}

func (app *Application) initVendors() {
	sources := []fingerprint.VendorSource{}
	if app.Config.OUIDBPath != "" {
		db, err := fingerprint.OpenVendorDB(app.Config.OUIDBPath)
		if err != nil {
			slog.Warn("failed to open OUI database, using built-in vendors", "path", app.Config.OUIDBPath, "error", err)
		} else {
			sources = append(sources, db)
		}
	}
	sources = append(sources, fingerprint.CommonVendors)
	app.Vendors = fingerprint.NewResolver(vendorCacheSize, sources...)
}

func (app *Application) initEngine() {
	publishers := fanout{app.Hub}
	router := dispatch.NewRouter(dispatch.NewLogDispatcher(slog.Default())).
		Route(app.Hub, domain.ActionNotify)
	if app.NATS != nil {
		publishers = append(publishers, messaging.NewPublisher(app.NATS))
		router.Route(dispatch.NewNATSDispatcher(app.NATS),
			domain.ActionDisconnect, domain.ActionLockdown, domain.ActionIsolate, domain.ActionReset)
	}

	deps := correlator.Deps{
		Profiles:   app.profiles,
		Events:     app.events,
		Decisions:  app.decisions,
		Dispatcher: router,
		Publisher:  publishers,
	}
	if app.Config.ExplainURL != "" {
		deps.Explainer = explain.NewHTTPExplainer(app.Config.ExplainURL)
	}
	if app.RiskCache != nil {
		deps.RiskSink = app.RiskCache
	}
	app.Engine = correlator.NewEngine(app.Settings, deps)
}

func (app *Application) initServers() {
	opts := webserver.Options{
		Addr:           app.Config.Addr,
		Service:        app.Engine,
		Ingest:         app.Decoder,
		Hub:            app.Hub,
		Exporter:       reporting.NewPDFExporter(),
		Writes:         app.PersistenceManager,
		Store:          app.Store,
		RequestsPerMin: app.Config.RequestsPerMin,
	}
	if app.RiskCache != nil {
		opts.Ranker = app.RiskCache
	}
	app.WebServer = webserver.NewServer(opts)

	if app.Config.GRPCAddr != "" {
		app.GrpcServer = grpcserver.NewGrpcServer(app.Decoder, slog.Default())
	}
}

// Run starts every component and blocks until ctx is cancelled or a server fails.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("starting mids components")

	if err := app.Engine.VerifyDecisions(); err != nil {
		slog.Error("decision audit chain is broken", "error", err)
	}

	app.PersistenceManager.Start(ctx)
	app.Engine.Start(ctx)

	errChan := make(chan error, 4)

	if app.Config.WatchPolicy && app.Config.PolicyPath != "" {
		watcher := config.NewPolicyWatcher(app.Config.PolicyPath, app.Engine.ApplySettings)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Warn("policy watcher stopped", "error", err)
			}
		}()
	}

	if app.Subscriber != nil {
		if err := app.Subscriber.Start(ctx); err != nil {
			return fmt.Errorf("nats subscribe failed: %w", err)
		}
	}

	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	if app.GrpcServer != nil {
		lis, err := net.Listen("tcp", app.Config.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen error: %w", err)
		}
		go func() {
			slog.Info("grpc server listening", "addr", app.Config.GRPCAddr)
			if err := app.GrpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errChan <- fmt.Errorf("grpc server error: %w", err)
			}
		}()
		go func() {
			<-ctx.Done()
			app.GrpcServer.GracefulStop()
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Close waits for in-flight work and releases every connection. The persistence
// queue is flushed once more so writes accepted during shutdown reach the store.
func (app *Application) Close() {
	if app.Engine != nil {
		app.Engine.Wait()
	}
	if app.PersistenceManager != nil && app.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := app.PersistenceManager.Flush(ctx); err != nil {
			slog.Warn("pending writes lost on shutdown", "pending", app.PersistenceManager.Pending(), "error", err)
		}
		cancel()
	}
	if app.Subscriber != nil {
		app.Subscriber.Stop()
	}
	if app.NATS != nil {
		app.NATS.Drain()
	}
	if app.RiskCache != nil {
		app.RiskCache.Close()
	}
	if app.Vendors != nil {
		app.Vendors.Close()
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}
}
