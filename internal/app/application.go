package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"readalong/internal/api"
	"readalong/internal/archive"
	"readalong/internal/config"
	"readalong/internal/lifecycle"
	"readalong/internal/logstream"
	"readalong/internal/publish"
	"readalong/internal/relay"
	"readalong/internal/session"
	"readalong/pkg/interfaces"
)

// Application coordinates all system components.
// Initialization follows dependency order:
// Log client → Archive → Registry → Publisher → Lifecycle → Relay → API → HTTP
type Application struct {
	config     *config.Config
	logClient  *logstream.Client
	archive    *archive.Store // nil when archiving is disabled
	registry   *session.Registry
	publisher  *publish.Publisher
	lifecycle  *lifecycle.Manager
	relay      *relay.Relay
	apiServer  *api.Server
	httpServer *http.Server
}

// NewApplication validates the configuration and constructs every
// component. A missing or rejected log token fails here; the service
// refuses to start rather than serve without log access.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logClient, err := logstream.NewClient(logstream.Config{
		BaseURL: cfg.Log.Endpoint(),
		Token:   cfg.Log.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log client: %w", err)
	}

	var archiveStore *archive.Store
	if cfg.Archive.Path != "" {
		archiveStore, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open event archive: %w", err)
		}
		log.Printf("Event archive enabled: path=%s", cfg.Archive.Path)
	}

	registry := session.NewRegistry()

	// interfaces.Archiver is satisfied by *archive.Store, but a nil
	// concrete pointer must stay a nil interface downstream.
	publisher := publish.NewPublisher(logClient, registry, archiverOrNil(archiveStore))
	lifecycleManager := lifecycle.NewManager(registry, publisher, archiverOrNil(archiveStore))
	eventRelay := relay.NewRelay(registry, logClient)

	apiServer := api.NewServer(registry, publisher, lifecycleManager, eventRelay, archiverOrNil(archiveStore))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logClient:  logClient,
		archive:    archiveStore,
		registry:   registry,
		publisher:  publisher,
		lifecycle:  lifecycleManager,
		relay:      eventRelay,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// archiverOrNil converts a nil *archive.Store into a nil interface so
// downstream nil checks behave.
func archiverOrNil(store *archive.Store) interfaces.Archiver {
	if store == nil {
		return nil
	}
	return store
}

// Start begins serving HTTP requests.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting readalong relay on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("Readalong relay started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts down in reverse dependency order: HTTP first (which
// detaches all subscribers via their request contexts), then the
// archive.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down readalong relay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if app.archive != nil {
		if err := app.archive.Close(); err != nil {
			log.Printf("Archive shutdown error: %v", err)
		}
	}

	log.Printf("Readalong relay shutdown complete")
	return nil
}

// Addr returns the server address for external connections.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
