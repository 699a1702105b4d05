package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/elee1766/chainpilot/src/aiprovider"
	"github.com/elee1766/chainpilot/src/aisdk"
	"github.com/elee1766/chainpilot/src/assistant"
	"github.com/elee1766/chainpilot/src/chainapi"
	"github.com/elee1766/chainpilot/src/chatstore"
	"github.com/elee1766/chainpilot/src/config"
	"github.com/elee1766/chainpilot/src/events"
	"github.com/elee1766/chainpilot/src/proposal"
	"github.com/elee1766/chainpilot/src/storage"
	"github.com/elee1766/chainpilot/src/timing"
)

// App represents the main application with all services
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *chatstore.Store
	Providers *aiprovider.Registry
	Chains    *chainapi.Client // nil when no chain service is configured
	Applier   *proposal.Applier
	Events    events.EventSink
	Assistant *assistant.Assistant

	backend io.Closer

	mu     sync.Mutex
	chains map[string]*chainapi.Chain
}

// Options holds what New needs besides the loaded configuration
type Options struct {
	Config     *config.Config
	Logger     *slog.Logger
	Fs         afero.Fs // file backend filesystem, OS when nil
	Processors []events.EventProcessor
	Confirmer  assistant.Confirmer
	Clock      timing.Clock
}

// New creates a new App instance with all services initialized
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		chains: make(map[string]*chainapi.Chain),
	}

	backend, closer, err := openBackend(cfg.Storage, opts.Fs)
	if err != nil {
		return nil, err
	}
	a.backend = closer

	a.Store = chatstore.New(backend, chatstore.Options{
		SaveDebounce: cfg.Chat.SaveDebounce,
		Clock:        opts.Clock,
		Logger:       logger,
	})

	a.Providers = aiprovider.NewRegistry(logger)
	a.Providers.Register(aiprovider.MockProviderID, func(context.Context) (aisdk.Provider, error) {
		return aiprovider.NewMockProvider(), nil
	})
	a.Providers.Register(aiprovider.HTTPProviderID, func(context.Context) (aisdk.Provider, error) {
		p, err := aiprovider.NewHTTPProvider(aiprovider.Config{
			ServiceURL:  cfg.API.ServiceURL,
			APIKey:      cfg.API.APIKey,
			ModelID:     cfg.API.ModelID,
			Temperature: cfg.API.Temperature,
			MaxTokens:   cfg.API.MaxTokens,
			Timeout:     cfg.API.Timeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	a.Events = events.NewChannelEventSink(64, logger, opts.Processors...)

	if cfg.Chains.BaseURL != "" {
		client, err := chainapi.NewClient(chainapi.Config{
			BaseURL: cfg.Chains.BaseURL,
			Timeout: cfg.Chains.Timeout,
			Logger:  logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create chain client: %w", err)
		}
		a.Chains = client
		a.Applier = proposal.NewApplier(client, proposal.ApplierOptions{
			Refresh: a.RefreshChain,
			Events:  a.Events,
			Logger:  logger,
		})
	}

	asst, err := assistant.New(assistant.Config{
		Store:           a.Store,
		Providers:       a.Providers,
		ProviderID:      cfg.API.Provider,
		Applier:         a.Applier,
		Confirmer:       opts.Confirmer,
		Events:          a.Events,
		RefreshChain:    a.refreshFunc(),
		Clock:           opts.Clock,
		FlushInterval:   cfg.Chat.FlushInterval,
		RefreshInterval: cfg.Chat.RefreshInterval,
		Logger:          logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create assistant: %w", err)
	}
	a.Assistant = asst

	return a, nil
}

func openBackend(cfg config.StorageConfig, fs afero.Fs) (chatstore.Backend, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFile:
		dir := cfg.Path
		if dir == "" {
			dir = config.GetDefaultStoragePaths().SessionsDir
		}
		b := storage.NewFileBackend(fs, dir)
		return b, b, nil
	case config.BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = config.GetDefaultStoragePaths().DatabasePath
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
		db, err := storage.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return db, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *App) refreshFunc() func(ctx context.Context, chainID string) error {
	if a.Chains == nil {
		return nil
	}
	return a.RefreshChain
}

// RefreshChain reloads a chain from the chain service into the view cache.
func (a *App) RefreshChain(ctx context.Context, chainID string) error {
	if a.Chains == nil {
		return chainapi.ErrNotConfigured
	}
	chain, err := a.Chains.GetChain(ctx, chainID)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.chains[chainID] = chain
	a.mu.Unlock()
	a.Logger.Debug("chain refreshed", "chain_id", chainID, "elements", len(chain.Elements))
	return nil
}

// Chain returns the most recently refreshed view of a chain.
func (a *App) Chain(chainID string) (*chainapi.Chain, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.chains[chainID]
	return c, ok
}

// Banner returns a persistent warning for a configuration that cannot reach
// the assistant service, or "".
func (a *App) Banner() string {
	if a.Config.API.Provider == aiprovider.HTTPProviderID && a.Config.API.ServiceURL == "" {
		return aiprovider.ErrNotConfigured.Error() + "; set api.service_url or CHAINPILOT_SERVICE_URL"
	}
	return ""
}

// Close flushes pending session writes and closes all resources held by the app
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
