package app

import (
	"context"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nspcc-dev/neo-go/pkg/util"

	"github.com/R3E-Network/solver_layer/internal/app/system"
	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/config"
	"github.com/R3E-Network/solver_layer/internal/events"
	"github.com/R3E-Network/solver_layer/internal/httpapi"
	"github.com/R3E-Network/solver_layer/internal/jobs"
	"github.com/R3E-Network/solver_layer/internal/logging"
	"github.com/R3E-Network/solver_layer/internal/metrics"
	"github.com/R3E-Network/solver_layer/internal/receipts"
	"github.com/R3E-Network/solver_layer/internal/script"
	"github.com/R3E-Network/solver_layer/internal/solver"
)

// limiterIdle is how long a caller's rate limiter survives without traffic.
const limiterIdle = 30 * time.Minute

// Application ties the host, the solver and its surfaces together and
// manages their lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	manager *system.Manager
	db      *sqlx.DB
	detach  []func()

	Host      *chain.Host
	Solver    *solver.Client
	Tokens    map[string]*chain.Token
	Targets   map[string]*script.Target
	Events    *events.RingBuffer
	Receipts  receipts.Store
	Auth      *httpapi.Authenticator
	Limiter   *httpapi.RateLimiter
	Scheduler *jobs.Scheduler
	Server    *httpapi.Server
}

// New builds the application from cfg: it creates the host, deploys
// configured tokens, scripted targets and the solver, applies genesis
// allocations and wires receipts, events, metrics, jobs and the HTTP API.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("solverd")
	}
	a := &Application{
		cfg:     cfg,
		log:     log,
		manager: system.NewManager(),
		Host:    chain.NewHost(log),
		Tokens:  make(map[string]*chain.Token),
		Targets: make(map[string]*script.Target),
		Events:  events.NewRingBuffer(cfg.Events.BufferSize),
	}

	if err := a.buildReceipts(ctx); err != nil {
		return nil, err
	}
	a.detach = append(a.detach,
		a.Events.Attach(a.Host),
		metrics.ObserveHost(a.Host),
		receipts.Record(a.Host, a.Receipts, log, 5*time.Second),
	)

	if err := a.deployTokens(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.deployTargets(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.deploySolver(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.applyGenesis(); err != nil {
		a.Close()
		return nil, err
	}

	a.Auth = httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, log, httpapi.PublicPaths)
	a.Limiter = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	a.Server = httpapi.NewServer(httpapi.Options{
		Solver:   a.Solver,
		Receipts: a.Receipts,
		Events:   a.Events,
		Auth:     a.Auth,
		Limiter:  a.Limiter,
		Logger:   log,
	})

	if err := a.buildJobs(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.manager.Register(a.Scheduler); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Handler returns the HTTP API handler.
func (a *Application) Handler() http.Handler {
	return a.Server.Handler()
}

// Start starts background services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops background services and releases resources.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.Close()
	return err
}

// Run serves the API on cfg.Server.Addr until ctx is canceled, then shuts
// down gracefully.
func (a *Application) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	if err := a.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("HTTP shutdown error")
	}
	if err := a.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("service stop error")
	}
	return serveErr
}

// Close detaches host subscribers and closes the database. It is safe to
// call more than once.
func (a *Application) Close() {
	for _, fn := range a.detach {
		fn()
	}
	a.detach = nil
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
}

func (a *Application) buildReceipts(ctx context.Context) error {
	dbCfg := a.cfg.Database
	if dbCfg.DSN == "" {
		a.log.Warn("database dsn not set; receipts kept in memory")
		a.Receipts = receipts.NewMemoryStore()
		return nil
	}
	db, err := receipts.Open(ctx, dbCfg.DSN, dbCfg.MaxOpenConns)
	if err != nil {
		return fmt.Errorf("open receipts database: %w", err)
	}
	if dbCfg.Migrate {
		if err := receipts.Migrate(db.DB); err != nil {
			db.Close()
			return fmt.Errorf("migrate receipts database: %w", err)
		}
	}
	a.db = db
	a.Receipts = receipts.NewPostgresStore(db)
	return nil
}

func (a *Application) deployTokens(ctx context.Context) error {
	for _, tc := range a.cfg.Tokens {
		var minter util.Uint160
		if tc.Minter != "" {
			m, err := chain.ParseAddress(tc.Minter)
			if err != nil {
				return fmt.Errorf("token %s minter: %w", tc.Symbol, err)
			}
			minter = m
		}
		tok := chain.NewToken(chain.TokenConfig{
			Symbol:      tc.Symbol,
			Decimals:    tc.Decimals,
			Minter:      minter,
			NonStandard: tc.NonStandard,
		})
		if _, err := a.Host.Deploy(ctx, minter, tok); err != nil {
			return fmt.Errorf("deploy token %s: %w", tc.Symbol, err)
		}
		a.Tokens[tc.Symbol] = tok
		a.log.WithField("symbol", tc.Symbol).WithField("hash", chain.FormatAddress(tok.Hash())).Info("token deployed")
	}
	return nil
}

func (a *Application) deployTargets(ctx context.Context) error {
	for _, tc := range a.cfg.Targets {
		src, err := tc.Source()
		if err != nil {
			return err
		}
		target, err := script.New(tc.Name, src, tc.Timeout, a.log)
		if err != nil {
			return fmt.Errorf("target %s: %w", tc.Name, err)
		}
		if _, err := a.Host.Deploy(ctx, util.Uint160{}, target); err != nil {
			return fmt.Errorf("deploy target %s: %w", tc.Name, err)
		}
		a.Targets[tc.Name] = target
		a.log.WithField("target", tc.Name).WithField("hash", chain.FormatAddress(target.Hash())).Info("target deployed")
	}
	return nil
}

func (a *Application) deploySolver(ctx context.Context) error {
	sc := a.cfg.Solver
	owner, err := chain.ParseAddress(sc.Owner)
	if err != nil {
		return fmt.Errorf("solver owner: %w", err)
	}
	orchestrator, err := chain.ParseAddress(sc.Orchestrator)
	if err != nil {
		return fmt.Errorf("solver orchestrator: %w", err)
	}
	target, err := a.resolveTarget(sc.DelegateTarget)
	if err != nil {
		return err
	}

	a.Solver, err = solver.Deploy(ctx, a.Host, owner, solver.Config{
		Owner:          owner,
		Orchestrator:   orchestrator,
		DelegateTarget: target,
	}, a.log)
	if err != nil {
		return fmt.Errorf("deploy solver: %w", err)
	}
	a.log.WithField("hash", chain.FormatAddress(a.Solver.Hash())).
		WithField("delegate_target", chain.FormatAddress(target)).
		Info("solver deployed")
	return nil
}

// resolveTarget maps a configured target name or address to a hash.
func (a *Application) resolveTarget(ref string) (util.Uint160, error) {
	if ref == "" {
		return util.Uint160{}, nil
	}
	if t, ok := a.Targets[ref]; ok {
		return t.Hash(), nil
	}
	u, err := chain.ParseAddress(ref)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("solver delegate_target: %w", err)
	}
	return u, nil
}

func (a *Application) applyGenesis() error {
	for _, alloc := range a.cfg.Genesis {
		account, err := chain.ParseAddress(alloc.Account)
		if err != nil {
			return fmt.Errorf("genesis account: %w", err)
		}
		amount, ok := new(big.Int).SetString(alloc.Amount, 10)
		if !ok {
			return fmt.Errorf("genesis amount %q is not an integer", alloc.Amount)
		}
		asset := chain.NativeAsset
		if !config.IsNative(alloc.Asset) {
			tok, ok := a.Tokens[alloc.Asset]
			if !ok {
				return fmt.Errorf("genesis asset %s is not deployed", alloc.Asset)
			}
			asset = tok.Hash()
		}
		if err := a.Host.Credit(asset, account, amount); err != nil {
			return fmt.Errorf("genesis credit %s: %w", alloc.Account, err)
		}
	}
	return nil
}

func (a *Application) buildJobs() error {
	a.Scheduler = jobs.NewScheduler(a.log, 30*time.Second)

	tokens := make(map[string]util.Uint160, len(a.Tokens))
	for symbol, tok := range a.Tokens {
		tokens[symbol] = tok.Hash()
	}
	if err := a.Scheduler.Add(a.cfg.Jobs.CustodySnapshot, jobs.NewCustodySnapshot(a.Solver, tokens, a.log)); err != nil {
		return fmt.Errorf("schedule custody snapshot: %w", err)
	}

	cleanup := jobs.Func{JobName: "limiter_cleanup", Fn: func(ctx context.Context) error {
		if n := a.Limiter.Cleanup(limiterIdle); n > 0 {
			a.log.WithContext(ctx).WithField("removed", n).Debug("dropped idle rate limiters")
		}
		return nil
	}}
	if err := a.Scheduler.Add(a.cfg.Jobs.LimiterCleanup, cleanup); err != nil {
		return fmt.Errorf("schedule limiter cleanup: %w", err)
	}
	return nil
}
