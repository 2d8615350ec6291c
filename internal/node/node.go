// Package node assembles a hashdrive node from its configuration: the bbolt
// database, file store, ledger client, challenge manager, drive service and
// HTTP API.
package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hashdriveorg/hashdrive-go/auth"
	"github.com/hashdriveorg/hashdrive-go/config"
	"github.com/hashdriveorg/hashdrive-go/discovery"
	"github.com/hashdriveorg/hashdrive-go/drive"
	"github.com/hashdriveorg/hashdrive-go/httpapi"
	"github.com/hashdriveorg/hashdrive-go/ledger"
	"github.com/hashdriveorg/hashdrive-go/observability"
	"github.com/hashdriveorg/hashdrive-go/storage"
	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Options carries process-level collaborators.
type Options struct {
	Version string
	Logger  zerolog.Logger

	// Resolver overrides the DNS resolver used for ledger discovery.
	Resolver discovery.Resolver
}

// Node is a fully wired hashdrive instance.
type Node struct {
	Config  config.Config
	Log     zerolog.Logger
	DB      *bbolt.DB
	Store   *storage.FileStore
	Journal *storage.OrphanJournal
	Ledger  ledger.Ledger
	Auth    *auth.Manager
	Drive   *drive.Service
	Metrics *observability.Metrics
	Health  *observability.HealthChecker
	API     *httpapi.Server
}

// Open builds a Node from a validated configuration. The caller must Close
// it.
func Open(ctx context.Context, cfg config.Config, opts Options) (n *Node, err error) {
	log := opts.Logger
	metrics := observability.NewMetrics()

	l, err := OpenLedger(ctx, cfg, opts, metrics)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("node: create data dir: %w", err)
	}
	store, err := storage.NewFileStore(cfg.UploadDir(), cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if removed, err := store.CleanTemp(); err != nil {
		log.Warn().Err(err).Msg("temp file cleanup failed")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("removed interrupted uploads")
	}

	db, err := storage.OpenDB(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	journal, err := storage.NewOrphanJournal(db)
	if err != nil {
		return nil, err
	}
	challenges, err := auth.NewBoltStore(db)
	if err != nil {
		return nil, err
	}

	mgr := auth.NewManager(challenges, cfg.ChallengeTTL)
	mgr.SetLogger(log.With().Str("component", "auth").Logger())
	mgr.SetObserver(metrics)

	owners, err := cfg.OwnerAddresses()
	if err != nil {
		return nil, err
	}
	svc := drive.New(store, l, journal, drive.Config{
		OrphanGrace: cfg.OrphanGrace,
		Owners:      owners,
	})
	svc.SetLogger(log.With().Str("component", "drive").Logger())
	svc.SetObserver(metrics)

	health := observability.NewHealthChecker(opts.Version)
	health.RegisterCheck("ledger", observability.ErrorCheck(observability.HealthStatusDegraded, func(ctx context.Context) error {
		_, err := l.TotalFiles(ctx)
		return err
	}))
	health.RegisterCheck("storage", observability.ErrorCheck(observability.HealthStatusUnhealthy, func(context.Context) error {
		_, err := store.List()
		return err
	}))
	health.RegisterCheck("database", observability.ErrorCheck(observability.HealthStatusUnhealthy, func(context.Context) error {
		_, err := journal.Len()
		return err
	}))

	api := httpapi.New(svc, mgr, httpapi.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		NonceRate:      rate.Limit(cfg.NonceRate),
		NonceBurst:     cfg.NonceBurst,
		Metrics:        metrics,
		Health:         health,
	})
	api.SetLogger(log.With().Str("component", "http").Logger())

	return &Node{
		Config:  cfg,
		Log:     log,
		DB:      db,
		Store:   store,
		Journal: journal,
		Ledger:  l,
		Auth:    mgr,
		Drive:   svc,
		Metrics: metrics,
		Health:  health,
		API:     api,
	}, nil
}

// Run serves the API on ln and runs the challenge sweeper and the orphan
// reconciler until ctx is done.
func (n *Node) Run(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n.Auth.RunSweeper(ctx, n.Config.ChallengeTTL)
		return nil
	})
	g.Go(func() error {
		n.Drive.RunReconciler(ctx, n.Config.ReconcileInterval)
		return nil
	})
	g.Go(func() error {
		n.Log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		return n.API.Serve(ctx, ln)
	})
	return g.Wait()
}

// Close releases the database.
func (n *Node) Close() error {
	return n.DB.Close()
}

// Signer returns the configured signing key, or nil when none is set.
func Signer(cfg config.Config) (*wallet.Signer, error) {
	if cfg.SignKey == "" {
		return nil, nil
	}
	s, err := wallet.SignerFromHex(cfg.SignKey)
	if err != nil {
		return nil, fmt.Errorf("node: HASHDRIVE_SIGN_KEY: %w", err)
	}
	return s, nil
}

// OpenLedger builds the ledger selected by cfg. For an rpc ledger an
// explicit rpc_url or contract wins over DNS discovery, which wins over
// the network preset.
func OpenLedger(ctx context.Context, cfg config.Config, opts Options, obs ledger.Observer) (ledger.Ledger, error) {
	log := opts.Logger
	signer, err := Signer(cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Ledger {
	case "memory":
		var account wallet.Address
		if signer != nil {
			account = signer.Address()
		}
		log.Warn().Msg("using the in-memory ledger; records are lost on exit")
		return ledger.NewMemLedger(account), nil
	case "rpc":
	default:
		return nil, config.ErrInvalidLedger
	}

	netCfg, err := wallet.GetNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}

	rpcURL := cfg.RPCURL
	var contract wallet.Address
	if cfg.Contract != "" {
		if contract, err = wallet.ParseAddress(cfg.Contract); err != nil {
			return nil, fmt.Errorf("%w: %w", config.ErrInvalidContract, err)
		}
	}

	if cfg.LedgerDomain != "" && (rpcURL == "" || contract.IsZero()) {
		resolver := Resolver(cfg, opts)
		if rpcURL == "" {
			url, err := discovery.LookupRPCEndpoint(ctx, resolver, cfg.LedgerDomain)
			switch {
			case err == nil:
				rpcURL = url
			case errors.Is(err, discovery.ErrNoEndpoints) && netCfg.RPCURL != "":
				log.Info().Str("domain", cfg.LedgerDomain).Msg("no rpc endpoint published, using network default")
			default:
				return nil, err
			}
		}
		if contract.IsZero() {
			if contract, err = discovery.LookupRegistry(ctx, resolver, cfg.LedgerDomain); err != nil {
				return nil, err
			}
		}
		log.Info().Str("domain", cfg.LedgerDomain).Str("rpc_url", rpcURL).Str("contract", contract.String()).Msg("ledger discovered")
	}
	if rpcURL == "" {
		rpcURL = netCfg.RPCURL
	}
	if rpcURL == "" {
		return nil, config.ErrMissingRPCURL
	}

	rpc := ledger.NewRPCClient(ledger.RPCConfig{
		URL:      rpcURL,
		User:     cfg.RPCUser,
		Password: cfg.RPCPassword,
		Timeout:  cfg.RPCTimeout,
	})
	reg, err := ledger.NewRegistry(rpc, ledger.Options{
		Contract:           contract,
		ChainID:            netCfg.ChainID,
		Signer:             signer,
		ConfirmTimeout:     cfg.ConfirmTimeout,
		GasLimitCap:        cfg.GasLimitCap,
		GasPriceCap:        new(big.Int).Mul(new(big.Int).SetUint64(cfg.GasPriceCapGwei), big.NewInt(1e9)),
		RetryAttempts:      cfg.RetryAttempts,
		MaxConcurrentReads: cfg.MaxReads,
	})
	if err != nil {
		return nil, err
	}
	reg.SetLogger(log.With().Str("component", "ledger").Logger())
	if obs != nil {
		reg.SetObserver(obs)
	}
	if signer == nil {
		log.Warn().Msg("no signing key configured; the ledger is read-only")
	}
	return reg, nil
}

// Resolver returns the DNS resolver used for ledger discovery: opts.Resolver
// when set, a DNSSEC-validating resolver when cfg names one, otherwise the
// system resolver.
func Resolver(cfg config.Config, opts Options) discovery.Resolver {
	switch {
	case opts.Resolver != nil:
		return opts.Resolver
	case cfg.DNSSECResolver != "":
		r := discovery.NewDNSSECResolver(cfg.DNSSECResolver)
		if cfg.RPCTimeout > 0 {
			r.Timeout = cfg.RPCTimeout
		}
		return r
	default:
		return discovery.SystemResolver
	}
}
