// Package cli implements the hashdrive command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/hashdriveorg/hashdrive-go/auth"
	"github.com/hashdriveorg/hashdrive-go/config"
	"github.com/hashdriveorg/hashdrive-go/discovery"
	"github.com/hashdriveorg/hashdrive-go/drive"
	"github.com/hashdriveorg/hashdrive-go/internal/node"
	"github.com/hashdriveorg/hashdrive-go/observability"
	"github.com/hashdriveorg/hashdrive-go/wallet"
)

// Version is set at build time.
var Version = "dev"

const serviceName = "hashdrive"

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// errUsage marks errors caused by bad arguments.
var errUsage = errors.New("usage")

// App is one CLI invocation.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// Environ holds KEY=VALUE pairs, as returned by os.Environ.
	Environ []string

	// Resolver overrides DNS lookups for ledger discovery.
	Resolver discovery.Resolver
}

type command struct {
	name    string
	summary string
	run     func(a *App, ctx context.Context, args []string) error
}

func commands() []command {
	return []command{
		{"serve", "run the HTTP service", (*App).serve},
		{"init", "write a config file with the effective settings", (*App).initConfig},
		{"files", "list the file records on the ledger", (*App).files},
		{"grant", "grant <index> <address>: allow a wallet to download a file", (*App).grant},
		{"discover", "discover [domain]: look up a registry deployment in DNS", (*App).discover},
		{"reconcile", "resolve stored files whose ledger record is unconfirmed", (*App).reconcile},
		{"sign", "sign <nonce>: sign a challenge with HASHDRIVE_SIGN_KEY", (*App).sign},
		{"version", "print the version", (*App).version},
	}
}

// Run executes args (without the program name) and returns an exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return ExitUsage
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		a.usage()
		return ExitOK
	}
	for _, c := range commands() {
		if c.name != name {
			continue
		}
		err := c.run(a, ctx, args[1:])
		switch {
		case err == nil:
			return ExitOK
		case errors.Is(err, flag.ErrHelp):
			return ExitOK
		case errors.Is(err, errUsage):
			fmt.Fprintf(a.Stderr, "hashdrive %s: %v\n", name, err)
			return ExitUsage
		default:
			fmt.Fprintf(a.Stderr, "hashdrive %s: %v\n", name, err)
			return ExitError
		}
	}
	fmt.Fprintf(a.Stderr, "hashdrive: unknown command %q\n", name)
	a.usage()
	return ExitUsage
}

func (a *App) usage() {
	fmt.Fprintln(a.Stderr, "usage: hashdrive <command> [flags] [args]")
	fmt.Fprintln(a.Stderr)
	tw := tabwriter.NewWriter(a.Stderr, 0, 4, 2, ' ', 0)
	for _, c := range commands() {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	_ = tw.Flush()
}

func (a *App) environ() map[string]string {
	m := make(map[string]string, len(a.Environ))
	for _, kv := range a.Environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// --- configuration ---

// configFlags are accepted by every command that needs a configuration.
// Flags override environment variables, which override the config file.
type configFlags struct {
	dataDir    string
	configPath string
	listen     string
	network    string
	ledger     string
	rpcURL     string
	contract   string
	domain     string
	dnssec     string
	logLevel   string
}

func (f *configFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dataDir, "datadir", "", "data directory (default ~/.hashdrive)")
	fs.StringVar(&f.configPath, "config", "", "config file (default <datadir>/config)")
	fs.StringVar(&f.listen, "listen", "", "HTTP listen address")
	fs.StringVar(&f.network, "network", "", "chain: mainnet, sepolia or localhost")
	fs.StringVar(&f.ledger, "ledger", "", "ledger backend: rpc or memory")
	fs.StringVar(&f.rpcURL, "rpc-url", "", "ledger node JSON-RPC URL")
	fs.StringVar(&f.contract, "contract", "", "FileRegistry contract address")
	fs.StringVar(&f.domain, "ledger-domain", "", "discover rpc url and contract from DNS")
	fs.StringVar(&f.dnssec, "dnssec-resolver", "", "validating resolver host:port for discovery")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
}

// load resolves the effective configuration. A missing config file is not
// an error.
func (f *configFlags) load(environ map[string]string) (config.Config, string, error) {
	dataDir := f.dataDir
	if dataDir == "" {
		dataDir = environ["HASHDRIVE_DATADIR"]
	}
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	path := f.configPath
	if path == "" {
		path = config.ConfigPath(dataDir)
	}

	cfg, err := config.LoadConfig(path)
	switch {
	case errors.Is(err, config.ErrConfigNotFound):
		cfg = config.DefaultConfig()
	case err != nil:
		return config.Config{}, "", err
	}
	cfg.DataDir = dataDir

	if err := config.ApplyEnvFrom(&cfg, environ); err != nil {
		return config.Config{}, "", err
	}

	overrides := []struct {
		val string
		dst *string
	}{
		{f.dataDir, &cfg.DataDir},
		{f.listen, &cfg.ListenAddr},
		{f.network, &cfg.Network},
		{f.ledger, &cfg.Ledger},
		{f.rpcURL, &cfg.RPCURL},
		{f.contract, &cfg.Contract},
		{f.domain, &cfg.LedgerDomain},
		{f.dnssec, &cfg.DNSSECResolver},
		{f.logLevel, &cfg.LogLevel},
	}
	for _, o := range overrides {
		if o.val != "" {
			*o.dst = o.val
		}
	}
	return cfg, path, nil
}

// parse parses a command's flags and loads a validated configuration.
func (a *App) parse(name string, args []string, extra func(*flag.FlagSet)) (config.Config, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	var cf configFlags
	cf.register(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return config.Config{}, nil, err
		}
		return config.Config{}, nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	cfg, _, err := cf.load(a.environ())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return config.Config{}, nil, err
	}
	return cfg, fs, nil
}

// logger builds the process logger. The returned close function releases
// the log file.
func (a *App) logger(cfg config.Config) (zerolog.Logger, func() error, error) {
	out, closeFn, err := observability.OpenLogFile(cfg.LogFile)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if cfg.LogFile == "" {
		out = a.Stderr
	}
	log, err := observability.NewLogger(serviceName, Version, cfg.LogLevel, out)
	if err != nil {
		_ = closeFn()
		return zerolog.Nop(), nil, err
	}
	return log, closeFn, nil
}

func (a *App) nodeOptions(log zerolog.Logger) node.Options {
	return node.Options{Version: Version, Logger: log, Resolver: a.Resolver}
}

// --- commands ---

func (a *App) serve(ctx context.Context, args []string) error {
	cfg, _, err := a.parse("serve", args, nil)
	if err != nil {
		return err
	}
	log, closeLog, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, serviceName, Version)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.WithoutCancel(ctx)) }()

	n, err := node.Open(ctx, cfg, a.nodeOptions(log))
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}
	log.Info().
		Str("version", Version).
		Str("network", cfg.Network).
		Str("ledger", cfg.Ledger).
		Str("datadir", cfg.DataDir).
		Msg("hashdrive starting")
	return n.Run(ctx, ln)
}

func (a *App) initConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	var cf configFlags
	cf.register(fs)
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	cfg, path, err := cf.load(a.environ())
	if err != nil {
		return err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !*force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}
	if err := config.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "wrote %s\n", path)
	return nil
}

func (a *App) files(ctx context.Context, args []string) error {
	var asJSON bool
	cfg, _, err := a.parse("files", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&asJSON, "json", false, "print JSON")
	})
	if err != nil {
		return err
	}
	log, closeLog, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	l, err := node.OpenLedger(ctx, cfg, a.nodeOptions(log), nil)
	if err != nil {
		return err
	}
	svc := drive.New(nil, l, nil, drive.Config{})
	records, err := svc.List(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(a.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tFILENAME\tCONTENT HASH\tUPLOADER")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.Index, r.Filename, r.ContentHash, r.Uploader.Checksum())
	}
	return tw.Flush()
}

func (a *App) grant(ctx context.Context, args []string) error {
	cfg, fs, err := a.parse("grant", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: grant <index> <address>", errUsage)
	}
	index, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: index must be a non-negative integer", errUsage)
	}
	if _, err := auth.ParseWallet(fs.Arg(1)); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	log, closeLog, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	l, err := node.OpenLedger(ctx, cfg, a.nodeOptions(log), nil)
	if err != nil {
		return err
	}
	txID, err := drive.New(nil, l, nil, drive.Config{}).Grant(ctx, index, fs.Arg(1))
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, txID)
	return nil
}

func (a *App) reconcile(ctx context.Context, args []string) error {
	cfg, _, err := a.parse("reconcile", args, nil)
	if err != nil {
		return err
	}
	log, closeLog, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	n, err := node.Open(ctx, cfg, a.nodeOptions(log))
	if err != nil {
		return err
	}
	defer func() { _ = n.Close() }()

	report, err := n.Drive.Reconcile(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// discoverResult is printed by discover.
type discoverResult struct {
	Domain   string `json:"domain"`
	RPCURL   string `json:"rpcUrl"`
	Contract string `json:"contract"`
}

func (a *App) discover(ctx context.Context, args []string) error {
	cfg, fs, err := a.parse("discover", args, nil)
	if err != nil {
		return err
	}
	domain := cfg.LedgerDomain
	switch fs.NArg() {
	case 0:
	case 1:
		domain = fs.Arg(0)
	default:
		return fmt.Errorf("%w: discover [domain]", errUsage)
	}
	if domain == "" {
		return fmt.Errorf("%w: no domain given and ledger_domain is not set", errUsage)
	}

	found, err := discovery.Discover(ctx, node.Resolver(cfg, node.Options{Resolver: a.Resolver}), domain)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(discoverResult{
		Domain:   domain,
		RPCURL:   found.RPCURL,
		Contract: found.Contract.Checksum(),
	})
}

// signResult is the body POST /auth/verify expects.
type signResult struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"signature"`
}

func (a *App) sign(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: sign <nonce>", errUsage)
	}

	key := a.environ()["HASHDRIVE_SIGN_KEY"]
	if key == "" {
		return errors.New("HASHDRIVE_SIGN_KEY is not set")
	}
	signer, err := wallet.SignerFromHex(key)
	if err != nil {
		return err
	}
	sig, err := signer.SignMessage([]byte(fs.Arg(0)))
	if err != nil {
		return err
	}
	return json.NewEncoder(a.Stdout).Encode(signResult{
		Wallet:    signer.Address().String(),
		Signature: wallet.EncodeSignature(sig),
	})
}

func (a *App) version(context.Context, []string) error {
	fmt.Fprintf(a.Stdout, "hashdrive %s\n", Version)
	return nil
}
