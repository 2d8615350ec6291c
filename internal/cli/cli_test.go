package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashdriveorg/hashdrive-go/config"
	"github.com/hashdriveorg/hashdrive-go/drive"
	"github.com/hashdriveorg/hashdrive-go/wallet"
)

const keyOne = "0x0000000000000000000000000000000000000000000000000000000000000001"

func newApp(env ...string) (*App, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &App{Stdout: &stdout, Stderr: &stderr, Environ: env}, &stdout, &stderr
}

func TestRun_Usage(t *testing.T) {
	app, _, stderr := newApp()
	assert.Equal(t, ExitUsage, app.Run(context.Background(), nil))
	assert.Contains(t, stderr.String(), "serve")

	app, _, stderr = newApp()
	assert.Equal(t, ExitUsage, app.Run(context.Background(), []string{"frobnicate"}))
	assert.Contains(t, stderr.String(), `unknown command "frobnicate"`)

	app, _, _ = newApp()
	assert.Equal(t, ExitOK, app.Run(context.Background(), []string{"help"}))
}

func TestVersion(t *testing.T) {
	app, stdout, _ := newApp()
	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"version"}))
	assert.Equal(t, "hashdrive dev\n", stdout.String())
}

func TestSign(t *testing.T) {
	app, stdout, stderr := newApp("HASHDRIVE_SIGN_KEY=" + keyOne)
	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"sign", "3f2a9c0d"}), stderr.String())

	var res signResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf", res.Wallet)

	sig, err := wallet.DecodeSignature(res.Signature)
	require.NoError(t, err)
	recovered, err := wallet.RecoverMessage([]byte("3f2a9c0d"), sig)
	require.NoError(t, err)
	assert.Equal(t, res.Wallet, recovered.String())
}

func TestSign_Errors(t *testing.T) {
	app, _, stderr := newApp()
	assert.Equal(t, ExitError, app.Run(context.Background(), []string{"sign", "n1"}))
	assert.Contains(t, stderr.String(), "HASHDRIVE_SIGN_KEY")

	app, _, _ = newApp("HASHDRIVE_SIGN_KEY=" + keyOne)
	assert.Equal(t, ExitUsage, app.Run(context.Background(), []string{"sign"}))
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := config.DefaultConfig()
	file.ListenAddr = ":7000"
	file.Network = "sepolia"
	file.LogLevel = "debug"
	require.NoError(t, config.SaveConfig(config.ConfigPath(dir), file))

	cf := configFlags{dataDir: dir, listen: ":9000"}
	cfg, path, err := cf.load(map[string]string{
		"HASHDRIVE_LISTEN":   ":8000",
		"HASHDRIVE_NETWORK":  "mainnet",
		"HASHDRIVE_SIGN_KEY": keyOne,
	})
	require.NoError(t, err)

	assert.Equal(t, config.ConfigPath(dir), path)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, ":9000", cfg.ListenAddr, "flag beats env")
	assert.Equal(t, "mainnet", cfg.Network, "env beats file")
	assert.Equal(t, keyOne, cfg.SignKey)
	assert.Equal(t, "debug", cfg.LogLevel, "file value kept")
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cf := configFlags{configPath: filepath.Join(dir, "absent")}
	cfg, _, err := cf.load(map[string]string{"HASHDRIVE_DATADIR": dir})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, config.DefaultConfig().ListenAddr, cfg.ListenAddr)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	app, stdout, stderr := newApp()
	args := []string{"init", "-datadir", dir, "-listen", "127.0.0.1:9999"}
	require.Equal(t, ExitOK, app.Run(context.Background(), args), stderr.String())
	assert.Contains(t, stdout.String(), config.ConfigPath(dir))

	cfg, err := config.LoadConfig(config.ConfigPath(dir))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)

	app, _, stderr = newApp()
	assert.Equal(t, ExitError, app.Run(context.Background(), args))
	assert.Contains(t, stderr.String(), "already exists")

	app, _, _ = newApp()
	assert.Equal(t, ExitOK, app.Run(context.Background(), append(args, "-force")))
}

func TestInit_InvalidConfig(t *testing.T) {
	app, _, stderr := newApp()
	code := app.Run(context.Background(), []string{"init", "-datadir", t.TempDir(), "-network", "moon"})
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), `unknown network: "moon" (known: localhost, mainnet, sepolia)`)
}

func TestFiles_MemoryLedger(t *testing.T) {
	app, stdout, stderr := newApp()
	code := app.Run(context.Background(), []string{"files", "-datadir", t.TempDir(), "-ledger", "memory"})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.True(t, strings.HasPrefix(stdout.String(), "INDEX"))

	app, stdout, _ = newApp()
	code = app.Run(context.Background(), []string{"files", "-datadir", t.TempDir(), "-ledger", "memory", "-json"})
	require.Equal(t, ExitOK, code)
	assert.Equal(t, "[]\n", stdout.String())
}

func TestGrant_Arguments(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{
		{"grant", "-datadir", dir},
		{"grant", "-datadir", dir, "x", "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf"},
		{"grant", "-datadir", dir, "0", "bob"},
	} {
		app, _, _ := newApp()
		assert.Equal(t, ExitUsage, app.Run(context.Background(), args), strings.Join(args, " "))
	}

	// The in-memory ledger starts empty.
	app, _, stderr := newApp()
	code := app.Run(context.Background(), []string{"grant", "-datadir", dir, "-ledger", "memory", "0", "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf"})
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), drive.ErrNotFound.Error())
}

type staticResolver struct {
	srv []*net.SRV
	txt []string
}

func (r staticResolver) LookupSRV(context.Context, string, string, string) (string, []*net.SRV, error) {
	return "", r.srv, nil
}

func (r staticResolver) LookupTXT(context.Context, string) ([]string, error) {
	return r.txt, nil
}

func TestDiscover(t *testing.T) {
	app, stdout, stderr := newApp()
	app.Resolver = staticResolver{
		srv: []*net.SRV{{Target: "rpc.example.org.", Port: 443, Priority: 1}},
		txt: []string{"v=spf1 -all", "registry=0x5fbdb2315678afecb367f032d93f642f64180aa3"},
	}
	code := app.Run(context.Background(), []string{"discover", "-datadir", t.TempDir(), "example.org"})
	require.Equal(t, ExitOK, code, stderr.String())

	var res discoverResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, "example.org", res.Domain)
	assert.Equal(t, "https://rpc.example.org", res.RPCURL)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", res.Contract)
}

func TestDiscover_Errors(t *testing.T) {
	app, _, _ := newApp()
	assert.Equal(t, ExitUsage, app.Run(context.Background(), []string{"discover", "-datadir", t.TempDir()}))

	app, _, stderr := newApp()
	app.Resolver = staticResolver{}
	assert.Equal(t, ExitError, app.Run(context.Background(), []string{"discover", "-datadir", t.TempDir(), "example.org"}))
	assert.Contains(t, stderr.String(), "no SRV records")
}

func TestReconcile_Empty(t *testing.T) {
	app, stdout, stderr := newApp()
	code := app.Run(context.Background(), []string{"reconcile", "-datadir", t.TempDir(), "-ledger", "memory"})
	require.Equal(t, ExitOK, code, stderr.String())

	var report drive.ReconcileReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Zero(t, report.Checked)
}

func TestServe_InvalidConfig(t *testing.T) {
	app, _, stderr := newApp()
	code := app.Run(context.Background(), []string{"serve", "-datadir", t.TempDir(), "-ledger", "rpc"})
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "contract")
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app, _, stderr := newApp()
	code := app.Run(ctx, []string{"serve", "-datadir", t.TempDir(), "-listen", "127.0.0.1:0", "-ledger", "memory"})
	assert.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stderr.String(), "hashdrive starting")
}

func TestLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	app, _, _ := newApp()
	log, closeFn, err := app.logger(config.Config{LogLevel: "info", LogFile: path})
	require.NoError(t, err)
	log.Info().Msg("to file")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}
