// unoctl - UVN Control Plane CLI
//
// A thin cobra front door over the registry state machine:
//   - Dry-run by default (preview changes, require -x to execute)
//   - Audit logging of every mutating call
//   - Ownership-based access control, enforced by the registry itself
//
// Noun-group CLI pattern:
//
//	unoctl <resource> <action> [args] [-x]
//
// Examples:
//
//	unoctl uvn create acme --owner 1 --settings acme-settings.yaml -x
//	unoctl cell define acme hq --address hq.acme.example --lans 192.168.1.0/24 -x
//	unoctl particle define acme laptop --owner 7 -x
//	unoctl uvn redeploy acme -x
//	unoctl bootstrap apply acme.yaml -x
//	unoctl settings show
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/uno-network/uno/pkg/audit"
	"github.com/uno-network/uno/pkg/cli"
	"github.com/uno-network/uno/pkg/configbundle"
	"github.com/uno-network/uno/pkg/keyauthority"
	"github.com/uno-network/uno/pkg/model"
	"github.com/uno-network/uno/pkg/registry"
	"github.com/uno-network/uno/pkg/settings"
	"github.com/uno-network/uno/pkg/store"
	"github.com/uno-network/uno/pkg/util"
	"github.com/uno-network/uno/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	// Option flags
	redisAddr    string
	bootstrapDir string
	executeMode  bool
	verbose      bool
	jsonOutput   bool

	// Caller identity flags. unoctl has no login flow of its own; the
	// operator asserts who they are and the registry's ownership checks
	// do the rest.
	callerID        uint32
	callerEmail     string
	callerSuperuser bool

	// Initialized state (set in PersistentPreRunE)
	settings *settings.Settings
	store    *store.Store
	reg      *registry.Registry
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "unoctl",
	Short:             "UVN control plane CLI",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `unoctl is a noun-group CLI for the UVN control plane registry.

Commands are organized by resource (uvn, cell, particle, user, rekey,
bootstrap). Write commands preview changes by default — use -x to execute.

  unoctl <resource> <action> [args] [-x]

  unoctl uvn create acme --owner 1 --settings acme.yaml -x
  unoctl cell define acme hq --lans 192.168.1.0/24 -x
  unoctl uvn redeploy acme -x
  unoctl settings show                          # no registry connection needed`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if isSettingsOrMeta(cmd) {
			return nil
		}

		var err error
		app.settings, err = settings.Load()
		if err != nil {
			util.Logger.Warnf("could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}

		if app.redisAddr == "" {
			app.redisAddr = app.settings.GetRedisAddr()
		}
		if app.bootstrapDir == "" {
			app.bootstrapDir = app.settings.GetBootstrapDir()
		}
		if !app.executeMode && app.settings.ExecuteByDefault {
			app.executeMode = true
		}

		if app.verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}

		app.store = store.New(app.redisAddr, 0)

		// unoctl is one operation per process invocation, so a single
		// background context spans the key authority's whole lifetime.
		authority, err := newKeyAuthority(app.store, context.Background())
		if err != nil {
			return fmt.Errorf("initializing key authority: %w", err)
		}

		app.reg = registry.New(store.NewRegistryStore(app.store), authority, configbundle.NewRenderer())

		auditPath := app.settings.GetAuditLogPath(app.bootstrapDir)
		auditLogger, err := audit.NewFileLogger(auditPath, audit.RotationConfig{
			MaxSize:    int64(app.settings.GetAuditMaxSizeMB()) * 1024 * 1024,
			MaxBackups: app.settings.GetAuditMaxBackups(),
		})
		if err != nil {
			util.Logger.Warnf("could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		return nil
	},
}

// sealKeyEnvVar names the environment variable holding the key authority's
// base64-encoded 32-byte seal key. unoctl never generates or stores this
// key itself — it is provisioned out of band, the same way a service
// account's credentials are.
const sealKeyEnvVar = "UNO_SEAL_KEY"

func newKeyAuthority(s *store.Store, ctx context.Context) (*keyauthority.Authority, error) {
	raw := os.Getenv(sealKeyEnvVar)
	if raw == "" {
		return nil, fmt.Errorf("%s is not set", sealKeyEnvVar)
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", sealKeyEnvVar, err)
	}
	if len(decoded) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%s must decode to %d bytes, got %d", sealKeyEnvVar, chacha20poly1305.KeySize, len(decoded))
	}
	var key [chacha20poly1305.KeySize]byte
	copy(key[:], decoded)
	return keyauthority.New(store.NewKeyStore(s, ctx), key)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&app.redisAddr, "redis-addr", "", "Redis address for the registry store")
	rootCmd.PersistentFlags().StringVar(&app.bootstrapDir, "bootstrap-dir", "", "Directory holding bootstrap files")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.PersistentFlags().Uint32Var(&app.callerID, "caller-id", 0, "Caller's user id")
	rootCmd.PersistentFlags().StringVar(&app.callerEmail, "caller-email", "", "Caller's email")
	rootCmd.PersistentFlags().BoolVar(&app.callerSuperuser, "superuser", false, "Assert the caller is a superuser")

	for _, cmd := range []*cobra.Command{uvnCmd, cellCmd, particleCmd, userCmd, rekeyCmd, bootstrapCmd} {
		addWriteFlags(cmd)
	}
	for _, cmd := range []*cobra.Command{uvnCmd, auditCmd} {
		addOutputFlags(cmd)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: "resource", Title: "Resource Commands:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{uvnCmd, cellCmd, particleCmd, userCmd, rekeyCmd, bootstrapCmd} {
		cmd.GroupID = "resource"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, auditCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("unoctl dev build")
		} else {
			fmt.Printf("unoctl %s (%s)\n", version.Version, version.GitCommit)
		}
	},
}

// caller builds the model.User the registry's ownership checks run against.
// unoctl has no session of its own: the operator asserts identity via
// --caller-id/--caller-email/--superuser, the same flags a scripted caller
// would set after authenticating some other way upstream of this CLI.
func caller() model.User {
	return model.User{ID: app.callerID, Email: app.callerEmail, Superuser: app.callerSuperuser}
}

// printDryRunNotice reports that a write command ran in preview mode.
func printDryRunNotice() {
	if !app.executeMode {
		fmt.Println("\n" + yellow("DRY-RUN: no changes applied. Use -x to execute."))
	}
}

// isSettingsOrMeta skips registry initialization for commands that don't
// need a live registry connection.
func isSettingsOrMeta(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "version", "settings":
			return true
		}
	}
	return false
}

// addWriteFlags registers -x/--execute as a local flag; for noun-group
// parent commands it's a PersistentFlag so subcommands inherit it.
func addWriteFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if cmd.HasSubCommands() {
		flags = cmd.PersistentFlags()
	}
	flags.BoolVarP(&app.executeMode, "execute", "x", false, "Execute changes (default is dry-run)")
}

// addOutputFlags registers --json as a local flag; for noun-group parent
// commands it's a PersistentFlag so subcommands inherit it.
func addOutputFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if cmd.HasSubCommands() {
		flags = cmd.PersistentFlags()
	}
	flags.BoolVar(&app.jsonOutput, "json", false, "JSON output")
}

func green(s string) string  { return cli.Green(s) }
func yellow(s string) string { return cli.Yellow(s) }
func red(s string) string    { return cli.Red(s) }

// parseUint32 parses a decimal entity id from a command-line argument.
func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// splitCSV splits a comma-separated flag value, dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
