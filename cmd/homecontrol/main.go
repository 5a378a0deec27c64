// HomeControl Core - home automation hub
//
// This is the main entry point for the HomeControl Core application. It
// loads the configuration document, builds the kernel and runs the
// compiled-in modules until SIGINT or SIGTERM. SIGHUP reloads the
// configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/homecontrol-core/internal/api"
	"github.com/nerrad567/homecontrol-core/internal/automation"
	"github.com/nerrad567/homecontrol-core/internal/bridges/mqttbridge"
	"github.com/nerrad567/homecontrol-core/internal/core"
	"github.com/nerrad567/homecontrol-core/internal/history"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/config"
	"github.com/nerrad567/homecontrol-core/internal/infrastructure/logging"
	"github.com/nerrad567/homecontrol-core/internal/metrics"
	"github.com/nerrad567/homecontrol-core/internal/recorder"
	"github.com/nerrad567/homecontrol-core/internal/switches"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	logLevel    string
	showVersion bool
	checkConfig bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("homecontrol", pflag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVarP(&opts.configPath, "config", "c", getConfigPath(), "path to the configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	fs.BoolVar(&opts.checkConfig, "check-config", false, "load and validate the configuration, then exit")
	return opts, fs.Parse(args)
}

// getConfigPath returns the configuration file path.
// Checks HOMECONTROL_CONFIG env var first, falls back to default.
func getConfigPath() string {
	if path := os.Getenv("HOMECONTROL_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// factories lists the compiled-in modules. The "modules" domain filters
// them at bootstrap.
func factories() []core.Factory {
	return []core.Factory{
		switches.New,
		mqttbridge.New,
		recorder.New,
		history.New,
		automation.New,
		api.New(version),
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(out, "homecontrol %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	source := config.FileSource{Path: opts.configPath}
	doc, err := source.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	settings, err := config.LoadSettings(doc)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		settings.Logging.Level = opts.logLevel
	}
	if opts.checkConfig {
		fmt.Fprintf(out, "configuration %s is valid\n", opts.configPath)
		return nil
	}

	log := logging.New(settings.Logging, version)
	log.Info("starting HomeControl Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", opts.configPath,
	)

	k, err := core.New(core.Options{
		Document: doc,
		Source:   source,
		Settings: settings,
		Logger:   log,
		Metrics:  metrics.NewPrometheus(),
	})
	if err != nil {
		return fmt.Errorf("creating kernel: %w", err)
	}

	go reloadOnHangup(ctx, k, log)

	if err := k.Run(ctx, factories()...); err != nil {
		return err
	}
	log.Info("HomeControl Core stopped")
	return nil
}

// reloadOnHangup reloads the configuration on every SIGHUP until ctx is
// cancelled.
func reloadOnHangup(ctx context.Context, k *core.Kernel, log *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			result, err := k.ReloadConfig(ctx)
			if err != nil {
				log.Error("configuration reload failed", "error", err)
				continue
			}
			log.Info("configuration reloaded",
				"updated", result.Updated,
				"skipped", result.Skipped,
				"failed", len(result.Failed),
			)
		}
	}
}
