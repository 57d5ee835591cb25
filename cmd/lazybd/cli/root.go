// Package cli implements the lazybd command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/weftimage/lazybd"
	cliconfig "github.com/weftimage/lazybd/cmd/lazybd/cli/config"
	"github.com/weftimage/lazybd/core"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "lazybd",
	Short: "Open and stack lazily-materializing container image layers",
	Long: `lazybd opens container image layers as block-addressable read files.

Each layer is served from its remote blob immediately; if background
download is enabled, it is verified and committed to local disk and reads
switch over to the local copy without disrupting in-flight reads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.Version = version
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	dir, err := cliconfig.Dir()
	if err == nil {
		viper.AddConfigPath(dir)
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("LAZYBD")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // absence of a config file is not an error.
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// loadConfig maps Viper's merged settings onto the Configuration Surface
// and builds a lazybd.Client from it.
func loadConfig() (*lazybd.Client, error) {
	cfg := cliconfig.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	eng, warning := core.ParseIOEngine(cfg.IOEngine)
	if warning != "" {
		logger().Warn(warning)
	}

	opts := []lazybd.ClientOption{
		lazybd.WithRepoBlobURL(cfg.RepoBlobURL),
		lazybd.WithIOEngine(eng),
		lazybd.WithDownload(core.DownloadConfig{
			Enable:     cfg.Download.Enable,
			Delay:      cfg.Download.Delay,
			DelayExtra: cfg.Download.DelayExtra,
			MaxMBps:    cfg.Download.MaxMBps,
			TryCnt:     cfg.Download.TryCnt,
		}),
		lazybd.WithLogger(logger()),
	}
	return lazybd.NewClient(opts...)
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// humanOutput reports whether stdout is an interactive terminal, so report
// commands can decide between a human-readable size and a bare byte count
// a downstream pipeline can parse.
func humanOutput() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts lazybd errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, lazybd.ErrAuth):
		return "Error: authentication failed (check repoBlobUrl credentials)"
	case errors.Is(err, lazybd.ErrIntegrity):
		return fmt.Sprintf("Error: digest mismatch: %v", err)
	case errors.Is(err, lazybd.ErrConfig):
		return fmt.Sprintf("Error: invalid configuration: %v", err)
	case errors.Is(err, lazybd.ErrIO):
		return fmt.Sprintf("Error: %v", err)
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
