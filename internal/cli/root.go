// Package cli implements the meshsync command tree.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DobryySoul/meshsync"
	"github.com/DobryySoul/meshsync/internal/config"
)

var (
	version = "dev"
	cfgFile string
	verbose bool
	v       = config.New()
)

func SetVersion(s string) {
	version = s
}

var rootCmd = &cobra.Command{
	Use:   "meshsync",
	Short: "Serverless record sync for devices on the same network",
	Long: `meshsync - serverless record sync for devices on the same network

Devices find each other with UDP broadcast (and optionally mDNS), relay
updates for peers that cannot hear each other, and converge on the newest
version of every user and meal plan.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/meshsync/config.toml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String("device-name", "", "display name used when a new identity is created")
	flags.String("identity", "", "identity file path")
	flags.String("db", "", "SQLite database path")
	bindFlag(v, "device_name", flags.Lookup("device-name"))
	bindFlag(v, "identity_path", flags.Lookup("identity"))
	bindFlag(v, "database_path", flags.Lookup("db"))
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openEngine loads the identity, opens the database and builds a stopped
// engine. The caller owns the engine and must Close it.
func openEngine(cfg config.Config, logger *slog.Logger) (*meshsync.Engine, error) {
	identity, err := meshsync.LoadOrCreateIdentity(cfg.IdentityPath, cfg.DeviceName)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	store, err := meshsync.OpenSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	opts := append(cfg.Options(identity), meshsync.WithLogger(logger))
	engine, err := meshsync.New(store, opts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return engine, nil
}
