// Package cliconfig holds the settings shared by the schemapush commands.
//
// Settings come, in order of precedence, from command line flags, SCHEMAPUSH_*
// environment variables (a .env file in the working directory is loaded
// first), and the optional file named by --config.
package cliconfig

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/registry"
	"github.com/stokaro/schemapush/dbschema"
)

const (
	EnvPrefix = "SCHEMAPUSH"

	KeyDatabaseURL = "db-url"
	KeyLogLevel    = "log-level"
	KeyAddr        = "addr"

	configFlag = "config"
)

var (
	v      = viper.New()
	logger = slog.Default()
)

// Setup adds the persistent --config and --log-level flags to the root
// command and loads the configuration before any command runs.
func Setup(root *cobra.Command) {
	root.PersistentFlags().String(configFlag, "", "Configuration file (yaml, json or toml)")
	root.PersistentFlags().String(KeyLogLevel, "info", "Log level (debug, info, warn, error)")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		configFile, _ := cmd.Flags().GetString(configFlag)
		if err := Load(configFile); err != nil {
			return err
		}
		if f := cmd.Flags().Lookup(KeyLogLevel); f != nil && f.Changed {
			v.Set(KeyLogLevel, f.Value.String())
		}
		l, err := NewLogger(v.GetString(KeyLogLevel), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	}
}

// Load reads .env, binds the SCHEMAPUSH_* environment variables and reads
// configFile when it is set.
func Load(configFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v = viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAddr, ":8080")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// String returns flagValue when it is set and the configured value of key
// otherwise.
func String(flagValue, key string) string {
	if flagValue != "" {
		return flagValue
	}
	return v.GetString(key)
}

// DatabaseURL resolves the database URL from the --db-url flag value,
// SCHEMAPUSH_DB_URL or the config file.
func DatabaseURL(flagValue string) (string, error) {
	u := String(flagValue, KeyDatabaseURL)
	if u == "" {
		return "", fmt.Errorf("database URL is required (use --db-url or %s_DB_URL)", EnvPrefix)
	}
	return u, nil
}

// Logger returns the logger configured for the running command.
func Logger() *slog.Logger {
	return logger
}

// NewLogger creates a text logger writing to w at the named level.
func NewLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// Open connects to dbURL and creates its connector. With dryRun set, the
// connector prints statements to dryRun instead of executing them.
func Open(cmd *cobra.Command, dbURL string, dryRun io.Writer) (connector.Connector, error) {
	db, err := dbschema.Connect(cmd.Context(), dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db = db.WithLogger(logger)
	if dryRun != nil {
		db = db.WithDryRun(dryRun)
	}
	conn, err := registry.Default().New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return conn, nil
}
