package cmd

import (
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd serves one remote config value over HTTP.
var RootCmd = &cobra.Command{
	Use:   "remoteconfig",
	Short: "Serve a remotely loaded config value with stale-while-revalidate caching",
	Long: `remoteconfig loads a value from a remote source, keeps it cached
according to the freshness the source reports and serves it as JSON.
Stale values are revalidated on read; values marked must-revalidate are
never served stale.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := LoadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return Run(ctx, cfg, logger)
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	pf := RootCmd.PersistentFlags()

	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml).")
	pf.StringP("listen", "l", ":8080", "Address to listen for HTTP connections on.")
	pf.String("serve_path", "/", "Path the config value is served on.")
	pf.String("log_level", "info", "Log level.")
	pf.StringP("name", "n", "remoteconfig", "Name used in logs and errors.")
	pf.StringP("source", "s", "http", "Source type: http, file, gcs, redis, firestore or bigquery.")
	pf.Duration("retry_interval", 5*time.Second, "Minimum time between a failed refresh and the next attempt.")
	pf.Duration("max_age", time.Minute, "Freshness for sources without their own cache metadata.")
	pf.Bool("must_revalidate", false, "Never serve stale data from sources without their own cache metadata.")
	pf.Duration("shutdown_period", 10*time.Second, "Time allowed for graceful shutdown.")

	pf.String("url", "", "URL to load (http).")
	pf.StringToString("headers", nil, "Request headers (http).")
	pf.Duration("timeout", 10*time.Second, "Request timeout (http).")
	pf.Int("max_retries", 0, "Transport retries per refresh (http).")
	pf.Duration("retry_wait", 500*time.Millisecond, "Wait between transport retries (http).")
	pf.String("path", "", "File to load (file).")
	pf.String("content_type", "", "Content type override (file, gcs, redis).")
	pf.String("bucket", "", "Bucket name (gcs).")
	pf.String("object", "", "Object name (gcs).")
	pf.String("redis_addr", "", "Redis address (redis).")
	pf.String("redis_password", "", "Redis password (redis).")
	pf.Int("redis_db", 0, "Redis database (redis).")
	pf.String("key", "", "Key to load (redis).")
	pf.String("project", "", "Google Cloud project (firestore, bigquery, pubsub).")
	pf.String("credentials_file", "", "Google Cloud credentials file. Defaults to ADC.")
	pf.String("collection", "", "Collection name (firestore).")
	pf.String("document", "", "Document ID (firestore).")
	pf.String("query", "", "Standard SQL query (bigquery).")
	pf.String("pubsub_subscription", "", "Subscription whose messages trigger a refresh.")

	_ = viper.BindPFlags(pf)
}

// initConfig loads a .env file into the environment, enables REMOTECONFIG_
// variables and reads the config file when one is given.
func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file.")
	}

	viper.SetEnvPrefix("REMOTECONFIG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			cobra.CheckErr(err)
		}
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger(), nil
}
