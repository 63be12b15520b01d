package main

import (
	"fmt"
	"os"

	ctx "github.com/Alcereo/edgegate/pkg/context"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "edgegate",
	Short: "Edge gateway between the browser and the API backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := configInit(); err != nil {
			return err
		}
		config, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(config.LogLevel)

		bytes, _ := yaml.Marshal(config)
		log.Tracef("Resolved config:\n%+v", string(bytes))

		context, err := ctx.Build(config)
		if err != nil {
			return err
		}

		log.Printf("Server starting on port %v", config.Port)
		return context.BuildServer(config.Port).ListenAndServe()
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to the config file (default ./config.yaml or ./cmd/config.yaml)")
	flags.Int("port", 3000, "port to listen on")
	flags.String("log-level", "", "trace, debug, info or warn")

	_ = viper.BindPFlag("port", flags.Lookup("port"))
	_ = viper.BindPFlag("log-level", flags.Lookup("log-level"))
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Loading .env error. Reason: %v", err)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func setupLogging(logLevel ctx.LogLevel) {
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})

	switch logLevel {
	case ctx.Info:
		log.SetLevel(log.InfoLevel)
	case ctx.Debug:
		log.SetLevel(log.DebugLevel)
	case ctx.Trace:
		log.SetLevel(log.TraceLevel)
	default:
		log.SetLevel(log.WarnLevel)
	}
}

func loadConfig() (*ctx.ProxyConfiguration, error) {
	var config ctx.ProxyConfiguration
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("Fatal error config file: %s \n", err)
	}
	return &config, nil
}

func configInit() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./cmd")
	}

	// Defaults
	viper.SetDefault("port", 3000)
	viper.SetDefault("log-level", ctx.Warn)
	viper.SetDefault("backend.base-url", "http://localhost:8001/v1")
	viper.SetDefault("backend.timeout-seconds", 30)
	viper.SetDefault("session.cookie-name", "uai_session")
	viper.SetDefault("oauth.transaction-store", ctx.CookieTransactions)
	viper.SetDefault("gate.verify-session", false)
	viper.SetDefault("cache.revalidate-seconds", 30)
	viper.SetDefault("cache.evict-schedule-minutes", 10)
	viper.SetDefault("invalidation.timeout-seconds", 5)

	_ = viper.BindEnv("backend.base-url", "API_BASE_URL")
	_ = viper.BindEnv("oauth.google.client-id", "GOOGLE_CLIENT_ID")
	_ = viper.BindEnv("oauth.google.redirect-uri", "GOOGLE_REDIRECT_URI")
	_ = viper.BindEnv("public-base-url", "APP_PUBLIC_URL")
	_ = viper.BindEnv("oauth.transaction-secret", "OAUTH_TRANSACTION_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing || configFile != "" {
			return fmt.Errorf("Fatal error config file: %s \n", err)
		}
		log.Debugf("No config file found, using defaults and environment")
	}
	return nil
}
