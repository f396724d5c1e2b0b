package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eleven-am/warden/internal/api"
	"github.com/eleven-am/warden/internal/core"
	"github.com/eleven-am/warden/internal/domain"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "wardend",
		Short: "Policy-governed workflow execution engine",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./warden.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type serverConfig struct {
	Addr    string `mapstructure:"addr"`
	DataDir string `mapstructure:"data_dir"`
	Engine  struct {
		MaxStepsPerRun   int    `mapstructure:"max_steps_per_run"`
		HistoryDepth     int    `mapstructure:"history_depth"`
		RoutingAgentID   string `mapstructure:"routing_agent_id"`
		ConditionAgentID string `mapstructure:"condition_agent_id"`
	} `mapstructure:"engine"`
	Policy struct {
		Pack     string `mapstructure:"pack"`
		FailOpen bool   `mapstructure:"fail_open"`
	} `mapstructure:"policy"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func loadConfig() (*serverConfig, error) {
	v := viper.New()
	v.SetDefault("addr", ":8440")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("warden")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/warden")
	}
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg serverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the warden server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			logger := newLogger(cfg.Log.Level, cfg.Log.Format)

			engineCfg := domain.DefaultConfig()
			engineCfg.DataDir = cfg.DataDir
			engineCfg.Logger = logger
			engineCfg.PolicyFailOpen = cfg.Policy.FailOpen
			if cfg.Engine.MaxStepsPerRun > 0 {
				engineCfg.MaxStepsPerRun = cfg.Engine.MaxStepsPerRun
			}
			if cfg.Engine.HistoryDepth > 0 {
				engineCfg.HistoryDepth = cfg.Engine.HistoryDepth
			}
			if cfg.Engine.RoutingAgentID != "" {
				engineCfg.RoutingAgentID = cfg.Engine.RoutingAgentID
			}
			if cfg.Engine.ConditionAgentID != "" {
				engineCfg.ConditionAgentID = cfg.Engine.ConditionAgentID
			}

			manager, err := core.NewWithConfig(engineCfg)
			if err != nil {
				return fmt.Errorf("failed to initialize engine: %w", err)
			}
			defer func() {
				if err := manager.Close(); err != nil {
					logger.Error("shutdown error", "error", err.Error())
				}
			}()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Policy.Pack != "" {
				if err := manager.LoadPolicyPack(ctx, cfg.Policy.Pack); err != nil {
					return fmt.Errorf("failed to load policy pack %s: %w", cfg.Policy.Pack, err)
				}
			}

			server := api.NewServer(manager, logger)
			if err := server.Start(ctx, cfg.Addr); err != nil {
				return err
			}

			logger.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
