package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/callbridge/internal/backend"
	"github.com/haasonsaas/callbridge/internal/config"
	"github.com/haasonsaas/callbridge/internal/dialog"
	"github.com/haasonsaas/callbridge/internal/gateway"
	"github.com/haasonsaas/callbridge/internal/intent"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/sessions"
)

const defaultConfigPath = "callbridge.yaml"

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voice webhook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	return cmd
}

// runServe wires the service together and blocks until a shutdown
// signal arrives.
func runServe(cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "callbridge",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	store := sessions.NewMemoryStore()
	janitor := sessions.NewJanitor(store,
		time.Duration(cfg.Sessions.SweepIntervalSeconds)*time.Second,
		time.Duration(cfg.Sessions.IdleTimeoutSeconds)*time.Second,
		logger, metrics,
	)

	classifier := intent.NewClassifier(intent.Config{
		APIKey:  cfg.Classifier.APIKey,
		BaseURL: cfg.Classifier.BaseURL,
		Model:   cfg.Classifier.Model,
		Timeout: time.Duration(cfg.Classifier.TimeoutSeconds) * time.Second,
	}, logger, metrics)

	qa := backend.NewClient(backend.Config{
		URL:     cfg.Backend.URL,
		Timeout: time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	}, logger, metrics)

	machine := dialog.NewMachine(dialog.Config{
		WelcomePrompt:        cfg.Dialog.WelcomePrompt,
		FollowUpPrompt:       cfg.Dialog.FollowUpPrompt,
		RetryPrompt:          cfg.Dialog.RetryPrompt,
		Goodbye:              cfg.Dialog.Goodbye,
		InactivityGoodbye:    cfg.Dialog.InactivityGoodbye,
		MaxSilence:           cfg.Dialog.MaxSilence,
		TurnAction:           cfg.CallbackURL(gateway.PathTurn),
		WaitAction:           cfg.CallbackURL(gateway.PathWait),
		ListenTimeoutSeconds: cfg.Dialog.ListenTimeoutSeconds,
		SpeechTimeout:        cfg.Dialog.SpeechTimeout,
		Language:             cfg.Dialog.Language,
	}, store, classifier, qa, logger, metrics)

	server, err := gateway.NewServer(gateway.Options{
		Config:  cfg,
		Machine: machine,
		Janitor: janitor,
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "server shutdown failed", "error", err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "tracer shutdown failed", "error", err)
	}
	return nil
}

func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	cmd.AddCommand(buildConfigSchemaCmd(), buildConfigValidateCmd())
	return cmd
}

func buildConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the configuration JSON schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(schema))
			return nil
		},
	}
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")
	return cmd
}
