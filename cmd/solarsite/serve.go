package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/config"
	"github.com/joelkehle/solarsite/internal/format"
	"github.com/joelkehle/solarsite/internal/leads"
	"github.com/joelkehle/solarsite/internal/site"
)

func newServeCmd(a *app) *cobra.Command {
	var addr, webDir, presetsFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the website, calculator API and lead relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Addr = addr
			}
			if cmd.Flags().Changed("web-dir") {
				a.cfg.WebDir = webDir
			}
			if cmd.Flags().Changed("presets") {
				a.cfg.PresetsFile = presetsFile
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringVar(&webDir, "web-dir", "web", "Directory containing the site pages and assets")
	cmd.Flags().StringVar(&presetsFile, "presets", "", "YAML presets file (hot reloaded)")
	return cmd
}

func runServe(parent context.Context, a *app) error {
	cfg, logger := a.cfg, a.logger
	if !a.envLoaded {
		logger.Debug("no .env file found, using process environment")
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	presets, err := calculator.NewPresetRegistryFromFile(cfg.PresetsFile)
	if err != nil {
		return err
	}
	metrics := site.NewMetrics()

	svc, closeLeads, err := buildLeadService(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer closeLeads()

	web := resolveWebDir(cfg.WebDir)
	handler := site.NewServer(site.Options{
		WebDir:    web,
		Presets:   presets,
		Leads:     svc,
		Formatter: format.New(cfg.Locale, cfg.Currency),
		PDF:       site.NewChromiumPDFRenderer(web),
		Metrics:   metrics,
		Logger:    logger,
		AccessLog: os.Stdout,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("solarsite listening", zap.String("addr", cfg.Addr), zap.String("web_dir", web))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return presets.Watch(gctx, logger)
	})
	if svc != nil {
		g.Go(func() error {
			leads.NewRetrier(svc, cfg.RelayRetryInterval).Run(gctx)
			return nil
		})
	}
	return g.Wait()
}

// buildLeadService wires the store, relay and optional triage and event
// publishing. Lead capture is disabled when no relay endpoint is configured.
func buildLeadService(cfg *config.Config, logger *zap.Logger, metrics *site.Metrics) (*leads.Service, func(), error) {
	if cfg.FormRelayURL == "" {
		logger.Warn("FORM_RELAY_URL not set, lead capture disabled")
		return nil, func() {}, nil
	}
	store, err := leads.OpenStore(cfg.LeadsDBDriver, cfg.LeadsDBDSN)
	if err != nil {
		return nil, nil, err
	}

	opts := []leads.Option{
		leads.WithMaxAttempts(cfg.RelayMaxAttempts),
		leads.WithHooks(leads.Hooks{OnOutcome: metrics.LeadOutcome}),
	}
	if triager, err := leads.NewAnthropicTriagerFromEnv(); err == nil {
		opts = append(opts, leads.WithTriager(triager))
	} else {
		logger.Info("lead triage disabled", zap.Error(err))
	}
	var notifier leads.Notifier
	if cfg.KafkaBrokers != "" {
		notifier = leads.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		opts = append(opts, leads.WithNotifier(notifier))
	}

	relay := leads.NewFormRelay(cfg.FormRelayURL, cfg.FormRelayAccessKey)
	svc := leads.NewService(store, relay, logger.Named("leads"), opts...)
	closer := func() {
		if notifier != nil {
			if err := notifier.Close(); err != nil {
				logger.Warn("close lead notifier", zap.Error(err))
			}
		}
		if err := store.Close(); err != nil {
			logger.Warn("close lead store", zap.Error(err))
		}
	}
	return svc, closer, nil
}

// resolveWebDir falls back to web/ next to the binary when dir does not exist.
func resolveWebDir(dir string) string {
	if _, err := os.Stat(dir); err == nil {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return dir
	}
	alt := filepath.Join(filepath.Dir(exe), "..", "..", "web")
	if _, err := os.Stat(alt); err == nil {
		return alt
	}
	return dir
}
