package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/i474232898/weather-assistant/internal/ai"
	"github.com/i474232898/weather-assistant/internal/alerts"
	httpapi "github.com/i474232898/weather-assistant/internal/api/http"
	"github.com/i474232898/weather-assistant/internal/assistant"
	"github.com/i474232898/weather-assistant/internal/config"
	"github.com/i474232898/weather-assistant/internal/logger"
	"github.com/i474232898/weather-assistant/internal/scheduler"
	"github.com/i474232898/weather-assistant/internal/store"
	"github.com/i474232898/weather-assistant/internal/weather"
	"github.com/i474232898/weather-assistant/internal/weather/providers"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the alert poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// migrator is implemented by stores with a schema.
type migrator interface {
	Migrate(ctx context.Context) error
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(cfg.DatabaseURL, cfg.StoreMaxHistory, logger.Component(log, "store"))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if m, ok := st.(migrator); ok {
		if err := m.Migrate(parent); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	deps, checker := wire(cfg, st, log)

	sched := scheduler.New(checker, cfg.AlertPollInterval, logger.Component(log, "scheduler"))
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	app := httpapi.NewApp(deps, log)

	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
	return nil
}

// wire builds the services behind the HTTP API and the alert checker.
func wire(cfg *config.AppConfig, st store.Store, log *logrus.Logger) (httpapi.Deps, *alerts.Service) {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	upstream := providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey, cfg.Lang)
	openWeather := providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey, cfg.Lang)

	var geocoder weather.Geocoder = openWeather
	if cfg.GeocoderProvider == config.GeocoderGoogle {
		geocoder = providers.NewGoogleGeocoder(cfg.GoogleGeocodingAPIKey)
	}

	svc := weather.NewService(st, upstream, geocoder, weather.WithLogger(logger.Component(log, "weather")))

	model := ai.NewClient(ai.Config{
		APIKey:      cfg.GenAIAPIKey,
		BaseURL:     cfg.GenAIBaseURL,
		Model:       cfg.GenAIModel,
		Timeout:     cfg.HTTPTimeout * 3,
		Temperature: 0.3,
	})

	var predictor weather.Predictor
	if cfg.SevenDayPrediction {
		predictor = assistant.NewForecastPredictor(model)
	}

	resolver := assistant.NewResolver(model, assistant.WithResolverLogger(log))
	composer := assistant.NewComposer(model, assistant.WithComposerLogger(log))
	chat := assistant.NewChat(resolver, composer, svc, st, cfg.DefaultCity, log)

	alertSvc := alerts.NewService(svc, st, alerts.LogNotifier{Log: logger.Component(log, "notifier")}, log)

	log.WithFields(logrus.Fields{
		"geocoder":   cfg.GeocoderProvider,
		"model":      cfg.GenAIModel,
		"prediction": cfg.SevenDayPrediction,
		"memory":     cfg.UseMemoryStore(),
	}).Info("services configured")

	return httpapi.Deps{
		Weather:  svc,
		SevenDay: weather.NewSevenDay(svc, openWeather, predictor),
		Alerts:   alertSvc,
		Chat:     chat,
		Store:    st,
	}, alertSvc
}
