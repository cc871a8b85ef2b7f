package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/joho/godotenv"
	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"github.com/stuartleeks/home-dash/cam-viewer/appinsightsutils"
	"github.com/stuartleeks/home-dash/cam-viewer/config"
	"github.com/stuartleeks/home-dash/cam-viewer/data"
	"github.com/stuartleeks/home-dash/cam-viewer/logger"
	"github.com/stuartleeks/home-dash/cam-viewer/viewer"
)

func main() {
	fmt.Printf("Server starting...[%d]\n", os.Getpid())

	_, err := os.Stat(".env")
	if err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %s\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	log := logger.Get(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	log.Infow("configuration loaded",
		"base_uri", cfg.BaseURI,
		"has_location", cfg.HasLocation(),
		"refresh_interval", cfg.RefreshInterval)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := serveAPI(ctx, cfg, log); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("server failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("Server stopped!")
}

func serveAPI(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Infow("listening", "address", cfg.ListenAddress)
	l, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.ListenAddress, err)
	}

	if cfg.AppInsightsInstrumentationKey == "" {
		log.Infow("application insights instrumentation key not set, telemetry disabled")
	}
	appInsightsClient := appinsightsutils.NewTelemetryClient(cfg.AppInsightsInstrumentationKey, "cam-viewer")

	clk := clock.NewClock()
	httpClient := &http.Client{}

	var weather viewer.TemperatureSource
	if cfg.HasLocation() {
		weather = data.NewWeatherClient(httpClient, cfg.WeatherEndpoint, *cfg.Latitude, *cfg.Longitude, clk)
	}
	controller := viewer.NewController(cfg, weather, clk, log)

	// The screen lives until ctx is cancelled; Run closes the controller on the
	// way out so no refresh can land after teardown.
	screenDone := make(chan struct{})
	go func() {
		defer close(screenDone)
		_ = controller.Run(ctx)
	}()

	mux := appinsightsutils.NewServeMuxWithTrace(&appInsightsClient, log)
	api := NewApiRouter(&appInsightsClient, controller, data.NewWebcamClient(httpClient), cfg.FrameTimeout, clk, log)
	registerHandlers(mux, api)

	server := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: mux,
	}
	go func() {
		<-ctx.Done()
		log.Infow("shutting down")
		<-screenDone

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		flushTelemetry(appInsightsClient)
	}()
	return server.Serve(l)
}

func flushTelemetry(client appinsights.TelemetryClient) {
	select {
	case <-client.Channel().Close(5 * time.Second):
	case <-time.After(10 * time.Second):
	}
}

func registerHandlers(mux *appinsightsutils.ServeMuxWithTrace, api *ApiRouter) {
	mux.HandleFunc("GET /", api.Hello)
	mux.HandleFunc("GET /state", api.StateGet)
	mux.HandleFunc("PUT /container", api.ContainerSet)
	mux.HandleFunc("POST /toggle", api.TogglePost)
	mux.HandleFunc("GET /media", api.MediaGet)
	mux.HandleFunc("POST /image-events/{kind}", api.ImageEventPost)
	mux.HandleFunc("GET /temperature", api.TemperatureGet)
	mux.HandleFuncWithContext("GET /frame", api.FrameGet)
	mux.HandleFunc("GET /ws", api.StateStream)
}
