package appinsightsutils

import (
	"fmt"
	"net/http"
	"time"

	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"github.com/stuartleeks/home-dash/cam-viewer/logger"
)

// NewTelemetryClient returns a client reporting under role. Without an
// instrumentation key the client is created disabled and drops everything.
func NewTelemetryClient(instrumentationKey string, role string) appinsights.TelemetryClient {
	telemetryConfig := appinsights.NewTelemetryConfiguration(instrumentationKey)
	// Configure how many items can be sent in one call to the data collector:
	telemetryConfig.MaxBatchSize = 8192
	// Configure the maximum delay before sending queued telemetry:
	telemetryConfig.MaxBatchInterval = 2 * time.Second

	client := appinsights.NewTelemetryClientFromConfig(telemetryConfig)
	client.Context().Tags.Cloud().SetRole(role)
	if instrumentationKey == "" {
		client.SetIsEnabled(false)
	}
	return client
}

type ServeMuxWithTrace struct {
	*http.ServeMux
	appInsightsClient *appinsights.TelemetryClient
	log               *logger.Logger
}

func NewServeMuxWithTrace(appInsightsClient *appinsights.TelemetryClient, log *logger.Logger) *ServeMuxWithTrace {
	if log == nil {
		log = logger.Nop()
	}
	return &ServeMuxWithTrace{
		ServeMux:          http.NewServeMux(),
		appInsightsClient: appInsightsClient,
		log:               log,
	}
}

func (mux *ServeMuxWithTrace) Handle(pattern string, handler http.Handler) {
	mux.HandleFunc(pattern, handler.ServeHTTP)
}
func (mux *ServeMuxWithTrace) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	mux.ServeMux.HandleFunc(pattern, mux.traceHttpFunc(pattern, handler))
}
func (mux *ServeMuxWithTrace) HandleFuncWithContext(pattern string, handler func(http.ResponseWriter, *http.Request, *appinsights.RequestTelemetry)) {
	mux.ServeMux.HandleFunc(pattern, mux.traceHttpFuncWithContext(pattern, handler))
}

func (mux *ServeMuxWithTrace) traceHttpFunc(name string, fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return mux.traceHttpFuncWithContext(name, func(w http.ResponseWriter, r *http.Request, _ *appinsights.RequestTelemetry) {
		fn(w, r)
	})
}
func (mux *ServeMuxWithTrace) traceHttpFuncWithContext(name string, fn func(http.ResponseWriter, *http.Request, *appinsights.RequestTelemetry)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "https"
		if r.TLS == nil {
			scheme = "http"
		}
		telemetry := appinsights.NewRequestTelemetry(r.Method, fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.Path), 0*time.Second, "200")
		startTime := time.Now().UTC()

		wrappedResponseWriter := NewResponseWriterWithStatusCode(w)
		fn(wrappedResponseWriter, r, telemetry)

		duration := time.Since(startTime)
		telemetry.Duration = duration
		telemetry.ResponseCode = fmt.Sprintf("%d", wrappedResponseWriter.StatusCode())
		telemetry.Name = name

		mux.log.Debugw("request",
			"route", name,
			"path", r.URL.Path,
			"status", wrappedResponseWriter.StatusCode(),
			"duration", duration)

		if mux.appInsightsClient != nil {
			(*mux.appInsightsClient).Track(telemetry)
		}
	}
}
