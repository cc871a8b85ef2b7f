package main

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strconv"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/microsoft/ApplicationInsights-Go/appinsights"
	"github.com/stuartleeks/home-dash/cam-viewer/data"
	"github.com/stuartleeks/home-dash/cam-viewer/logger"
	"github.com/stuartleeks/home-dash/cam-viewer/viewer"
)

const (
	frameCacheTTL     = 10 * time.Minute
	maxFrameDimension = 4096
)

// FrameSource is satisfied by data.WebcamClient.
type FrameSource interface {
	FetchFrame(ctx context.Context, mediaURL string, streaming bool) (image.Image, error)
}

type ApiRouter struct {
	appInsightsClient *appinsights.TelemetryClient
	controller        *viewer.Controller
	frames            FrameSource
	frameTimeout      time.Duration
	frameCache        *data.Cache[string, viewer.ViewState]
	log               *logger.Logger
}

func NewApiRouter(appInsightsClient *appinsights.TelemetryClient, controller *viewer.Controller, frames FrameSource, frameTimeout time.Duration, clk clock.Clock, log *logger.Logger) *ApiRouter {
	if appInsightsClient == nil {
		panic("appInsightsClient is required")
	}
	if controller == nil {
		panic("controller is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ApiRouter{
		appInsightsClient: appInsightsClient,
		controller:        controller,
		frames:            frames,
		frameTimeout:      frameTimeout,
		frameCache:        data.NewCache[string, viewer.ViewState](frameCacheTTL, clk),
		log:               log,
	}
}

func (api *ApiRouter) Hello(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not Found"))
		return
	}
	fmt.Fprintf(w, "Hello, world 👋")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (api *ApiRouter) StateGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.controller.State())
}

func (api *ApiRouter) ContainerSet(w http.ResponseWriter, r *http.Request) {
	var size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&size); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !validDimension(size.Width) || !validDimension(size.Height) {
		http.Error(w, fmt.Sprintf("invalid container size %vx%v", size.Width, size.Height), http.StatusBadRequest)
		return
	}

	changed := api.controller.OnContainerResize(size.Width, size.Height)
	writeJSON(w, struct {
		Changed bool             `json:"changed"`
		State   viewer.ViewState `json:"state"`
	}{
		Changed: changed,
		State:   api.controller.State(),
	})
}

func (api *ApiRouter) TogglePost(w http.ResponseWriter, r *http.Request) {
	toggled := api.controller.ToggleStreaming()
	writeJSON(w, struct {
		Toggled bool             `json:"toggled"`
		State   viewer.ViewState `json:"state"`
	}{
		Toggled: toggled,
		State:   api.controller.State(),
	})
}

func (api *ApiRouter) MediaGet(w http.ResponseWriter, r *http.Request) {
	mediaURL, streaming := api.controller.Media()
	writeJSON(w, struct {
		URL         string `json:"url"`
		IsStreaming bool   `json:"is_streaming"`
	}{
		URL:         mediaURL,
		IsStreaming: streaming,
	})
}

// ImageEventPost lets a client that loads the media itself report the outcome.
func (api *ApiRouter) ImageEventPost(w http.ResponseWriter, r *http.Request) {
	switch kind := r.PathValue("kind"); kind {
	case "load":
		api.controller.OnImageLoad()
	case "error":
		api.controller.OnImageError()
	default:
		http.Error(w, fmt.Sprintf("unknown image event %q", kind), http.StatusBadRequest)
		return
	}
	writeJSON(w, api.controller.State())
}

func (api *ApiRouter) TemperatureGet(w http.ResponseWriter, r *http.Request) {
	state := api.controller.State()
	if state.Temperature == nil {
		http.Error(w, "temperature not available yet", http.StatusNotFound)
		return
	}
	writeJSON(w, struct {
		Temperature float64         `json:"temperature"`
		Label       string          `json:"label"`
		ReportedAt  data.ReportedAt `json:"reported_at"`
	}{
		Temperature: state.Temperature.Celsius,
		Label:       state.TemperatureLabel(),
		ReportedAt:  state.Temperature.ReportedAt,
	})
}

func (api *ApiRouter) trackCacheEvent(cacheHit bool, reason string) {
	e := appinsights.NewEventTelemetry("cache-hit")
	e.Properties["cache-hit"] = fmt.Sprintf("%t", cacheHit)
	e.Properties["reason"] = reason
	(*api.appInsightsClient).Track(e)
}

// loadFrame requests the current media and reports the outcome to the
// controller, exactly like an image element's load/error callbacks.
func (api *ApiRouter) loadFrame(ctx context.Context) image.Image {
	if api.frames == nil {
		return nil
	}
	mediaURL, streaming := api.controller.Media()

	if api.frameTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.frameTimeout)
		defer cancel()
	}

	frame, err := api.frames.FetchFrame(ctx, mediaURL, streaming)
	if err != nil {
		api.log.Debugw("media load failed", "url", mediaURL, "err", err)
		api.controller.OnImageError()
		return nil
	}
	api.controller.OnImageLoad()
	return frame
}

// validDimension bounds every size that can reach the renderer.
func validDimension(v float64) bool {
	return v >= 1 && v <= maxFrameDimension
}

// parseDimension reads a size from the query. A missing value falls back to
// fallback, or to the source size when fallback is out of range.
func parseDimension(r *http.Request, name string, fallback float64, sourceSize float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		if !validDimension(fallback) {
			return sourceSize, nil
		}
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || !validDimension(float64(v)) {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return float64(v), nil
}

func (api *ApiRouter) FrameGet(w http.ResponseWriter, r *http.Request, telemetry *appinsights.RequestTelemetry) {
	current := api.controller.State()
	width, err := parseDimension(r, "width", current.ContainerWidth, viewer.SourceWidth)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := parseDimension(r, "height", current.ContainerHeight, viewer.SourceHeight)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	api.controller.OnContainerResize(width, height)

	frame := api.loadFrame(r.Context())
	state := api.controller.State()
	telemetry.Properties["is-offline"] = fmt.Sprintf("%t", state.IsOffline)
	telemetry.Properties["is-streaming"] = fmt.Sprintf("%t", state.IsStreaming)

	ifNoneMatch := r.Header.Get("If-None-Match")
	if ifNoneMatch != "" {
		telemetry.Properties["If-None-Match"] = ifNoneMatch
		cachedState := api.frameCache.Get(ifNoneMatch)
		if cachedState != nil {
			reason := checkForSignificantChange(cachedState, &state)
			if reason == "" {
				api.trackCacheEvent(true, "no-significant-change")
				w.WriteHeader(http.StatusNotModified)
				return
			}
			api.log.Debugw("significant change in view state", "reason", reason)
			api.trackCacheEvent(false, reason)
			telemetry.Properties["cache-invalid"] = reason
		} else {
			api.trackCacheEvent(false, "no cached data")
		}
	}

	dc, err := drawViewerImage(state, frame, int(width), int(height))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Can't use multiwriter here because we need the hash to set
	// the etag header before writing the image to the response
	buf := new(bytes.Buffer)
	if err = dc.EncodeJPG(buf, &jpeg.Options{Quality: 90}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bufBytes := buf.Bytes()

	w.Header().Set("Content-Type", "image/jpeg")
	if state.IsOffline {
		// only the placeholder is reproducible, so only it gets an etag
		hash := sha1.New()
		hash.Write(bufBytes)
		hashValue := fmt.Sprintf("%x", hash.Sum(nil))
		api.frameCache.Set(hashValue, &state)
		telemetry.Properties["Etag"] = hashValue
		w.Header().Set("Etag", hashValue)
	} else {
		w.Header().Set("Cache-Control", "no-store")
	}

	_, _ = w.Write(bufBytes)
}

// checkForSignificantChange returns why a frame rendered for oldState cannot
// be reused for newState, or "" when it can.
func checkForSignificantChange(oldState *viewer.ViewState, newState *viewer.ViewState) string {
	if oldState == nil {
		return "oldState is nil"
	}
	if !oldState.IsOffline || !newState.IsOffline {
		return "image source is online"
	}
	if oldState.IsStreaming != newState.IsStreaming {
		return "IsStreaming has changed"
	}
	if oldState.ContainerWidth != newState.ContainerWidth || oldState.ContainerHeight != newState.ContainerHeight {
		return "container size has changed"
	}
	if oldState.TemperatureLabel() != newState.TemperatureLabel() {
		return "temperature has changed"
	}
	return ""
}
