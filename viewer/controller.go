package viewer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gofrs/uuid"
	"github.com/stuartleeks/home-dash/cam-viewer/config"
	"github.com/stuartleeks/home-dash/cam-viewer/data"
	"github.com/stuartleeks/home-dash/cam-viewer/logger"
)

var (
	ErrNoWeatherSource  = errors.New("no weather source configured")
	ErrControllerClosed = errors.New("controller closed")
)

const (
	streamPath  = "stream.mjpg"
	stillPrefix = "image_"
)

// TemperatureSource is satisfied by data.WeatherClient.
type TemperatureSource interface {
	FetchTemperature(ctx context.Context) (*data.Temperature, error)
}

// ViewState is everything the screen needs to draw itself.
type ViewState struct {
	SessionID       string            `json:"session_id"`
	IsStreaming     bool              `json:"is_streaming"`
	ImageMarginV    float64           `json:"image_margin_v"`
	ImageMarginH    float64           `json:"image_margin_h"`
	ContainerWidth  float64           `json:"container_width"`
	ContainerHeight float64           `json:"container_height"`
	Temperature     *data.Temperature `json:"temperature,omitempty"`
	IsOffline       bool              `json:"is_offline"`
}

// TemperatureLabel is the text of the bottom-right overlay, empty until the
// first successful weather fetch.
func (s ViewState) TemperatureLabel() string {
	return s.Temperature.Label()
}

// Controller owns the ViewState of one screen. Each handler that changes the
// state publishes a snapshot to subscribers; handlers that change nothing stay
// silent.
type Controller struct {
	mutex       sync.Mutex
	state       ViewState
	closed      bool
	subscribers map[string]chan ViewState

	baseURI         string
	refreshInterval time.Duration
	weather         TemperatureSource
	clock           clock.Clock
	log             *logger.Logger
}

// NewController creates the controller for one screen. weather may be nil, in
// which case the temperature is never fetched.
func NewController(cfg *config.Config, weather TemperatureSource, clk clock.Clock, log *logger.Logger) *Controller {
	if cfg == nil {
		cfg = config.Default()
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = config.DefaultRefreshInterval
	}
	return &Controller{
		state: ViewState{
			SessionID:       uuid.Must(uuid.NewV4()).String(),
			ContainerWidth:  SourceWidth,
			ContainerHeight: SourceHeight,
		},
		subscribers:     map[string]chan ViewState{},
		baseURI:         cfg.BaseURI,
		refreshInterval: refreshInterval,
		weather:         weather,
		clock:           clk,
		log:             log,
	}
}

// State returns a snapshot of the current state.
func (c *Controller) State() ViewState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// OnContainerResize records the container size and recomputes the letterbox
// margins. It reports whether anything changed; a resize to the current size
// does not notify.
func (c *Controller) OnContainerResize(width, height float64) bool {
	marginV, marginH := ComputeMargins(width, height)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return false
	}
	if c.state.ContainerWidth == width && c.state.ContainerHeight == height &&
		c.state.ImageMarginV == marginV && c.state.ImageMarginH == marginH {
		return false
	}
	c.state.ContainerWidth = width
	c.state.ContainerHeight = height
	c.state.ImageMarginV = marginV
	c.state.ImageMarginH = marginH
	c.notifyLocked()
	return true
}

// ToggleStreaming switches between the live stream and stills. The control is
// inert while the source is offline; the return value reports whether the
// flag flipped.
func (c *Controller) ToggleStreaming() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || c.state.IsOffline {
		return false
	}
	c.state.IsStreaming = !c.state.IsStreaming
	c.notifyLocked()
	return true
}

func (c *Controller) OnImageLoad() {
	c.setOffline(false)
}

// OnImageError marks the source offline. Recovery is left to whoever loads the
// image next; the controller never retries.
func (c *Controller) OnImageError() {
	c.setOffline(true)
}

func (c *Controller) setOffline(offline bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed || c.state.IsOffline == offline {
		return
	}
	c.state.IsOffline = offline
	c.notifyLocked()
}

// RefreshTemperature fetches the outdoor temperature once. On failure the
// previous reading is kept and the error is returned for logging only.
func (c *Controller) RefreshTemperature(ctx context.Context) error {
	if c.weather == nil {
		return ErrNoWeatherSource
	}
	if c.isClosed() {
		return ErrControllerClosed
	}

	temp, err := c.weather.FetchTemperature(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh temperature: %w", err)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	// the screen may have gone away while the request was in flight
	if c.closed {
		return ErrControllerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.state.Temperature = temp
	c.notifyLocked()
	return nil
}

// Run refreshes the temperature now and then every refresh interval until ctx
// is cancelled. The controller is closed when Run returns.
func (c *Controller) Run(ctx context.Context) error {
	defer c.Close()

	if c.weather == nil {
		c.log.Infow("weather location not configured, temperature disabled")
		<-ctx.Done()
		return nil
	}

	ticker := c.clock.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			c.refresh(ctx)
		}
	}
}

func (c *Controller) refresh(ctx context.Context) {
	err := c.RefreshTemperature(ctx)
	switch {
	case err == nil:
		c.log.Debugw("temperature refreshed", "label", c.State().TemperatureLabel())
	case ctx.Err() != nil, errors.Is(err, ErrControllerClosed):
	default:
		c.log.Debugw("temperature refresh failed", "err", err)
	}
}

// Media returns the URL the screen should request right now and whether it is
// the live stream. Still URLs carry the current time so that every request
// bypasses caches.
func (c *Controller) Media() (string, bool) {
	c.mutex.Lock()
	streaming := c.state.IsStreaming
	c.mutex.Unlock()

	path := streamPath
	if !streaming {
		path = stillPrefix + strconv.FormatInt(c.clock.Now().UnixMilli(), 10)
	}
	return strings.TrimRight(c.baseURI, "/") + "/" + path, streaming
}

func (c *Controller) MediaURL() string {
	u, _ := c.Media()
	return u
}

// Subscribe returns a channel that receives the latest state after every
// change. Slow readers only see the most recent snapshot. The channel is
// closed by the returned cancel func or by Close.
func (c *Controller) Subscribe() (<-chan ViewState, func()) {
	id := uuid.Must(uuid.NewV4()).String()
	ch := make(chan ViewState, 1)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	c.subscribers[id] = ch

	return ch, func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

// Close tears the screen down. Later events and in-flight fetches leave the
// state untouched.
func (c *Controller) Close() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
}

func (c *Controller) isClosed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closed
}

// notifyLocked publishes the current state. Callers hold the mutex.
func (c *Controller) notifyLocked() {
	snapshot := c.state
	for _, ch := range c.subscribers {
		select {
		case ch <- snapshot:
			continue
		default:
		}
		// drop the stale snapshot and replace it
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
