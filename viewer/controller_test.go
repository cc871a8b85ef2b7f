package viewer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stuartleeks/home-dash/cam-viewer/config"
	"github.com/stuartleeks/home-dash/cam-viewer/data"
)

var testNow = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type stubWeather struct {
	mutex sync.Mutex
	calls int
	temp  *data.Temperature
	err   error
	// block, when set, holds FetchTemperature until it is closed
	block chan struct{}
}

func (s *stubWeather) FetchTemperature(ctx context.Context) (*data.Temperature, error) {
	s.mutex.Lock()
	s.calls++
	block := s.block
	temp, err := s.temp, s.err
	s.mutex.Unlock()
	if block != nil {
		<-block
	}
	return temp, err
}

func (s *stubWeather) Calls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls
}

func newTestController(weather TemperatureSource) (*Controller, *fakeclock.FakeClock) {
	clk := fakeclock.NewFakeClock(testNow)
	cfg := config.Default()
	cfg.BaseURI = "http://cam.local:8000/"
	return NewController(cfg, weather, clk, nil), clk
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// drain returns how many snapshots are waiting on ch (0 or 1).
func drain(ch <-chan ViewState) int {
	select {
	case <-ch:
		return 1
	default:
		return 0
	}
}

func TestInitialState(t *testing.T) {
	c, _ := newTestController(nil)
	s := c.State()

	if s.IsStreaming || s.IsOffline {
		t.Fatalf("unexpected flags: %+v", s)
	}
	if s.Temperature != nil || s.TemperatureLabel() != "" {
		t.Fatalf("expected no temperature, got %+v", s.Temperature)
	}
	if s.ImageMarginV != 0 || s.ImageMarginH != 0 {
		t.Fatalf("unexpected margins: %+v", s)
	}
	if s.SessionID == "" {
		t.Fatal("expected a session id")
	}
}

func TestOnContainerResize(t *testing.T) {
	c, _ := newTestController(nil)
	ch, cancel := c.Subscribe()
	defer cancel()

	if !c.OnContainerResize(2048, 576) {
		t.Fatal("expected first resize to change state")
	}
	s := c.State()
	if s.ImageMarginV != 0 || s.ImageMarginH != 512 {
		t.Fatalf("margins = (%v, %v), want (0, 512)", s.ImageMarginV, s.ImageMarginH)
	}
	if drain(ch) != 1 {
		t.Fatal("expected a notification")
	}

	if c.OnContainerResize(2048, 576) {
		t.Fatal("expected repeated resize to be a no-op")
	}
	if drain(ch) != 0 {
		t.Fatal("expected no notification for an unchanged resize")
	}

	if !c.OnContainerResize(1024, 864) {
		t.Fatal("expected change")
	}
	s = c.State()
	if s.ImageMarginV != 144 || s.ImageMarginH != 0 {
		t.Fatalf("margins = (%v, %v), want (144, 0)", s.ImageMarginV, s.ImageMarginH)
	}
}

func TestOnContainerResizeSameAspectNotifies(t *testing.T) {
	c, _ := newTestController(nil)
	ch, cancel := c.Subscribe()
	defer cancel()

	// 1024x576 -> 2048x1152 keeps both margins at zero
	if !c.OnContainerResize(2048, 1152) {
		t.Fatal("expected a container size change to be reported")
	}
	select {
	case s := <-ch:
		if s.ContainerWidth != 2048 || s.ContainerHeight != 1152 {
			t.Fatalf("subscriber saw %vx%v, want 2048x1152", s.ContainerWidth, s.ContainerHeight)
		}
		if s.ImageMarginV != 0 || s.ImageMarginH != 0 {
			t.Fatalf("margins = (%v, %v), want (0, 0)", s.ImageMarginV, s.ImageMarginH)
		}
	default:
		t.Fatal("expected a notification for the new container size")
	}

	if c.OnContainerResize(2048, 1152) {
		t.Fatal("expected repeated resize to be a no-op")
	}
	if drain(ch) != 0 {
		t.Fatal("expected no notification for an unchanged resize")
	}
}

func TestToggleStreaming(t *testing.T) {
	c, _ := newTestController(nil)

	stillURL, streaming := c.Media()
	if streaming {
		t.Fatal("expected stills by default")
	}

	if !c.ToggleStreaming() {
		t.Fatal("expected toggle")
	}
	streamURL, streaming := c.Media()
	if !streaming || streamURL != "http://cam.local:8000/stream.mjpg" {
		t.Fatalf("unexpected stream media %q %v", streamURL, streaming)
	}
	if streamURL == stillURL {
		t.Fatal("expected the media URL to change")
	}

	c.ToggleStreaming()
	if c.State().IsStreaming {
		t.Fatal("expected toggling twice to restore the original value")
	}
}

func TestStillURLIsCacheBusted(t *testing.T) {
	c, clk := newTestController(nil)

	first := c.MediaURL()
	if first != "http://cam.local:8000/image_"+itoa(testNow.UnixMilli()) {
		t.Fatalf("unexpected still url %q", first)
	}
	clk.Increment(1500 * time.Millisecond)
	second := c.MediaURL()
	if first == second {
		t.Fatal("expected a fresh timestamp")
	}
	if !strings.HasPrefix(second, "http://cam.local:8000/image_") {
		t.Fatalf("unexpected still url %q", second)
	}
}

func TestOfflineDisablesToggle(t *testing.T) {
	c, _ := newTestController(nil)
	ch, cancel := c.Subscribe()
	defer cancel()

	c.OnImageError()
	if !c.State().IsOffline {
		t.Fatal("expected offline")
	}
	if drain(ch) != 1 {
		t.Fatal("expected a notification")
	}

	c.OnImageError()
	if drain(ch) != 0 {
		t.Fatal("expected repeated error to be silent")
	}

	if c.ToggleStreaming() {
		t.Fatal("expected toggle to be inert while offline")
	}
	if c.State().IsStreaming {
		t.Fatal("streaming flag changed while offline")
	}

	c.OnImageLoad()
	if c.State().IsOffline {
		t.Fatal("expected online after load")
	}
	if !c.ToggleStreaming() {
		t.Fatal("expected toggle to work again")
	}
}

func TestRefreshTemperatureWithOpenMeteo(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := int(status.Load()); s != http.StatusOK {
			w.WriteHeader(s)
			return
		}
		_, _ = w.Write([]byte(`{"current_weather":{"temperature":20.5}}`))
	}))
	defer srv.Close()

	clk := fakeclock.NewFakeClock(testNow)
	weather := data.NewWeatherClient(srv.Client(), srv.URL, 51.5, -0.12, clk)
	c := NewController(config.Default(), weather, clk, nil)

	if err := c.RefreshTemperature(context.Background()); err != nil {
		t.Fatalf("RefreshTemperature: %v", err)
	}
	if got := c.State().TemperatureLabel(); got != "20.5 °C" {
		t.Fatalf("label = %q, want %q", got, "20.5 °C")
	}

	status.Store(http.StatusInternalServerError)
	err := c.RefreshTemperature(context.Background())
	if !errors.Is(err, data.ErrUnexpectedStatus) {
		t.Fatalf("err = %v, want ErrUnexpectedStatus", err)
	}
	if got := c.State().TemperatureLabel(); got != "20.5 °C" {
		t.Fatalf("label after failure = %q, want the previous value", got)
	}
}

func TestRefreshTemperatureWithoutSource(t *testing.T) {
	c, _ := newTestController(nil)
	if err := c.RefreshTemperature(context.Background()); !errors.Is(err, ErrNoWeatherSource) {
		t.Fatalf("err = %v, want ErrNoWeatherSource", err)
	}
}

func TestRunRefreshesOnInterval(t *testing.T) {
	weather := &stubWeather{temp: &data.Temperature{Celsius: 12}}
	c, clk := newTestController(weather)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	eventually(t, func() bool { return c.State().TemperatureLabel() == "12 °C" })

	clk.WaitForWatcherAndIncrement(config.DefaultRefreshInterval)
	eventually(t, func() bool { return weather.Calls() == 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// the timer is gone with the screen
	clk.Increment(config.DefaultRefreshInterval)
	time.Sleep(20 * time.Millisecond)
	if n := weather.Calls(); n != 2 {
		t.Fatalf("expected no refresh after teardown, got %d calls", n)
	}
}

func TestRunFailureKeepsPreviousTemperature(t *testing.T) {
	weather := &stubWeather{temp: &data.Temperature{Celsius: 7.5}}
	c, clk := newTestController(weather)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	eventually(t, func() bool { return c.State().TemperatureLabel() == "7.5 °C" })

	weather.mutex.Lock()
	weather.temp, weather.err = nil, errors.New("boom")
	weather.mutex.Unlock()

	clk.WaitForWatcherAndIncrement(config.DefaultRefreshInterval)
	eventually(t, func() bool { return weather.Calls() == 2 })
	if got := c.State().TemperatureLabel(); got != "7.5 °C" {
		t.Fatalf("label = %q, want the previous value", got)
	}
}

func TestInFlightRefreshAfterCloseIsDiscarded(t *testing.T) {
	weather := &stubWeather{temp: &data.Temperature{Celsius: 30}, block: make(chan struct{})}
	c, _ := newTestController(weather)

	result := make(chan error, 1)
	go func() { result <- c.RefreshTemperature(context.Background()) }()

	eventually(t, func() bool { return weather.Calls() == 1 })
	c.Close()
	close(weather.block)

	if err := <-result; !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("err = %v, want ErrControllerClosed", err)
	}
	if c.State().Temperature != nil {
		t.Fatal("state updated after teardown")
	}
}

func TestCloseStopsEvents(t *testing.T) {
	c, _ := newTestController(nil)
	ch, _ := c.Subscribe()

	c.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel to be closed")
	}

	c.OnImageError()
	c.OnContainerResize(2048, 576)
	s := c.State()
	if s.IsOffline || s.ImageMarginH != 0 {
		t.Fatalf("state changed after close: %+v", s)
	}

	late, _ := c.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected subscription after close to be closed")
	}
}

func TestSubscriberSeesLatestSnapshot(t *testing.T) {
	c, _ := newTestController(nil)
	ch, cancel := c.Subscribe()

	c.OnContainerResize(2048, 576)
	c.OnImageError()

	s := <-ch
	if !s.IsOffline || s.ImageMarginH != 512 {
		t.Fatalf("expected latest snapshot, got %+v", s)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
	cancel()
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
