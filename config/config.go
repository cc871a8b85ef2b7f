package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	KeyBaseURI         = "WEBCAM_BASE_URI"
	KeyLatitude        = "WEATHER_LATITUDE"
	KeyLongitude       = "WEATHER_LONGITUDE"
	KeyWeatherEndpoint = "WEATHER_ENDPOINT"
	KeyRefreshInterval = "WEATHER_REFRESH_INTERVAL"
	KeyFrameTimeout    = "FRAME_TIMEOUT"
	KeyListenAddress   = "LISTEN_ADDRESS"
	KeyAppInsightsKey  = "APPLICATIONINSIGHTS_INSTRUMENTATION_KEY"
	KeyLogLevel        = "LOG_LEVEL"
)

const (
	DefaultBaseURI         = "http://localhost:8000/"
	DefaultWeatherEndpoint = "https://api.open-meteo.com/v1/forecast"
	DefaultRefreshInterval = 15 * time.Minute
	DefaultFrameTimeout    = 10 * time.Second
	DefaultListenAddress   = ":8080"
	DefaultLogLevel        = "info"
)

// Config is read once at startup and handed to the components that need it.
type Config struct {
	BaseURI string
	// Latitude and Longitude are nil when unset or unparseable, in which case
	// no weather request is ever issued.
	Latitude  *float64
	Longitude *float64

	WeatherEndpoint string
	RefreshInterval time.Duration
	FrameTimeout    time.Duration

	ListenAddress                 string
	AppInsightsInstrumentationKey string
	LogLevel                      string
}

// HasLocation reports whether both coordinates are available.
func (c *Config) HasLocation() bool {
	return c.Latitude != nil && c.Longitude != nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		BaseURI:         DefaultBaseURI,
		WeatherEndpoint: DefaultWeatherEndpoint,
		RefreshInterval: DefaultRefreshInterval,
		FrameTimeout:    DefaultFrameTimeout,
		ListenAddress:   DefaultListenAddress,
		LogLevel:        DefaultLogLevel,
	}
}

// Load builds the configuration from defaults, an optional configs/viewer.yaml
// and the environment (highest precedence).
func Load() (*Config, error) {
	return load(viper.New(), "configs")
}

func load(v *viper.Viper, configDir string) (*Config, error) {
	d := Default()
	v.SetDefault(KeyBaseURI, d.BaseURI)
	v.SetDefault(KeyWeatherEndpoint, d.WeatherEndpoint)
	v.SetDefault(KeyRefreshInterval, d.RefreshInterval)
	v.SetDefault(KeyFrameTimeout, d.FrameTimeout)
	v.SetDefault(KeyListenAddress, d.ListenAddress)
	v.SetDefault(KeyLogLevel, d.LogLevel)

	v.AddConfigPath(configDir)
	v.SetConfigName("viewer")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	refresh := v.GetDuration(KeyRefreshInterval)
	if refresh <= 0 {
		refresh = d.RefreshInterval
	}
	frameTimeout := v.GetDuration(KeyFrameTimeout)
	if frameTimeout <= 0 {
		frameTimeout = d.FrameTimeout
	}

	return &Config{
		BaseURI:                       v.GetString(KeyBaseURI),
		Latitude:                      optionalFloat(v.GetString(KeyLatitude)),
		Longitude:                     optionalFloat(v.GetString(KeyLongitude)),
		WeatherEndpoint:               v.GetString(KeyWeatherEndpoint),
		RefreshInterval:               refresh,
		FrameTimeout:                  frameTimeout,
		ListenAddress:                 v.GetString(KeyListenAddress),
		AppInsightsInstrumentationKey: v.GetString(KeyAppInsightsKey),
		LogLevel:                      strings.ToLower(v.GetString(KeyLogLevel)),
	}, nil
}

func optionalFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
