package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"code.cloudfoundry.org/clock"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from weather endpoint")
	ErrNoCurrentWeather = errors.New("weather response has no current_weather")
)

// CurrentWeather is the current_weather block of an Open-Meteo forecast.
type CurrentWeather struct {
	Time          string   `json:"time"`
	Temperature   *float64 `json:"temperature"`
	WindSpeed     float64  `json:"windspeed"`
	WindDirection float64  `json:"winddirection"`
	WeatherCode   int      `json:"weathercode"`
	IsDay         int      `json:"is_day"`
}

type forecastResponse struct {
	Latitude       float64         `json:"latitude"`
	Longitude      float64         `json:"longitude"`
	CurrentWeather *CurrentWeather `json:"current_weather"`
}

// WeatherClient fetches the current outdoor temperature for a fixed location.
type WeatherClient struct {
	httpClient *http.Client
	endpoint   string
	latitude   float64
	longitude  float64
	clock      clock.Clock
}

func NewWeatherClient(httpClient *http.Client, endpoint string, latitude, longitude float64, clk clock.Clock) *WeatherClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &WeatherClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		latitude:   latitude,
		longitude:  longitude,
		clock:      clk,
	}
}

// RequestURL is the forecast URL for the configured location.
func (c *WeatherClient) RequestURL() string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.longitude, 'f', -1, 64))
	q.Set("current_weather", "true")
	q.Set("forecast_days", "1")
	return c.endpoint + "?" + q.Encode()
}

// FetchTemperature performs one GET against the forecast endpoint.
// Anything other than a 200 with a current temperature is an error.
func (c *WeatherClient) FetchTemperature(ctx context.Context) (*Temperature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RequestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	if body.CurrentWeather == nil || body.CurrentWeather.Temperature == nil {
		return nil, ErrNoCurrentWeather
	}

	return &Temperature{
		ReportedAt: ReportedAt(c.clock.Now().UTC()),
		Celsius:    *body.CurrentWeather.Temperature,
	}, nil
}
