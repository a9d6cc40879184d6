package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leafwise/leafwise/config"
	"github.com/leafwise/leafwise/internal/capability"
)

// Client fetches current conditions from the OpenWeather current weather API.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *log.Logger
}

// New creates an OpenWeather client from config.
func New(cfg config.WeatherConfig, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[WEATHER] ", log.LstdFlags)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type currentWeatherResponse struct {
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
}

// CurrentWeather looks up current conditions for a city name. Units are
// metric. Failures are returned as errors; the orchestrator converts them to
// the WeatherReport error sentinel so a turn never dies on weather.
func (c *Client) CurrentWeather(ctx context.Context, location string) (capability.WeatherReport, error) {
	if location == "" {
		return capability.WeatherReport{}, fmt.Errorf("location is required")
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return capability.WeatherReport{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return capability.WeatherReport{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return capability.WeatherReport{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return capability.WeatherReport{}, fmt.Errorf("openweather API error (status %d): %s", resp.StatusCode, string(body))
	}

	var cw currentWeatherResponse
	if err := json.Unmarshal(body, &cw); err != nil {
		return capability.WeatherReport{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	report := capability.WeatherReport{
		Temperature: cw.Main.Temp,
		Humidity:    cw.Main.Humidity,
	}
	if len(cw.Weather) > 0 {
		report.Description = cw.Weather[0].Description
	}
	return report, nil
}

// ShouldSkipWatering reports whether watering can be skipped given current
// conditions: active rain, or humidity above 80 percent.
func ShouldSkipWatering(r capability.WeatherReport) bool {
	if !r.OK() {
		return false
	}
	if r.Humidity > 80 {
		return true
	}
	return strings.Contains(strings.ToLower(r.Description), "rain")
}

// WateringAdjustment returns a multiplier for watering frequency based on
// temperature and humidity, clamped to [0.5, 2.0].
func WateringAdjustment(r capability.WeatherReport) float64 {
	if !r.OK() {
		return 1.0
	}
	factor := 1.0
	if r.Temperature > 30 {
		factor *= 1.3
	} else if r.Temperature < 10 {
		factor *= 0.7
	}
	if r.Humidity > 70 {
		factor *= 0.8
	} else if r.Humidity < 30 {
		factor *= 1.2
	}
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 2.0 {
		factor = 2.0
	}
	return factor
}
