package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"agromarket/internal/models"
)

// Client reads current conditions from an Open-Meteo compatible endpoint.
type Client struct {
	baseURL  string
	timezone string
	client   *resty.Client
}

func NewClient(baseURL string) *Client {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	return &Client{baseURL: baseURL, timezone: "Asia/Kolkata", client: client}
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		Windspeed   float64 `json:"windspeed"`
		Weathercode int     `json:"weathercode"`
	} `json:"current_weather"`
	Daily struct {
		PrecipitationSum []float64 `json:"precipitation_sum"`
	} `json:"daily"`
}

// Current returns conditions at lat/lon with tomorrow's precipitation and
// the matching farm advisory.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*models.Weather, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"latitude":        strconv.FormatFloat(lat, 'f', -1, 64),
			"longitude":       strconv.FormatFloat(lon, 'f', -1, 64),
			"current_weather": "true",
			"daily":           "precipitation_sum",
			"forecast_days":   "3",
			"timezone":        c.timezone,
		}).
		Get(c.baseURL + "/v1/forecast")
	if err != nil {
		return nil, fmt.Errorf("weather fetch: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("weather fetch: http %d", resp.StatusCode())
	}

	var fr forecastResponse
	if err := json.Unmarshal(resp.Body(), &fr); err != nil {
		return nil, fmt.Errorf("weather decode: %w", err)
	}

	var rain float64
	if len(fr.Daily.PrecipitationSum) > 1 {
		rain = fr.Daily.PrecipitationSum[1]
	}
	cw := fr.CurrentWeather

	return &models.Weather{
		Temperature: int(math.Round(cw.Temperature)),
		Windspeed:   int(math.Round(cw.Windspeed)),
		Weathercode: cw.Weathercode,
		Rain:        int(math.Round(rain)),
		Description: Describe(cw.Weathercode),
		Advisory:    Advisory(cw.Temperature, rain, cw.Windspeed),
	}, nil
}

// Describe maps a WMO weather code to a short description.
func Describe(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code <= 3:
		return "Partly cloudy"
	case code <= 9:
		return "Fog"
	case code <= 19:
		return "Drizzle"
	case code <= 29:
		return "Rain"
	case code <= 39:
		return "Snow"
	case code <= 49:
		return "Fog"
	case code <= 59:
		return "Drizzle"
	case code <= 69:
		return "Rain"
	case code <= 79:
		return "Snow"
	case code <= 84:
		return "Rain showers"
	case code <= 94:
		return "Thunderstorm"
	default:
		return "Heavy storm"
	}
}

// Advisory returns the highest-priority farm advisory for the conditions,
// or "" when none applies.
func Advisory(temp, rain, windspeed float64) string {
	switch {
	case temp > 40:
		return "Extreme heat alert! Protect crops & livestock."
	case temp > 35:
		return "Heat stress risk. Shade net recommended."
	case rain > 20:
		return "Heavy rain forecast. Check drainage."
	case rain > 10:
		return "Likely rain tomorrow. Skip irrigation."
	case windspeed > 40:
		return "Strong winds. Secure nets & structures."
	default:
		return ""
	}
}
