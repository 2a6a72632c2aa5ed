package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GeocoderOpenWeather = "openweather"
	GeocoderGoogle      = "google"

	// MemoryDatabaseURL selects the in-memory store instead of PostgreSQL.
	MemoryDatabaseURL = "memory://"

	defaultGenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	defaultGenAIModel   = "gemini-2.0-flash"
)

type AppConfig struct {
	WeatherAPIKey     string
	OpenWeatherAPIKey string
	GenAIAPIKey       string
	DatabaseURL       string

	GenAIBaseURL string
	GenAIModel   string

	// GeocoderProvider is openweather or google.
	GeocoderProvider      string
	GoogleGeocodingAPIKey string

	// Lang is the upstream language tag and the preferred local name for geocoding.
	Lang        string
	DefaultCity string

	HTTPTimeout       time.Duration
	AlertPollInterval time.Duration

	// SevenDayPrediction enables the AI-predicted days of the seven-day forecast.
	SevenDayPrediction bool

	// StoreMaxHistory caps records kept per key by the memory store (0 = unlimited).
	StoreMaxHistory int

	LogLevel  string
	LogFormat string
	Port      string
}

// UseMemoryStore reports whether DATABASE_URL selects the in-memory store.
func (c *AppConfig) UseMemoryStore() bool {
	return strings.HasPrefix(c.DatabaseURL, MemoryDatabaseURL)
}

// Load reads configuration from the environment, after loading an optional .env file.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from the environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		WeatherAPIKey:         os.Getenv("WEATHERAPI_API_KEY"),
		OpenWeatherAPIKey:     os.Getenv("OPENWEATHER_API_KEY"),
		GenAIAPIKey:           os.Getenv("GENAI_API_KEY"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		GenAIBaseURL:          getenvDefault("GENAI_BASE_URL", defaultGenAIBaseURL),
		GenAIModel:            getenvDefault("GENAI_MODEL", defaultGenAIModel),
		GeocoderProvider:      strings.ToLower(getenvDefault("GEOCODER_PROVIDER", GeocoderOpenWeather)),
		GoogleGeocodingAPIKey: os.Getenv("GOOGLE_GEOCODING_API_KEY"),
		Lang:                  getenvDefault("WEATHER_LANG", "vi"),
		DefaultCity:           getenvDefault("DEFAULT_CITY", "Hanoi"),
		StoreMaxHistory:       getenvInt("STORE_MAX_HISTORY", 0),
		LogLevel:              getenvDefault("LOG_LEVEL", "info"),
		LogFormat:             getenvDefault("LOG_FORMAT", "text"),
		Port:                  getenvDefault("PORT", "8080"),
	}

	var missing []string
	for key, val := range map[string]string{
		"WEATHERAPI_API_KEY":  cfg.WeatherAPIKey,
		"OPENWEATHER_API_KEY": cfg.OpenWeatherAPIKey,
		"GENAI_API_KEY":       cfg.GenAIAPIKey,
		"DATABASE_URL":        cfg.DatabaseURL,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch cfg.GeocoderProvider {
	case GeocoderOpenWeather:
	case GeocoderGoogle:
		if cfg.GoogleGeocodingAPIKey == "" {
			return nil, fmt.Errorf("GOOGLE_GEOCODING_API_KEY is required when GEOCODER_PROVIDER=google")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER_PROVIDER %q: want openweather or google", cfg.GeocoderProvider)
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.AlertPollInterval, err = getenvDuration("ALERT_POLL_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SevenDayPrediction, err = getenvBool("SEVEN_DAY_PREDICTION", true); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
