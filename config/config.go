package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "WEATHER_CARD"

type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Collector CollectorConfig `mapstructure:"collector"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Widget    WidgetConfig    `mapstructure:"widget"`
}

type APIConfig struct {
	Port               int      `mapstructure:"port"`
	Enabled            bool     `mapstructure:"enabled"`
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
}

type CollectorConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	Enabled   bool          `mapstructure:"enabled"`
	Retention time.Duration `mapstructure:"retention"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WeatherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Provider string        `mapstructure:"provider"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Units    string        `mapstructure:"units"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type WidgetConfig struct {
	DefaultCity   string `mapstructure:"default_city"`
	Timezone      string `mapstructure:"timezone"`
	LocationsFile string `mapstructure:"locations_file"`
	SunriseFile   string `mapstructure:"sunrise_file"`
}

// Location returns the configured timezone of the sunrise table.
func (w WidgetConfig) Location() (*time.Location, error) {
	if strings.TrimSpace(w.Timezone) == "" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", w.Timezone, err)
	}
	return tz, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8046)
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.cors_allowed_origins", []string{})
	v.SetDefault("collector.interval", "10m")
	v.SetDefault("collector.enabled", true)
	v.SetDefault("collector.retention", "720h")
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic_prefix", "weather-card")
	v.SetDefault("mqtt.client_id", "weather-card")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("database.path", "./weather-card.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("weather.enabled", true)
	v.SetDefault("weather.provider", "cwa")
	v.SetDefault("weather.api_key", "")
	v.SetDefault("weather.base_url", "")
	v.SetDefault("weather.units", "metric")
	v.SetDefault("weather.cache_ttl", "10m")
	v.SetDefault("widget.default_city", "臺北市")
	v.SetDefault("widget.timezone", "Asia/Taipei")
	v.SetDefault("widget.locations_file", "")
	v.SetDefault("widget.sunrise_file", "")
}

// Load reads the configuration into the global viper instance so that it
// can be written back with Save.
func Load(configPath string) (*Config, error) {
	return LoadWith(viper.GetViper(), configPath)
}

func LoadWith(v *viper.Viper, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/weather-card")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath != "" && errors.Is(err, fs.ErrNotExist)) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveWeather writes the weather section back to the config file.
func SaveWeather(v *viper.Viper, configPath string, w WeatherConfig) error {
	if configPath == "" {
		configPath = v.ConfigFileUsed()
	}
	if configPath == "" {
		configPath = "config.yaml"
	}
	v.SetConfigFile(configPath)

	v.Set("weather.enabled", w.Enabled)
	v.Set("weather.provider", w.Provider)
	v.Set("weather.api_key", w.APIKey)
	v.Set("weather.base_url", w.BaseURL)
	v.Set("weather.units", w.Units)
	v.Set("weather.cache_ttl", w.CacheTTL.String())

	return v.WriteConfig()
}
