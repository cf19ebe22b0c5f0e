package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"weather-card/config"
	"weather-card/internal/cache"
	"weather-card/internal/collector"
	"weather-card/internal/location"
	"weather-card/internal/storage"
	"weather-card/internal/weather"
	"weather-card/internal/widget"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type Server struct {
	router      *gin.Engine
	server      *http.Server
	collector   *collector.Collector
	widget      *widget.Service
	db          *storage.Database
	cache       cache.Store
	port        int
	config      *config.Config
	configPath  string
	viper       *viper.Viper
	configMutex sync.RWMutex
	wallpapers  *wallpaperSource
}

type ServerConfig struct {
	Port       int
	Collector  *collector.Collector
	Widget     *widget.Service
	Database   *storage.Database
	Cache      cache.Store
	Config     *config.Config
	ConfigPath string
	// Viper is the instance the config was loaded with. Defaults to the
	// global one.
	Viper *viper.Viper
	// BingBaseURL overrides https://www.bing.com.
	BingBaseURL string
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	appConfig := cfg.Config
	if appConfig == nil {
		appConfig = &config.Config{}
	}

	corsConfig := cors.DefaultConfig()
	if len(appConfig.API.CORSAllowedOrigins) > 0 {
		corsConfig.AllowOrigins = appConfig.API.CORSAllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "PUT", "OPTIONS", "HEAD"}
	router.Use(cors.New(corsConfig))

	v := cfg.Viper
	if v == nil {
		v = viper.GetViper()
	}
	store := cfg.Cache
	if store == nil {
		store = cache.NewMemory()
	}

	s := &Server{
		router:     router,
		collector:  cfg.Collector,
		widget:     cfg.Widget,
		db:         cfg.Database,
		cache:      store,
		port:       cfg.Port,
		config:     appConfig,
		configPath: cfg.ConfigPath,
		viper:      v,
		wallpapers: newWallpaperSource(cfg.BingBaseURL, store),
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api/v1")
	{
		api.GET("/locations", s.locationsHandler)
		api.GET("/locations/:city", s.locationHandler)
		api.GET("/moment", s.momentHandler)
		api.GET("/card", s.cardHandler)
		api.GET("/history", s.historyHandler)
		api.GET("/background/wallpaper", s.backgroundWallpaperHandler)

		api.GET("/settings/city", s.getCityHandler)
		api.PUT("/settings/city", s.updateCityHandler)

		api.GET("/config/weather", s.getWeatherConfigHandler)
		api.PUT("/config/weather", s.updateWeatherConfigHandler)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	log.Info().Int("port", s.port).Msg("API server starting")
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, location.ErrLocationNotFound):
		return http.StatusNotFound
	case errors.Is(err, weather.ErrProviderDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	collecting := false
	var lastCard *time.Time
	if s.collector != nil {
		collecting = s.collector.IsCollecting()
		if card := s.collector.GetLatestCard(); card != nil {
			lastCard = &card.GeneratedAt
		}
	}

	city := s.widget.CurrentCity().CityName
	var lastSnapshot *time.Time
	if s.db != nil {
		if snapshot, err := s.db.GetLatestSnapshot(city); err == nil {
			lastSnapshot = &snapshot.Timestamp
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "healthy",
		"collecting":       collecting,
		"current_city":     city,
		"last_card_at":     lastCard,
		"last_snapshot_at": lastSnapshot,
		"timestamp":        time.Now(),
	})
}

func (s *Server) locationsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.widget.Locations())
}

func (s *Server) locationHandler(c *gin.Context) {
	rec, err := s.widget.Resolve(c.Param("city"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) momentHandler(c *gin.Context) {
	result, err := s.widget.Moment(c.Query("city"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) cardHandler(c *gin.Context) {
	card, err := s.widget.Card(c.Request.Context(), c.Query("city"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) historyHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history is not available"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	city := strings.TrimSpace(c.Query("city"))
	if city != "" {
		if _, err := s.widget.Resolve(city); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
	}

	snapshots, err := s.db.GetSnapshots(city, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshots)
}

type CityRequest struct {
	CityName string `json:"city_name" binding:"required"`
}

func (s *Server) getCityHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.widget.CurrentCity())
}

func (s *Server) updateCityHandler(c *gin.Context) {
	var req CityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.widget.SelectCity(req.CityName)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// WeatherConfigResponse never carries the API key itself, only a masked
// form of it.
type WeatherConfigResponse struct {
	Enabled   bool   `json:"enabled"`
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key"`
	HasAPIKey bool   `json:"has_api_key"`
	BaseURL   string `json:"base_url"`
	Units     string `json:"units"`
	CacheTTL  string `json:"cache_ttl"`
}

type WeatherConfigRequest struct {
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Units    string `json:"units"`
	CacheTTL string `json:"cache_ttl"`
}

func (s *Server) getWeatherConfigHandler(c *gin.Context) {
	s.configMutex.RLock()
	defer s.configMutex.RUnlock()

	cfg := s.config.Weather
	c.JSON(http.StatusOK, WeatherConfigResponse{
		Enabled:   cfg.Enabled,
		Provider:  cfg.Provider,
		APIKey:    maskSecret(cfg.APIKey),
		HasAPIKey: cfg.APIKey != "",
		BaseURL:   cfg.BaseURL,
		Units:     cfg.Units,
		CacheTTL:  cfg.CacheTTL.String(),
	})
}

// maskSecret hides all but the last four characters of a secret. Short
// secrets are hidden entirely.
func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	r := []rune(secret)
	if len(r) <= 8 {
		return "********"
	}
	return "********" + string(r[len(r)-4:])
}

func (s *Server) updateWeatherConfigHandler(c *gin.Context) {
	var req WeatherConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.configMutex.RLock()
	next := s.config.Weather
	s.configMutex.RUnlock()

	next.Enabled = req.Enabled
	next.Provider = strings.TrimSpace(req.Provider)
	if next.Provider == "" {
		next.Provider = "cwa"
	}
	// Sending back the masked key from GET keeps the stored one.
	if apiKey := strings.TrimSpace(req.APIKey); apiKey == "" || apiKey != maskSecret(next.APIKey) {
		next.APIKey = apiKey
	}
	next.BaseURL = strings.TrimSpace(req.BaseURL)
	next.Units = strings.TrimSpace(req.Units)
	if next.Units == "" {
		next.Units = "metric"
	}
	if req.CacheTTL != "" {
		ttl, err := time.ParseDuration(req.CacheTTL)
		if err != nil || ttl < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid cache_ttl %q", req.CacheTTL)})
			return
		}
		next.CacheTTL = ttl
	}

	provider, err := NewWeatherProvider(next, s.cache)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.configMutex.Lock()
	s.config.Weather = next
	s.configMutex.Unlock()
	s.widget.SetWeatherProvider(provider)

	if err := s.saveWeatherConfig(next); err != nil {
		log.Warn().Err(err).Msg("failed to save config to file")
		c.JSON(http.StatusOK, gin.H{
			"message": "Configuration applied but not persisted to file",
			"warning": err.Error(),
		})
		return
	}

	log.Info().Str("provider", next.Provider).Bool("enabled", next.Enabled).Msg("weather configuration updated")
	c.JSON(http.StatusOK, gin.H{
		"message": "Weather configuration updated successfully",
	})
}

func (s *Server) saveWeatherConfig(w config.WeatherConfig) error {
	s.configMutex.Lock()
	defer s.configMutex.Unlock()
	return config.SaveWeather(s.viper, s.configPath, w)
}

// NewWeatherProvider builds the configured provider wrapped in the report
// cache. It returns nil when weather is disabled.
func NewWeatherProvider(cfg config.WeatherConfig, store cache.Store) (weather.Provider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	provider, err := weather.NewProvider(weather.Options{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Units:    cfg.Units,
	})
	if err != nil {
		return nil, err
	}

	if store == nil || cfg.CacheTTL <= 0 {
		return provider, nil
	}
	return weather.NewCachedProvider(provider, store, cfg.CacheTTL), nil
}
