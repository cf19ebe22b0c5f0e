package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"weather-card/internal/cache"
	"weather-card/internal/sunrise"
	"weather-card/internal/widget"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultBingBaseURL = "https://www.bing.com"
	defaultBingMarket  = "zh-TW"
	bingWallpaperTTL   = 6 * time.Hour
	// stale wallpapers are kept this long as a fallback for failed fetches
	bingWallpaperKeep = 4 * bingWallpaperTTL
)

var bingMarketPattern = regexp.MustCompile(`^[a-z]{2}-[A-Z]{2}$`)

type wallpaperPayload struct {
	Provider string `json:"provider"`
	Market   string `json:"mkt"`
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Credit   string `json:"credit,omitempty"`
	Scene    string `json:"scene"`
	Moment   string `json:"moment"`
	CityName string `json:"city_name"`
}

type bingArchiveResponse struct {
	Images []struct {
		URL       string `json:"url"`
		Title     string `json:"title"`
		Copyright string `json:"copyright"`
	} `json:"images"`
}

type wallpaperEntry struct {
	FetchedAt time.Time        `json:"fetched_at"`
	Payload   wallpaperPayload `json:"payload"`
}

// scene is a background mood and the Bing archive slot used for it.
type scene struct {
	Name      string
	BingIndex int
}

var (
	sceneDefault  = scene{"default", 0}
	sceneClear    = scene{"clear", 1}
	scenePartly   = scene{"partly_cloudy", 2}
	sceneOvercast = scene{"overcast", 3}
	sceneRain     = scene{"rain", 4}
	sceneHeavy    = scene{"heavy_rain", 5}
	sceneStorm    = scene{"thunderstorm", 6}
	sceneNight    = scene{"night", 7}
)

// pickScene maps a weather description and the moment of day to a scene.
// Precipitation wins over night so a rainy night still looks rainy.
func pickScene(description string, moment sunrise.Moment) scene {
	d := strings.ToLower(strings.TrimSpace(description))

	switch {
	case containsAny(d, "雷", "thunder"):
		return sceneStorm
	case containsAny(d, "豪雨", "大雨", "heavy rain"):
		return sceneHeavy
	case containsAny(d, "雨", "rain", "drizzle"):
		return sceneRain
	}

	if moment == sunrise.Night {
		return sceneNight
	}

	switch {
	case containsAny(d, "霧", "fog", "mist"):
		return sceneOvercast
	case containsAny(d, "陰", "overcast"):
		return sceneOvercast
	case containsAny(d, "多雲", "cloud"):
		return scenePartly
	case containsAny(d, "晴", "clear", "sun"):
		return sceneClear
	}
	return sceneDefault
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sanitizeBingMarket(value string) string {
	trimmed := strings.TrimSpace(value)
	if bingMarketPattern.MatchString(trimmed) {
		return trimmed
	}
	return defaultBingMarket
}

type wallpaperSource struct {
	baseURL string
	store   cache.Store
	client  *http.Client
	now     func() time.Time
}

func newWallpaperSource(baseURL string, store cache.Store) *wallpaperSource {
	if baseURL == "" {
		baseURL = defaultBingBaseURL
	}
	return &wallpaperSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		store:   store,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
}

func (w *wallpaperSource) Get(ctx context.Context, market string, sc scene) (wallpaperPayload, error) {
	key := fmt.Sprintf("wallpaper:bing:%s:%d", market, sc.BingIndex)

	var cached *wallpaperEntry
	if raw, err := w.store.Get(ctx, key); err == nil {
		var entry wallpaperEntry
		if err := json.Unmarshal(raw, &entry); err == nil {
			cached = &entry
		}
	}
	if cached != nil && w.now().Sub(cached.FetchedAt) < bingWallpaperTTL {
		return cached.Payload, nil
	}

	payload, err := w.fetch(ctx, market, sc.BingIndex)
	if err != nil {
		if cached != nil {
			log.Warn().Err(err).Str("market", market).Msg("bing fetch failed, serving stale wallpaper")
			return cached.Payload, nil
		}
		return wallpaperPayload{}, err
	}

	raw, err := json.Marshal(wallpaperEntry{FetchedAt: w.now(), Payload: payload})
	if err == nil {
		if err := w.store.Set(ctx, key, raw, bingWallpaperKeep); err != nil {
			log.Warn().Err(err).Msg("failed to cache wallpaper")
		}
	}
	return payload, nil
}

func (w *wallpaperSource) fetch(ctx context.Context, market string, index int) (wallpaperPayload, error) {
	endpoint := fmt.Sprintf("%s/HPImageArchive.aspx?format=js&idx=%d&n=1&mkt=%s", w.baseURL, index, market)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return wallpaperPayload{}, fmt.Errorf("bing request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "weather-card/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return wallpaperPayload{}, fmt.Errorf("bing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return wallpaperPayload{}, fmt.Errorf("bing bad status: %s", resp.Status)
	}

	var archive bingArchiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&archive); err != nil {
		return wallpaperPayload{}, fmt.Errorf("bing decode: %w", err)
	}
	if len(archive.Images) == 0 || strings.TrimSpace(archive.Images[0].URL) == "" {
		return wallpaperPayload{}, fmt.Errorf("bing image URL is missing")
	}

	image := archive.Images[0]
	imageURL := strings.TrimSpace(image.URL)
	if !strings.HasPrefix(imageURL, "http") {
		imageURL = w.baseURL + imageURL
	}

	return wallpaperPayload{
		Provider: "bing",
		Market:   market,
		URL:      imageURL,
		Title:    strings.TrimSpace(image.Title),
		Credit:   strings.TrimSpace(image.Copyright),
	}, nil
}

func cardDescription(card *widget.Card) string {
	if card.Weather == nil {
		return card.Summary
	}
	return card.Summary + " " + card.Weather.Observation.Condition + " " + card.Weather.Observation.Description
}

func (s *Server) backgroundWallpaperHandler(c *gin.Context) {
	card, err := s.widget.Card(c.Request.Context(), c.Query("city"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	sc := pickScene(cardDescription(card), card.Moment)
	market := sanitizeBingMarket(c.Query("mkt"))

	payload, err := s.wallpapers.Get(c.Request.Context(), market, sc)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch wallpaper", "details": err.Error()})
		return
	}

	payload.Scene = sc.Name
	payload.Moment = string(card.Moment)
	payload.CityName = card.CityName
	c.JSON(http.StatusOK, payload)
}
