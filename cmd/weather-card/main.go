package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"weather-card/config"
	"weather-card/internal/api"
	"weather-card/internal/cache"
	"weather-card/internal/clock"
	"weather-card/internal/collector"
	"weather-card/internal/location"
	"weather-card/internal/metrics"
	"weather-card/internal/mqtt"
	"weather-card/internal/storage"
	"weather-card/internal/sunrise"
	"weather-card/internal/widget"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "weather-card",
		Short: "Taiwan weather card service",
		Long:  "Serves a weather card for Taiwanese cities with a day/night theme derived from the sunrise table",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(momentCmd())
	rootCmd.AddCommand(locationsCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(sunriseGenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// loadData builds the location index and the sunrise table, from the
// configured files when set and from the embedded datasets otherwise.
func loadData(cfg *config.Config) (*location.Index, *sunrise.Table, error) {
	var (
		locations *location.Index
		table     *sunrise.Table
		err       error
	)

	if cfg.Widget.LocationsFile != "" {
		locations, err = location.LoadFile(cfg.Widget.LocationsFile)
	} else {
		locations, err = location.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load locations: %w", err)
	}

	if cfg.Widget.SunriseFile != "" {
		table, err = sunrise.LoadFile(cfg.Widget.SunriseFile)
	} else {
		table, err = sunrise.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load sunrise table: %w", err)
	}

	for _, rec := range locations.All() {
		if !table.Has(rec.SunriseCityName) {
			log.Warn().Str("city", rec.CityName).Str("sunrise_city", rec.SunriseCityName).
				Msg("city has no sunrise data, its moment will be unknown")
		}
	}

	return locations, table, nil
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Store, func(), error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemory(), func() {}, nil
	}

	r := cache.NewRedis(cache.RedisConfig{
		Address:  cfg.Redis.Address,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   "weather-card:",
	})
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
	}
	log.Info().Str("address", cfg.Redis.Address).Msg("redis cache connected")
	return r, func() { r.Close() }, nil
}

type app struct {
	widget  *widget.Service
	cache   cache.Store
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, settings widget.Settings, clk clock.Clock) (*app, error) {
	tz, err := cfg.Widget.Location()
	if err != nil {
		return nil, err
	}

	locations, table, err := loadData(cfg)
	if err != nil {
		return nil, err
	}

	store, closeCache, err := newCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	provider, err := api.NewWeatherProvider(cfg.Weather, store)
	if err != nil {
		closeCache()
		return nil, err
	}

	svc, err := widget.NewService(widget.Config{
		Locations:   locations,
		Moments:     sunrise.NewResolver(table, tz),
		Weather:     provider,
		Settings:    settings,
		Clock:       clk,
		DefaultCity: cfg.Widget.DefaultCity,
	})
	if err != nil {
		closeCache()
		return nil, err
	}

	return &app{widget: svc, cache: store, closers: []func(){closeCache}}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the weather card service",
		Long:  "Start the collector, API server, and MQTT publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := storage.NewDatabase(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()
			log.Info().Str("path", cfg.Database.Path).Msg("database opened")

			a, err := newApp(ctx, cfg, db, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics.Init()

			var publisher collector.CardPublisher
			mqttPublisher, err := mqtt.NewPublisher(mqtt.PublisherConfig{
				Broker:      cfg.MQTT.Broker,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				Enabled:     cfg.MQTT.Enabled,
			})
			if err != nil {
				log.Warn().Err(err).Msg("MQTT connection failed")
			} else {
				publisher = mqttPublisher
			}

			coll := collector.NewCollector(collector.CollectorConfig{
				Source:    a.widget,
				Database:  db,
				Publisher: publisher,
				Interval:  cfg.Collector.Interval,
				Retention: cfg.Collector.Retention,
				Enabled:   cfg.Collector.Enabled,
			})

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := coll.Start(ctx); err != nil {
					log.Error().Err(err).Msg("collector error")
				}
			}()

			var server *api.Server
			if cfg.API.Enabled {
				server = api.NewServer(api.ServerConfig{
					Port:       cfg.API.Port,
					Collector:  coll,
					Widget:     a.widget,
					Database:   db,
					Cache:      a.cache,
					Config:     cfg,
					ConfigPath: configFile,
				})

				go func() {
					if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Msg("API server error")
					}
				}()
			}

			log.Info().Str("city", a.widget.CurrentCity().CityName).Msg("weather card started, press Ctrl+C to stop")

			<-sigChan
			log.Info().Msg("shutting down")
			cancel()

			if server != nil {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
				defer stop()
				if err := server.Stop(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("API server shutdown failed")
				}
			}
			coll.Stop()

			return nil
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func momentCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "moment [city]",
		Short: "Print whether it is day or night in a city",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var clk clock.Clock = clock.System{}
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
				clk = clock.Fixed(t)
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg, nil, clk)
			if err != nil {
				return err
			}
			defer a.Close()

			city := ""
			if len(args) == 1 {
				city = args[0]
			}

			result, err := a.widget.Moment(city)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "evaluate at this RFC3339 instant instead of now")
	return cmd
}

func locationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locations",
		Short: "List the supported cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			locations, table, err := loadData(cfg)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CITY\tSTATION\tFORECAST\tSUNRISE\tDATA")
			for _, rec := range locations.All() {
				data := "yes"
				if !table.Has(rec.SunriseCityName) {
					data = "no"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					rec.CityName, rec.Stations.Observation, rec.Stations.Forecast, rec.SunriseCityName, data)
			}
			return tw.Flush()
		},
	}
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [city]",
		Short: "Fetch the weather card of a city once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			a, err := newApp(cmd.Context(), cfg, nil, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			city := ""
			if len(args) == 1 {
				city = args[0]
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			card, err := a.widget.Card(ctx, city)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), card)
		},
	}
}

func sunriseGenCmd() *cobra.Command {
	var from, to, out string

	cmd := &cobra.Command{
		Use:   "sunrise-gen",
		Short: "Compute a sunrise/sunset table for the supported cities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			tz, err := cfg.Widget.Location()
			if err != nil {
				return err
			}

			start, err := time.ParseInLocation(sunrise.DateLayout, from, tz)
			if err != nil {
				return fmt.Errorf("invalid --from %q: %w", from, err)
			}
			end, err := time.ParseInLocation(sunrise.DateLayout, to, tz)
			if err != nil {
				return fmt.Errorf("invalid --to %q: %w", to, err)
			}

			var locations *location.Index
			if cfg.Widget.LocationsFile != "" {
				locations, err = location.LoadFile(cfg.Widget.LocationsFile)
			} else {
				locations, err = location.Default()
			}
			if err != nil {
				return fmt.Errorf("failed to load locations: %w", err)
			}

			var sites []sunrise.Site
			for _, rec := range locations.All() {
				if !rec.HasCoordinates() {
					log.Warn().Str("city", rec.CityName).Msg("no coordinates, skipped")
					continue
				}
				sites = append(sites, sunrise.Site{
					Name:      rec.SunriseCityName,
					Latitude:  rec.Latitude,
					Longitude: rec.Longitude,
				})
			}

			generated, err := sunrise.Generate(sites, start, end, tz)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := sunrise.Write(w, generated); err != nil {
				return err
			}

			log.Info().Int("locations", len(generated)).Str("from", from).Str("to", to).Msg("sunrise table generated")
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}
