package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kwv/geoshift/shape"
)

// App encapsulates the service state and dependencies.
type App struct {
	Config    *shape.Config
	Store     *shape.Store
	Publisher *shape.Publisher

	// CLI flags (effectively dependencies)
	ConfigFile string
	HTTPPort   int
	FetchPlace string
	OutputFile string
	Quality    string
}

// AppOptions carries parsed CLI flags into the App.
type AppOptions struct {
	ConfigFile string
	HTTPPort   int
	FetchPlace string
	OutputFile string
	Quality    string
}

// NewApp creates a new App instance.
func NewApp() *App {
	return &App{Store: shape.NewStore()}
}

// ApplyOptions applies CLI options to the App instance.
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.HTTPPort = opts.HTTPPort
	a.FetchPlace = opts.FetchPlace
	a.OutputFile = opts.OutputFile
	a.Quality = opts.Quality
}

// LoadConfig loads the YAML config, falling back to defaults when the
// default config path does not exist. Flags override file values.
func (a *App) LoadConfig() error {
	cfg, err := shape.LoadConfig(a.ConfigFile)
	if err != nil {
		if a.ConfigFile == defaultConfigPath {
			log.Printf("No config file at %s, using defaults", a.ConfigFile)
			cfg = shape.DefaultConfig()
		} else {
			return err
		}
	}
	if a.HTTPPort != 0 {
		cfg.Server.Port = a.HTTPPort
	}
	if a.Quality != "" {
		cfg.Simplify.Quality = shape.Quality(a.Quality)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	a.Config = cfg
	return nil
}

// ConnectPublisher attaches an MQTT placement publisher when a broker is
// configured. A broker that cannot be reached is logged and skipped; the
// service is fully functional without it.
func (a *App) ConnectPublisher() {
	client, err := shape.ConnectMQTT(a.Config.MQTT)
	if err != nil {
		log.Printf("MQTT disabled: %v", err)
		return
	}
	if client == nil {
		return
	}
	a.Publisher = shape.NewPublisher(client, a.Config.MQTT.Prefix)
	log.Printf("Publishing placements to %s with prefix %q", a.Config.MQTT.Broker, a.Config.MQTT.Prefix)
}

// publishPlacement pushes a committed placement if publishing is enabled.
// Publish failures are logged, never surfaced to the committing request.
func (a *App) publishPlacement(s *shape.Shape) {
	if a.Publisher == nil || !a.Publisher.Enabled() {
		return
	}
	if err := a.Publisher.PublishPlacement(shape.NewPlacement(s)); err != nil {
		log.Printf("Publishing placement for %s: %v", s.ID, err)
	}
}

// RunFetch is the one-shot import mode: fetch a boundary by place name,
// simplify it per config, and write it as GeoJSON to the output file (or
// stdout when the output is "-").
func (a *App) RunFetch() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	geom, err := shape.FetchBoundary(ctx, a.FetchPlace, shape.WithEndpoint(a.Config.Overpass.URL))
	if err != nil {
		return err
	}
	log.Printf("Fetched %q: %d points", a.FetchPlace, shape.CountPoints(geom))

	simplified, err := shape.SimplifyQuality(geom, a.Config.Simplify.Quality, a.Config.Simplify.Budgets)
	if err != nil {
		return err
	}
	if n := shape.CountPoints(simplified); n != shape.CountPoints(geom) {
		log.Printf("Simplified to %d points (quality=%s)", n, a.Config.Simplify.Quality)
	}

	s := &shape.Shape{ID: a.FetchPlace, Name: a.FetchPlace, Coordinates: simplified}
	feature, err := shape.ShapeFeature(s)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(feature, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding feature: %w", err)
	}
	data = append(data, '\n')

	if a.OutputFile == "-" || a.OutputFile == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(a.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", a.OutputFile, err)
	}
	log.Printf("Wrote %s", a.OutputFile)
	return nil
}

// RunServer starts the HTTP API and blocks until SIGINT/SIGTERM.
func (a *App) RunServer() error {
	a.ConnectPublisher()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           newHTTPServer(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("HTTP server listening on :%d", a.Config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
