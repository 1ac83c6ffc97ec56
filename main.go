package main

import (
	"flag"
	"fmt"
	"log"
)

// Version is set at build time via -ldflags
var Version = "dev"

const defaultConfigPath = "config.yaml"

var (
	configFile = flag.String("config", defaultConfigPath, "Path to configuration file")
	httpPort   = flag.Int("http-port", 0, "Override HTTP server port from config")
	fetchPlace = flag.String("fetch", "", "Fetch a boundary by place name, write GeoJSON, and exit")
	outputFile = flag.String("output", "-", "Output file for --fetch mode (- for stdout)")
	quality    = flag.String("quality", "", "Simplification quality override: lossless, high, medium, low, minimal")
)

func main() {
	flag.Parse()
	fmt.Printf("geoshift version: %s\n", Version)

	app := NewApp()
	app.ApplyOptions(AppOptions{
		ConfigFile: *configFile,
		HTTPPort:   *httpPort,
		FetchPlace: *fetchPlace,
		OutputFile: *outputFile,
		Quality:    *quality,
	})

	if err := app.LoadConfig(); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if app.FetchPlace != "" {
		if err := app.RunFetch(); err != nil {
			log.Fatalf("Fetch error: %v", err)
		}
		return
	}

	if err := app.RunServer(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
