package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hlsfeed/internal/api"
	"hlsfeed/internal/config"
	"hlsfeed/internal/controller"
	"hlsfeed/internal/logger"
	"hlsfeed/internal/sink"
)

func main() {
	listenAddr := flag.String("l", ":8080", "HTTP listen address for the stats endpoint")
	logLevel := flag.String("L", "info", "Log level (error, warn, info, debug)")
	configFile := flag.String("c", "", "Path to the JSON config file")
	manifestURL := flag.String("u", "", "Manifest URL (overrides the config file)")
	flag.Parse()

	log := logger.NewLogger(*logLevel)
	log.Infof("Starting hlsfeed...")

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Errorf("Failed to load configuration: %v", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if *manifestURL != "" {
		cfg.ManifestURL = *manifestURL
	}

	// The simulated sink stands in for a real media pipeline; appends cover
	// a nominal segment duration of media time.
	memSink := sink.NewMemSink(log, 10)

	ctrl, err := controller.New(log, &cfg, memSink, memSink)
	if err != nil {
		log.Errorf("Failed to build controller: %v", err)
		os.Exit(1)
	}

	if err := ctrl.Load(context.Background()); err != nil {
		log.Errorf("Failed to load stream: %v", err)
		os.Exit(1)
	}

	if err := ctrl.Play(); err != nil {
		log.Errorf("Failed to start playback: %v", err)
		ctrl.Destroy()
		os.Exit(1)
	}

	server := &http.Server{
		Addr:    *listenAddr,
		Handler: api.New(ctrl, log),
	}

	go func() {
		log.Infof("Stats endpoint on %s", *listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", *listenAddr, err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Infof("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctrl.Destroy()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		os.Exit(1)
	}

	log.Infof("Exited gracefully")
}
