package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/internal/simulator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	port := flag.Int("port", 9090, "simulator server port")
	logLevel := flag.String("log-level", "info", "log level")
	services := flag.String("services", "", "comma-separated service names to pre-create")
	pattern := flag.String("pattern", "steady", "initial load pattern for pre-created services")
	flag.Parse()

	logger.Setup(*logLevel, "development")
	logger.Info("Starting load simulator")

	sim := simulator.New(simulator.Config{
		Port: *port,
	})

	for _, name := range strings.Split(*services, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		sim.GetOrCreateService(name).SetPattern(simulator.ParsePattern(*pattern))
	}

	if err := sim.Start(); err != nil {
		return fmt.Errorf("failed to start simulator: %w", err)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down simulator")
	return sim.Stop()
}
