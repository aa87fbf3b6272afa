package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"sandboxdemo/internal/app"
	"sandboxdemo/internal/shared/config"
	"sandboxdemo/internal/shared/logger"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "demosrv.ini")

	// 1. Load the .ini behavior configuration on top of the defaults.
	cfg := config.Default()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 2. Initialize the logging system.
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 3. Create the server.
	appServer, err := app.New(cfg, *configDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}

	// 4. Release the listener and drain handlers on SIGINT/SIGTERM.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Info().Str("signal", sig.String()).Msg("Signal received, shutting down...")
		appServer.Stop()
	}()

	// 5. Run until stopped. A failed port bind is fatal.
	if err := appServer.Run(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
