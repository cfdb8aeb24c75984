package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jose-zothner-meyer/commodity-tracker/internal/app"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/config"
	"github.com/jose-zothner-meyer/commodity-tracker/pkg/logger"
)

var (
	serverPort int
	serverHost string
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the commodity tracker server",
	Long: `Start the commodity tracker server.

This starts all components:
• REST API for instruments, price history and update triggers
• NATS task worker consuming enqueued update tasks
• Cron scheduler enqueuing periodic update sweeps
• Redis latest-price cache
• MySQL storage for instruments, observations and the run ledger

Examples:
  commodity-tracker server                    # Start with default settings
  commodity-tracker server --port 9090       # Start on custom port
  commodity-tracker server --log-level debug # Enable debug logging`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "server port")
	serverCmd.Flags().StringVarP(&serverHost, "host", "H", "", "server host")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	log.Info("Starting commodity tracker server")

	application := app.New(cfg, log)
	if err := application.Initialize(); err != nil {
		log.WithError(err).Error("Failed to initialize application")
		return err
	}
	if err := application.Start(); err != nil {
		log.WithError(err).Error("Failed to start application")
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-interrupt
	log.WithField("signal", sig.String()).Info("Shutdown signal received")

	application.Stop()
	return nil
}

// loadConfigAndLogger is the shared command preamble: dotenv, env config,
// flag overrides, logger.
func loadConfigAndLogger() (*config.Config, *logrus.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Printf("Note: .env file not loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
