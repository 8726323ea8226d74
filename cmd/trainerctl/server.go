package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/config"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/logging"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/endpoints"
)

func defaultBindAddress() string {
	if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
		return addr
	}
	return "0.0.0.0"
}

func defaultPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8001"
}

func defaultPortInt() int {
	if p, err := strconv.Atoi(defaultPort()); err == nil {
		return p
	}
	return 8001
}

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the trainer API server",
	Long: `Run the trainer API server.

To run the server requires the environment variables TRAINER_SECRET_KEY
and DATABASE_URL.

By default, database migrations are run on startup. Use --no-migrate to skip.`,
	Run: func(cmd *cobra.Command, args []string) {
		secret := os.Getenv("TRAINER_SECRET_KEY")
		if secret == "" {
			fmt.Fprintln(os.Stderr, "TRAINER_SECRET_KEY environment variable is required")
			os.Exit(1)
		}
		if db.URL() == "" {
			fmt.Fprintln(os.Stderr, "DATABASE_URL environment variable is required")
			os.Exit(1)
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer func() { _ = logger.Sync() }()

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			logger.Info("running database migrations")
			if err := runMigrations(); err != nil {
				logger.Fatal("migration failed", zap.Error(err))
			}
		}

		database, err := db.Connect(db.Config{})
		if err != nil {
			logger.Fatal("unable to connect to database", zap.Error(err))
		}

		host, _ := cmd.Flags().GetString("bind-address")
		port, _ := cmd.Flags().GetString("port")
		s, err := server.NewServer(cfg, server.Options{
			DB:        database,
			SecretKey: []byte(secret),
			Logger:    logger,
			Host:      host,
			Port:      port,
		})
		if err != nil {
			logger.Fatal("unable to create server", zap.Error(err))
		}
		endpoints.RegisterAll(s)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("running server", zap.String("address", fmt.Sprintf("http://%s:%s", host, port)))
		if err := s.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal("server stopped", zap.Error(err))
		}
		logger.Info("server stopped")
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringP("port", "p", defaultPort(), "server listen port")
	serverCmd.Flags().StringP("bind-address", "b", defaultBindAddress(), "server bind address")
	serverCmd.Flags().Bool("no-migrate", false, "skip running database migrations on start")
}
