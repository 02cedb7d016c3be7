package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/senomas/librarygql/graph"
	"github.com/urfave/cli/v2"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  graph.Config.Application,
		Usage: "GraphQL library catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mongodb-uri",
				Usage:   "MongoDB connection string",
				EnvVars: []string{"MONGODB_URI"},
			},
			&cli.StringFlag{
				Name:    "mongodb-database",
				Usage:   "MongoDB database, defaults to the one named in the connection string",
				EnvVars: []string{"MONGODB_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "postgres",
				Usage:   "postgres DSN, used when no MongoDB URI is set",
				EnvVars: []string{"DB_POSTGRES"},
			},
			&cli.StringFlag{
				Name:    "sqlite",
				Usage:   "sqlite database file, used when neither MongoDB nor postgres is set",
				EnvVars: []string{"DB_SQLITE"},
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				Usage:    "HMAC secret for signing tokens",
				EnvVars:  []string{"JWT_SECRET"},
				Required: true,
			},
			&cli.DurationFlag{
				Name:    "token-ttl",
				Usage:   "token lifetime, 0 issues tokens without expiry",
				EnvVars: []string{"TOKEN_TTL"},
			},
			&cli.BoolFlag{
				Name:    "logger",
				Usage:   "log every SQL statement",
				EnvVars: []string{"LOGGER"},
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "debug log level",
			},
			&cli.BoolFlag{
				Name:  "populate",
				Usage: "seed sample authors and books on startup",
			},
		},
		Action: serve,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func serve(c *cli.Context) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if c.Bool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := graph.Config
	cfg.MongoURI = c.String("mongodb-uri")
	cfg.MongoDatabase = c.String("mongodb-database")
	cfg.PostgresDSN = c.String("postgres")
	cfg.SQLitePath = c.String("sqlite")
	cfg.TokenSecret = c.String("jwt-secret")
	cfg.TokenTTL = c.Duration("token-ttl")
	cfg.Logger = c.Bool("logger")
	cfg.Populate = c.Bool("populate")

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	credentials, err := graph.NewCredentials(cfg.TokenSecret, cfg.TokenTTL, cfg.BcryptCost)
	if err != nil {
		return err
	}
	store, err := graph.Setup(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "setup store")
	}
	ds := graph.NewDataSource(store, credentials)
	schema, err := graph.NewSchema()
	if err != nil {
		_ = ds.Close(context.Background())
		return errors.Wrap(err, "build schema")
	}

	h := graph.NewHandler(ds, schema)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Msgf("Server ready at http://localhost:%s/", cfg.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		if werr := h.Shutdown(shutdownCtx); werr != nil {
			log.Warn().Err(werr).Msg("websocket shutdown")
		}
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = ds.Close(context.Background())
		return err
	}
	return ds.Close(context.Background())
}
