package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	bridgekit "github.com/glimte/bridgekit-go"
	"github.com/glimte/bridgekit-go/config"
	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/health"
	"github.com/glimte/bridgekit-go/internal/customer"
	"github.com/glimte/bridgekit-go/internal/product"
	"github.com/glimte/bridgekit-go/logging"
	"github.com/glimte/bridgekit-go/messaging"
	"github.com/glimte/bridgekit-go/metrics"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [customer|product]",
		Short: "Run a reference service",
		Long: `Runs the named service (or RUNNING_SERVICE) with its HTTP API, the sync
bridge endpoint and the configured broker bridge. The process exits through
the shutdown coordinator on SIGINT/SIGTERM or a fatal bridge error.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fallback := ""
			if len(args) == 1 {
				fallback = args[0] + "_service"
				flags.service = fallback
			}
			cfg, err := loadConfig(flags, fallback)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Options{
		Dir:       cfg.Log.Dir,
		File:      cfg.Service + ".log",
		Level:     cfg.Log.Level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})
	if err != nil {
		return err
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	recorder := metrics.New(cfg.Metrics.Namespace)
	registry := messaging.NewRegistry(messaging.WithRegistryLogger(logging.Component(logger.Logger, "registry")))

	client, err := bridgekit.New(*cfg,
		bridgekit.WithLogger(logger.Logger),
		bridgekit.WithRegistry(registry),
		bridgekit.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, recorder.Collect)

	var (
		required   []contracts.EventName
		afterStart = func() {}
	)
	switch cfg.Service {
	case config.CustomerService:
		afterStart, err = mountCustomer(ctx, client, r)
		if err != nil {
			return err
		}
		required = customer.Events()
	case config.ProductService:
		mountProduct(client, r)
	default:
		return fmt.Errorf("no reference service named %q", cfg.Service)
	}

	if err := client.Start(ctx, required...); err != nil {
		return err
	}
	afterStart()
	client.Routes(r)

	return client.Serve(r)
}

// mountCustomer opens the repository and mounts the customer API. The
// returned func registers the repository's shutdown handler; it runs after
// Start so that Mongo outlives the consumers.
func mountCustomer(ctx context.Context, client *bridgekit.Client, r chi.Router) (func(), error) {
	cfg := client.Config()
	logger := logging.Component(client.Logger(), "customer")

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	repo, err := customer.OpenMongo(dialCtx, cfg.Mongo.URI, cfg.Mongo.Database, logger)
	if err != nil {
		return nil, err
	}
	client.Health().Register(health.NewPingChecker("mongo", repo))

	svc := customer.NewService(repo,
		customer.NewTokenStore(client.Redis(), cfg.TokenTTL),
		customer.NewSigner(cfg.AppSecret, cfg.TokenTTL),
		customer.WithLogger(logger),
	)
	if err := customer.Register(client.Registry(), svc); err != nil {
		_ = repo.Close(context.Background())
		return nil, err
	}

	customer.NewAPI(svc, logger).Routes(r, cfg.ServicePrefix)
	r.NotFound(customer.NotFound)

	return func() {
		client.Coordinator().AddShutdownHandler("mongo", repo.Close)
	}, nil
}

func mountProduct(client *bridgekit.Client, r chi.Router) {
	cfg := client.Config()
	logger := logging.Component(client.Logger(), "product")

	opts := []product.Option{product.WithLogger(logger)}
	if client.Log() != nil {
		opts = append(opts, product.WithRequester(client.Log()))
	}
	svc := product.NewService(client, client, opts...)

	product.NewAPI(svc, logger).Routes(r, cfg.ServicePrefix)
	r.NotFound(product.NotFound)
}
