package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/annotation"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/audit"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/authenticator/authn_jwt"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/concepts"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/config"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/dataset"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/deployment"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/jobs"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/media"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/metrics"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelcache"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/modelfiles"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/projectgroups"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/middleware"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store"
	storegorm "github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/store/gorm"
)

// Version is reported by /api/version/
var Version = "0.1.0"

// Options holds what a Server needs beyond its configuration
type Options struct {
	DB *gorm.DB
	// SecretKey signs API tokens
	SecretKey []byte
	Logger    *zap.Logger
	Host      string
	Port      string
}

// Server holds the stores, services and router of the trainer API
type Server struct {
	Config *config.TrainerConfig
	DB     *gorm.DB
	Store  store.Store
	Router *mux.Router
	Logger *zap.Logger

	Authenticators *authenticator.Registry
	Tokens         *authn_jwt.Authenticator
	JWTMiddleware  *middleware.JWTAuthenticator
	Metrics        *prometheus.Registry

	Media       media.Root
	Models      *modelcache.Cache
	Jobs        *jobs.Runner
	Annotations *annotation.Service
	Datasets    *dataset.Service
	Exports     *export.Service
	Deployments *deployment.Service
	ModelFiles  *modelfiles.Service
	Reports     *metrics.Service
	Concepts    *concepts.Service
	Groups      *projectgroups.Service

	srv *http.Server
}

// NewServer wires every service of the trainer against one database
func NewServer(cfg *config.TrainerConfig, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DB == nil {
		return nil, errors.New("server requires a database")
	}

	st := storegorm.New(opts.DB)
	root := media.Root(cfg.MediaRoot)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	models, err := modelcache.New(modelcache.Options{
		Store:            st,
		MaxModels:        cfg.MaxMedCATModels,
		MedCATConfigFile: cfg.MedCATConfigFile,
		MediaRoot:        root,
		Logger:           logger.Named("modelcache"),
		Metrics:          modelcache.NewMetrics(reg),
	})
	if err != nil {
		return nil, err
	}

	runner := jobs.New(st, jobs.Options{
		Workers: cfg.JobWorkers,
		Logger:  logger.Named("jobs"),
		Metrics: jobs.NewMetrics(reg),
	})

	annotations := annotation.NewService(st, models, root, logger.Named("annotation"))
	annotations.EnableBackgroundPrepare(runner)
	exports := export.NewService(st, root, cfg.LargeCUIListThreshold, logger.Named("export"))

	audit.SetErrorLogger(logger)

	registry := authenticator.NewRegistry()
	registry.Register(authn.New(st))
	tokens, err := authn_jwt.New(st, authn_jwt.Config{Secret: opts.SecretKey, TTL: cfg.TokenTTL()})
	if err != nil {
		return nil, err
	}
	registry.Register(tokens)
	for _, name := range []string{authn.Name, authn_jwt.Name} {
		if err := registry.Enable(name); err != nil {
			return nil, err
		}
	}

	router := mux.NewRouter()
	srv := &http.Server{
		Handler: handlers.LoggingHandler(os.Stdout, router),
		Addr:    opts.Host + ":" + opts.Port,
		// Uploads of datasets and deployments can be large
		WriteTimeout: 5 * time.Minute,
		ReadTimeout:  5 * time.Minute,
	}

	return &Server{
		Config: cfg,
		DB:     opts.DB,
		Store:  st,
		Router: router,
		Logger: logger,

		Authenticators: registry,
		Tokens:         tokens,
		JWTMiddleware:  middleware.NewJWTAuthenticator(tokens),
		Metrics:        reg,

		Media:       root,
		Models:      models,
		Jobs:        runner,
		Annotations: annotations,
		Datasets: dataset.NewService(st, root, dataset.Limits{
			MaxRows:     cfg.MaxDatasetSize,
			UniqueNames: cfg.UniqueDocNames(),
		}, logger.Named("dataset")),
		Exports:     exports,
		Deployments: deployment.NewService(st, root, exports, logger.Named("deployment")),
		ModelFiles:  modelfiles.NewService(st, root, models, logger.Named("modelfiles")),
		Reports:     metrics.NewService(st, root, exports, annotations, runner, logger.Named("metrics")),
		Concepts:    concepts.NewService(st, models, runner, logger.Named("concepts")),
		Groups:      projectgroups.NewService(logger.Named("projectgroups")),

		srv: srv,
	}, nil
}

// Start serves HTTP together with the job workers and the MedCAT config
// watcher until ctx is cancelled or one of them fails.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Jobs.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover interrupted tasks: %w", err)
	}
	if s.Config.ResubmitAllOnStartup {
		n, err := s.Annotations.ResubmitAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to resubmit validated documents: %w", err)
		}
		s.Logger.Info("resubmitted validated documents", zap.Int("documents", n))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Jobs.Run(ctx)
	})
	g.Go(func() error {
		if err := s.Models.Watch(ctx); err != nil {
			s.Logger.Error("model config watcher stopped", zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		err := s.srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
