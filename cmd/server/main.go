package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Ramsey-B/laurel/config"
	recordrepo "github.com/Ramsey-B/laurel/internal/repositories/record"
	rulesetrepo "github.com/Ramsey-B/laurel/internal/repositories/ruleset"
	verificationrepo "github.com/Ramsey-B/laurel/internal/repositories/verification"
	"github.com/Ramsey-B/laurel/pkg/confidence"
	"github.com/Ramsey-B/laurel/pkg/database"
	"github.com/Ramsey-B/laurel/pkg/events"
	"github.com/Ramsey-B/laurel/pkg/kafka"
	"github.com/Ramsey-B/laurel/pkg/logging"
	"github.com/Ramsey-B/laurel/pkg/matching"
	"github.com/Ramsey-B/laurel/pkg/middleware"
	"github.com/Ramsey-B/laurel/pkg/models"
	"github.com/Ramsey-B/laurel/pkg/pipeline"
	"github.com/Ramsey-B/laurel/pkg/processor"
	"github.com/Ramsey-B/laurel/pkg/redis"
	"github.com/Ramsey-B/laurel/pkg/routes/health"
	recordroutes "github.com/Ramsey-B/laurel/pkg/routes/record"
	rulesetroutes "github.com/Ramsey-B/laurel/pkg/routes/ruleset"
	verificationroutes "github.com/Ramsey-B/laurel/pkg/routes/verification"
	"github.com/Ramsey-B/laurel/pkg/rules"
	"github.com/Ramsey-B/laurel/pkg/startup"
	"github.com/Ramsey-B/laurel/pkg/tracing"
	"github.com/Ramsey-B/laurel/pkg/tracing/exporters"
)

// version is stamped at build time with -ldflags "-X main.version=<tag>".
var version = "dev"

// main wires the service together and hands the boot order to the startup
// graph: postgres, migrations, the optional redis cache and kafka producer,
// the rule registry, the pipeline, the consumers, then the HTTP listener.
// Shutdown walks the same graph in reverse so consumers drain before the
// producer and the database go away.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, zapLogger, err := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.PrettyLogs})
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to initialize tracing")
		os.Exit(1)
	}

	var (
		db               database.DB
		verificationRepo *verificationrepo.Repository
		rulesetRepo      *rulesetrepo.Repository
		recordRepo       *recordrepo.Repository
		redisClient      *redis.Client
		producer         *kafka.Producer
		emitter          *events.Emitter
		recordStore      redis.RecordSource
		pipelineSvc      *pipeline.Service
		claimsConsumer   *kafka.Consumer
		recordsConsumer  *kafka.Consumer
		echoServer       *echo.Echo
	)
	registry := rules.NewRegistry()

	startupSvc := startup.New(log, cfg.StartupMaxAttempts)

	startupSvc.Register(&startup.Hook{
		Name: "postgres",
		OnStart: func(ctx context.Context) error {
			var err error
			db, err = database.Connect(database.ConnectionConfig{
				Host:            cfg.DatabaseHost,
				Port:            cfg.DatabasePort,
				User:            cfg.DatabaseUserName,
				Password:        cfg.DatabasePassword,
				Name:            cfg.DatabaseName,
				SSLMode:         cfg.DatabaseSSLMode,
				MaxOpenConns:    cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
			}, log)
			if err != nil {
				return err
			}
			verificationRepo = verificationrepo.NewRepository(db, log)
			rulesetRepo = rulesetrepo.NewRepository(db, log)
			recordRepo = recordrepo.NewRepository(db, log)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})

	startupSvc.Register(&startup.Hook{
		Name:  "migrations",
		Needs: []string{"postgres"},
		OnStart: func(ctx context.Context) error {
			driver, err := migratepg.WithInstance(db.Unwrap().DB, &migratepg.Config{})
			if err != nil {
				return errors.Wrap(err, "failed to create migration driver")
			}
			svc := database.NewMigrationService(log, &database.MigrationConfig{
				FolderPath:   cfg.DatabaseMigrationFolderPath,
				AutoRollback: cfg.DatabaseMigrationAutoRollback,
			})
			return svc.Migrate(cfg.DatabaseName, driver)
		},
	})

	if cfg.RedisEnabled {
		startupSvc.Register(&startup.Hook{
			Name: "redis",
			OnStart: func(ctx context.Context) error {
				var err error
				redisClient, err = redis.NewClient(redis.Config{
					Host:     cfg.RedisHost,
					Port:     cfg.RedisPort,
					Password: cfg.RedisPassword,
					DB:       cfg.RedisDB,
				}, log)
				return err
			},
			OnStop: func(ctx context.Context) error {
				return redisClient.Close()
			},
		})
	}

	if cfg.KafkaProducerEnabled {
		startupSvc.Register(&startup.Hook{
			Name: "kafka-producer",
			OnStart: func(ctx context.Context) error {
				producer = kafka.NewProducer(kafka.ProducerConfig{
					Brokers:      cfg.KafkaBrokers,
					Topic:        cfg.KafkaEventsTopic,
					BatchSize:    cfg.KafkaBatchSize,
					BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
					RequiredAcks: cfg.KafkaRequiredAcks,
					Compression:  cfg.KafkaCompression,
				}, log)
				emitter = events.NewEmitter(producer, log)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return producer.Close()
			},
		})
	}

	startupSvc.Register(&startup.Hook{
		Name:  "rule-registry",
		Needs: []string{"migrations"},
		OnStart: func(ctx context.Context) error {
			sets, err := rulesetRepo.ListActive(ctx)
			if err != nil {
				return err
			}
			registry.Load(rules.Filter(sets, func(set *models.RuleSet, err error) {
				log.WithContext(ctx).WithError(err).Warnf("Skipping invalid rule set %s", set.DocumentType)
			}))
			log.WithContext(ctx).Infof("Loaded %d active rule sets", registry.Count())
			return nil
		},
	})

	pipelineNeeds := []string{"rule-registry"}
	if cfg.RedisEnabled {
		pipelineNeeds = append(pipelineNeeds, "redis")
	}
	if cfg.KafkaProducerEnabled {
		pipelineNeeds = append(pipelineNeeds, "kafka-producer")
	}
	startupSvc.Register(&startup.Hook{
		Name:  "pipeline",
		Needs: pipelineNeeds,
		OnStart: func(ctx context.Context) error {
			recordStore = recordRepo
			if redisClient != nil {
				recordStore = redis.NewRecordCache(recordRepo, redisClient, cfg.RecordCacheTTL, log)
			}

			engine := matching.NewEngine(recordStore, log, matching.Config{
				CandidateCap: cfg.MatchCandidateLimit,
			})
			scorer := confidence.NewScorer(confidence.Config{
				Weights: models.ScoreWeights{
					DBMatch:    cfg.DBMatchWeight,
					Format:     cfg.FormatWeight,
					Extraction: cfg.ExtractionWeight,
				},
				VerifyThreshold: cfg.VerifyThreshold,
				ReviewThreshold: cfg.ReviewThreshold,
			})

			var pipelineEvents pipeline.Events
			if emitter != nil {
				pipelineEvents = emitter
			}
			pipelineSvc = pipeline.NewService(registry, engine, scorer, verificationRepo, recordStore, pipelineEvents, log)
			return nil
		},
	})

	if cfg.KafkaConsumerEnabled {
		startupSvc.Register(&startup.Hook{
			Name:  "claims-consumer",
			Needs: []string{"pipeline"},
			OnStart: func(ctx context.Context) error {
				proc := processor.NewClaimProcessor(log, pipelineSvc)
				claimsConsumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       cfg.KafkaBrokers,
					Topic:         cfg.KafkaClaimsTopic,
					ConsumerGroup: cfg.KafkaConsumerGroup,
				}, log, proc.ProcessMessage)
				return claimsConsumer.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return claimsConsumer.Stop()
			},
		})
	}

	if cfg.KafkaRecordFeedEnabled {
		startupSvc.Register(&startup.Hook{
			Name:  "records-consumer",
			Needs: []string{"pipeline"},
			OnStart: func(ctx context.Context) error {
				proc := processor.NewRecordProcessor(log, recordStore, emitter)
				recordsConsumer = kafka.NewConsumer(kafka.ConsumerConfig{
					Brokers:       cfg.KafkaBrokers,
					Topic:         cfg.KafkaRecordsTopic,
					ConsumerGroup: cfg.KafkaRecordsGroup,
				}, log, proc.ProcessMessage)
				return recordsConsumer.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return recordsConsumer.Stop()
			},
		})
	}

	httpNeeds := []string{"pipeline"}
	if cfg.KafkaConsumerEnabled {
		httpNeeds = append(httpNeeds, "claims-consumer")
	}
	if cfg.KafkaRecordFeedEnabled {
		httpNeeds = append(httpNeeds, "records-consumer")
	}
	startupSvc.Register(&startup.Hook{
		Name:  "http",
		Needs: httpNeeds,
		OnStart: func(ctx context.Context) error {
			if err := registerDependencies(log, verificationRepo, rulesetRepo, recordRepo, registry, pipelineSvc, recordStore, emitter); err != nil {
				return err
			}

			e := echo.New()
			e.HideBanner = true
			e.HTTPErrorHandler = middleware.Error(log)
			e.Use(echomiddleware.Recover())
			e.Use(middleware.Logger(log))
			e.Use(otelecho.Middleware(cfg.AppName))
			e.Use(middleware.Context())

			e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

			var redisPinger health.Pinger
			if redisClient != nil {
				redisPinger = redisClient
			}
			checker := health.NewChecker(db.Unwrap(), redisPinger, version)
			if claimsConsumer != nil {
				checker.AddConsumer("claims-consumer", claimsConsumer)
			}
			if recordsConsumer != nil {
				checker.AddConsumer("records-consumer", recordsConsumer)
			}
			checker.RegisterRoutes(e)

			api := e.Group("/api/v1")
			verificationroutes.Register(api.Group("/verifications"))
			rulesetroutes.Register(api.Group("/rule-sets"))
			recordroutes.Register(api.Group("/records"))

			e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
			e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
			e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second
			e.Server.ReadHeaderTimeout = time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second
			e.Server.MaxHeaderBytes = cfg.MaxHeaderBytes
			echoServer = e

			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("HTTP listener stopped unexpectedly")
				}
			}()
			checker.SetReady(true)
			log.Infof("%s listening on :%d", cfg.AppName, cfg.Port)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return echoServer.Shutdown(ctx)
		},
	})

	if err := startupSvc.Start(ctx); err != nil {
		log.WithError(err).Error("Startup failed")
		shutdown(startupSvc, shutdownTracing, log)
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("Shutdown signal received")
	shutdown(startupSvc, shutdownTracing, log)
}

// registerDependencies fills the default container with everything the route
// handlers resolve per request. The emitter key is only present when the
// producer is configured; the review routes treat it as optional.
func registerDependencies(
	log ectologger.Logger,
	verificationRepo *verificationrepo.Repository,
	rulesetRepo *rulesetrepo.Repository,
	recordRepo *recordrepo.Repository,
	registry *rules.Registry,
	pipelineSvc *pipeline.Service,
	recordStore redis.RecordSource,
	emitter *events.Emitter,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return errors.Wrap(err, "failed to create DI container")
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, log); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*verificationrepo.Repository](container, verificationRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*rulesetrepo.Repository](container, rulesetRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*recordrepo.Repository](container, recordRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*rules.Registry](container, registry); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*pipeline.Service](container, pipelineSvc); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[recordroutes.Writer](container, recordStore); err != nil {
		return err
	}
	if emitter != nil {
		if err := ectoinject.RegisterInstance[*events.Emitter](container, emitter); err != nil {
			return err
		}
	}
	return nil
}

// initTracing installs the process tracer. OTLP export wins when enabled,
// otherwise the console exporter when tracing is on at all. The returned
// shutdown flushes buffered spans.
func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter
	switch {
	case cfg.OTLPEnabled:
		otlp, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create OTLP exporter")
		}
		exporter = otlp
	case cfg.TracingEnabled:
		exporter = &exporters.ConsoleExporter{}
	default:
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.AppName))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	return tp.Shutdown, nil
}

// shutdown tears the startup graph down in reverse and flushes tracing. It
// bounds the whole teardown so a wedged consumer cannot hang the process.
func shutdown(startupSvc *startup.Startup, shutdownTracing func(context.Context) error, log ectologger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := startupSvc.Stop(ctx); err != nil {
		log.WithError(err).Error("Shutdown finished with errors")
	}
	if err := shutdownTracing(ctx); err != nil {
		log.WithError(err).Error("Failed to flush tracing")
	}
}
