package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"olt-collector/internal/config"
	"olt-collector/internal/database"
	"olt-collector/internal/domain"
	"olt-collector/internal/logger"
	"olt-collector/internal/metrics"
	"olt-collector/internal/normalize"
	"olt-collector/internal/repository"
	"olt-collector/internal/scheduler"
	"olt-collector/internal/services"

	"github.com/gookit/event"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Application struct {
	logger       *logger.ZLogXAdapter
	db           *database.PostgresDB
	config       *config.Config
	services     *Services
	scheduler    *scheduler.Scheduler
	registry     *prometheus.Registry
	eventManager *event.Manager
}

type Services struct {
	ConfigSync *services.ConfigSyncService
	Poll       *services.PollService
}

// main initializes and runs the collector
func main() {
	app, err := NewApplication()
	if err != nil {
		log.Fatalf("Falha ao inicializar aplicação: %v", err)
	}
	defer app.Close()

	if err := app.Run(); err != nil {
		app.Close()
		log.Fatalf("Erro da aplicação: %v", err)
	}
}

// NewApplication creates a new application instance with all dependencies
func NewApplication() (*Application, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Aviso: arquivo .env não encontrado: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar configuração: %w", err)
	}

	logger, err := initializeLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("falha ao inicializar logger: %w", err)
	}

	statusTable, err := normalize.LoadStatusTable(cfg.StatusTablePath)
	if err != nil {
		return nil, fmt.Errorf("falha ao carregar tabela de status: %w", err)
	}

	targets, err := services.NewTargets(cfg.OLTs, statusTable, logger)
	if err != nil {
		return nil, fmt.Errorf("falha ao preparar OLTs: %w", err)
	}

	db, err := initializeDatabase(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("falha ao inicializar banco de dados: %w", err)
	}

	eventManager := event.NewManager("collector")
	registry := initializeMetrics(eventManager)

	services := initializeServices(cfg, db, eventManager, logger)

	sched, err := initializeScheduler(cfg, targets, services.Poll, eventManager, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao inicializar agendador: %w", err)
	}

	app := &Application{
		config:       cfg,
		logger:       logger,
		db:           db,
		services:     services,
		scheduler:    sched,
		registry:     registry,
		eventManager: eventManager,
	}

	return app, nil
}

// Run syncs the OLT table, starts the pollers and blocks until a signal arrives
func (app *Application) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	syncCtx, syncCancel := context.WithTimeout(ctx, app.config.StoreTimeout)
	err := app.services.ConfigSync.Sync(syncCtx, app.config.OLTs)
	syncCancel()
	if err != nil {
		return err
	}

	if app.config.MetricsListen != "" {
		go func() {
			if err := metrics.Serve(ctx, app.config.MetricsListen, app.registry, app.logger); err != nil {
				app.logger.WithError(err).Error("Servidor de métricas encerrado com erro")
			}
		}()
	}

	app.logStartupMessages()
	app.scheduler.Start(ctx)

	<-ctx.Done()
	app.logger.Info("Sinal de encerramento recebido, aguardando ciclos em andamento")
	app.scheduler.Stop()

	return nil
}

// Close performs cleanup operations
func (app *Application) Close() {
	if app.db != nil {
		app.db.Close()
		app.db = nil
	}
}

// logStartupMessages displays startup information
func (app *Application) logStartupMessages() {
	app.logger.Info("📡 Coletor de ONTs iniciado")
	app.logger.Infof("🛰️ %d OLTs configuradas", len(app.config.OLTs))
	app.logger.Info("🗄️ Conectado ao banco de dados")
	if app.config.MetricsListen != "" {
		app.logger.Infof("📈 Métricas em %s%s", app.config.MetricsListen, metrics.MetricsPath)
	}
}

// initializeLogger creates and configures the application logger
func initializeLogger(logLevel string, jsonFormat bool) (*logger.ZLogXAdapter, error) {
	logConfig := &logger.Config{
		Level:          logLevel,
		DateTimeLayout: "02/01/2006 15:04:05",
		Colored:        !jsonFormat,
		JSONFormat:     jsonFormat,
		UseEmoji:       !jsonFormat,
	}

	log, err := logger.New(logConfig)
	if err != nil {
		return nil, err
	}

	return &logger.ZLogXAdapter{ZLogX: log}, nil
}

// initializeDatabase connects to the database and applies the schema
func initializeDatabase(cfg *config.Config, logger domain.Logger) (*database.PostgresDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.DatabaseDSN, cfg.DBMaxConns)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	if !cfg.Migrate {
		return db, nil
	}

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer migrateCancel()

	if err := db.Migrate(migrateCtx, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}

	return db, nil
}

// initializeMetrics creates the metrics registry fed by the event bus
func initializeMetrics(eventManager *event.Manager) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics.New(registry).RegisterEventListeners(eventManager)
	return registry
}

// initializeServices creates all application services with their dependencies
func initializeServices(cfg *config.Config, db database.DB, eventManager *event.Manager, logger *logger.ZLogXAdapter) *Services {
	oltRepository := repository.NewOltRepository(db)
	ontRepository := repository.NewOntRepository(db)
	powerRepository := repository.NewPowerRepository(db)

	return &Services{
		ConfigSync: services.NewConfigSyncService(oltRepository, logger),
		Poll: services.NewPollService(
			ontRepository,
			powerRepository,
			eventManager,
			logger,
			cfg.StoreTimeout,
			cfg.StaleAfterCycles,
		),
	}
}

// initializeScheduler creates one poll job per configured OLT
func initializeScheduler(
	cfg *config.Config,
	targets []*services.Target,
	poll *services.PollService,
	eventManager *event.Manager,
	logger *logger.ZLogXAdapter,
) (*scheduler.Scheduler, error) {
	jobs := make([]scheduler.Job, 0, len(targets))
	for _, target := range targets {
		jobs = append(jobs, scheduler.Job{
			OLT: target.OLT,
			Poll: func(ctx context.Context, at time.Time) domain.CycleResult {
				return poll.Poll(ctx, target, at)
			},
		})
	}

	return scheduler.New(jobs, eventManager, logger, scheduler.Options{
		PollOnStart: cfg.PollOnStart,
	})
}
