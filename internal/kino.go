package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/kinovod/kino/internal/api"
	"github.com/kinovod/kino/internal/artifacts"
	"github.com/kinovod/kino/internal/database"
	"github.com/kinovod/kino/internal/event"
	"github.com/kinovod/kino/internal/ffmpeg"
	"github.com/kinovod/kino/internal/pipeline"
	"github.com/kinovod/kino/pkg/logger"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}
)

// Kino represents the top-level object for the server, and is responsible
// for initialising the database, stores, services and event handling.
type kinoImpl struct {
	eventBus event.EventCoordinator
	config   KinoConfig
	db       database.Manager
	paths    artifacts.MediaPaths

	dataOrchestrator *dataOrchestrator

	pipelineService pipeline.Service
	activityService *activityService
	restGateway     *api.RestGateway
}

func New(config KinoConfig) *kinoImpl {
	log.Emit(logger.DEBUG, "Bootstrapping Kino services using config: %#v\n", config)

	kino := &kinoImpl{
		eventBus: event.New(),
		config:   config,
		db:       database.New(),
		paths:    artifacts.NewMediaPaths(config.getMediaDir()),
	}

	kino.dataOrchestrator = newDataOrchestrator(kino.db)
	kino.pipelineService = pipeline.New(
		config.Pipeline,
		kino.eventBus,
		kino.dataOrchestrator,
		ffmpeg.NewProber(config.Ffmpeg),
		ffmpeg.NewRenditioner(config.Ffmpeg, config.EncodeTimeout),
		ffmpeg.NewThumbnailer(config.Ffmpeg, config.EncodeTimeout),
		kino.paths,
	)

	reconciler := artifacts.NewReconciler(kino.paths)
	kino.restGateway = api.NewRestGateway(
		&config.RestConfig,
		kino.pipelineService,
		reconciler,
		kino.eventBus,
		kino.paths,
		kino.dataOrchestrator,
	)
	kino.activityService = newActivityService(kino.restGateway, kino.eventBus)

	return kino
}

// Run brings up the database connection and all services. This function
// will not return until Kino is stopped; to stop Kino the provided context
// must be cancelled. Errors from which Kino cannot recover also cause a
// full shutdown.
func (kino *kinoImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel()
	}

	log.Emit(logger.NEW, "Connecting to database...\n")
	if err := kino.db.Connect(kino.config.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	wg := &sync.WaitGroup{}
	kino.spawnAsyncService(ctx, wg, kino.pipelineService, "pipeline-service", crashHandler)
	kino.spawnAsyncService(ctx, wg, kino.activityService, "activity-service", crashHandler)
	kino.spawnAsyncService(ctx, wg, kino.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Kino services spawned!\n")

	wg.Wait()
	return nil
}

// spawnAsyncService will run the provided function/service as its own
// go-routine, ensuring that the Kino service waitgroup is updated correctly.
func (kino *kinoImpl) spawnAsyncService(context context.Context, wg *sync.WaitGroup, service RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)

	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		defer wg.Done()
		if err := service.Run(context); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}
