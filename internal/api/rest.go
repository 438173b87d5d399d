package api

import (
	"context"
	"sync"

	"github.com/kinovod/kino/internal/api/categories"
	"github.com/kinovod/kino/internal/api/movies"
	"github.com/kinovod/kino/internal/artifacts"
	"github.com/kinovod/kino/internal/event"
	"github.com/kinovod/kino/internal/http/websocket"
	"github.com/kinovod/kino/internal/pipeline"
	"github.com/kinovod/kino/pkg/logger"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logger.Get("API")

type (
	RestConfig struct {
		HostAddr string `yaml:"host_address" env:"API_HOST_ADDR" env-default:"0.0.0.0:8080"`
	}

	controller interface {
		SetRoutes(*echo.Group)
	}

	// PipelineService is the transcoding surface the gateway needs: per-movie
	// job lookup for the controllers, plus a queue snapshot used to furnish
	// newly connected websocket clients with the current state.
	PipelineService interface {
		movies.PipelineService
		Jobs() []*pipeline.Job
	}

	// dataStore represents a union of all the controller store requirements.
	dataStore interface {
		movies.Store
		categories.Store
	}

	// The RestGateway is a thin wrapper around the Echo HTTP router. Its sole
	// responsibility is to create the routes Kino exposes, serve the media
	// artifacts, and manage ongoing web socket connections and events.
	RestGateway struct {
		*broadcaster
		config             *RestConfig
		ec                 *echo.Echo
		socket             *websocket.SocketHub
		movieController    controller
		categoryController controller
	}
)

// NewRestGateway constructs the Echo router and populates it with all the
// routes defined by the various controllers. Each controller requires access
// to a data store, which are provided as arguments.
func NewRestGateway(
	config *RestConfig,
	pipelineService PipelineService,
	reconciler movies.ArtifactReconciler,
	eventBus event.EventDispatcher,
	paths artifacts.MediaPaths,
	store dataStore,
) *RestGateway {
	ec := echo.New()
	ec.OnAddRouteHandler = func(host string, route echo.Route, handler echo.HandlerFunc, middleware []echo.MiddlewareFunc) {
		log.Emit(logger.DEBUG, "Registered new route %s %s\n", route.Method, route.Path)
	}
	ec.HidePort = true
	ec.HideBanner = true

	socket := websocket.New()
	gateway := &RestGateway{
		broadcaster:        newBroadcaster(socket, pipelineService, store),
		config:             config,
		ec:                 ec,
		socket:             socket,
		movieController:    movies.New(store, pipelineService, reconciler, eventBus, paths),
		categoryController: categories.New(store),
	}
	socket.WithConnectionCallback(gateway.ConnectionPayload)

	ec.Use(middleware.Logger())
	ec.Use(middleware.Recover())
	ec.Pre(middleware.AddTrailingSlash())

	ec.GET("/api/kino/v1/activity/ws/", func(ec echo.Context) error {
		gateway.socket.UpgradeToSocket(ec.Response(), ec.Request())
		return nil
	})

	movieGroup := ec.Group("/api/kino/v1/movies")
	gateway.movieController.SetRoutes(movieGroup)

	categoryGroup := ec.Group("/api/kino/v1/categories")
	gateway.categoryController.SetRoutes(categoryGroup)

	// Derived artifacts (HLS trees and thumbnails) are served directly off
	// the media directory; playback clients fetch the manifests and
	// segments as plain files.
	ec.Static("/media/hls", paths.HLSDir())
	ec.Static("/media/thumbnails", paths.ThumbnailDir())

	return gateway
}

func (gateway *RestGateway) Run(parentCtx context.Context) error {
	ctx, ctxCancel := context.WithCancelCause(parentCtx)
	wg := &sync.WaitGroup{}

	// Start echo router
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gateway.ec.Start(gateway.config.HostAddr); err != nil {
			ctxCancel(err)
		}
	}()

	// Start thread to listen for context cancellation
	go func(ec *echo.Echo) {
		<-ctx.Done()
		ec.Close()
	}(gateway.ec)

	// Start websocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		gateway.socket.Start(ctx)
	}()

	wg.Wait()

	// Return cancellation cause if any, otherwise nil as parent context
	// cancellation is not an error case we should report.
	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}
