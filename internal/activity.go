package internal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kinovod/kino/internal/event"
	"github.com/kinovod/kino/pkg/logger"
)

const (
	debounceDuration time.Duration = time.Second * 2
	maxTimerDuration time.Duration = time.Second * 5

	rapidEventDebounceDuration time.Duration = time.Millisecond * 500
	rapidEventMaxTimerDuration time.Duration = time.Second * 2
)

type (
	broadcastHandler func(int64) error

	broadcaster interface {
		BroadcastJobUpdate(int64) error
		BroadcastMovieUpdate(int64) error
	}

	eventKey struct {
		ev event.Event
		id int64
	}

	// activityService debounces bus events in to websocket broadcasts.
	// Progress events can arrive far faster than clients care about, so
	// each (event, movie) pair is coalesced: a quiet period flushes the
	// broadcast early, and a max timer bounds how stale it can become.
	activityService struct {
		*sync.Mutex
		broadcaster
		eventBus       event.EventHandler
		debounceTimers map[eventKey]*time.Timer
		maxTimers      map[eventKey]*time.Timer
	}
)

func newActivityService(broadcaster broadcaster, eventBus event.EventHandler) *activityService {
	return &activityService{
		Mutex:          &sync.Mutex{},
		broadcaster:    broadcaster,
		eventBus:       eventBus,
		debounceTimers: make(map[eventKey]*time.Timer),
		maxTimers:      make(map[eventKey]*time.Timer),
	}
}

func (service *activityService) Run(ctx context.Context) error {
	messageChan := make(chan event.HandlerEvent, 100)
	service.eventBus.RegisterHandlerChannel(messageChan,
		event.NewMovieEvent, event.DeleteMovieEvent, event.PipelineUpdateEvent,
		event.PipelineCompleteEvent, event.ThumbnailCompleteEvent)

	log.Emit(logger.NEW, "Activity service started\n")
	for {
		select {
		case ev := <-messageChan:
			if err := service.handleEvent(ev); err != nil {
				log.Emit(logger.ERROR, "Handling of event %v failed: %v\n", ev, err)
			}
		case <-ctx.Done():
			log.Emit(logger.STOP, "Activity service closed\n")
			return nil
		}
	}
}

func (service *activityService) handleEvent(ev event.HandlerEvent) error {
	movieID, ok := ev.Payload.(int64)
	if !ok {
		return errors.New("illegal payload (expected movie ID)")
	}

	resourceKey := eventKey{id: movieID, ev: ev.Event}

	switch ev.Event {
	case event.NewMovieEvent:
		fallthrough
	case event.DeleteMovieEvent:
		service.scheduleEventBroadcast(resourceKey, service.BroadcastMovieUpdate)
	case event.PipelineUpdateEvent:
		service.scheduleRapidEventBroadcast(resourceKey, service.BroadcastJobUpdate)
	case event.PipelineCompleteEvent:
		fallthrough
	case event.ThumbnailCompleteEvent:
		service.scheduleEventBroadcast(resourceKey, service.BroadcastJobUpdate)
	default:
		return errors.New("unknown event type")
	}

	return nil
}

func (service *activityService) scheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service.doScheduleEventBroadcast(resourceKey, handler, debounceDuration, maxTimerDuration)
}

func (service *activityService) scheduleRapidEventBroadcast(resourceKey eventKey, handler broadcastHandler) {
	service.doScheduleEventBroadcast(resourceKey, handler, rapidEventDebounceDuration, rapidEventMaxTimerDuration)
}

func (service *activityService) doScheduleEventBroadcast(resourceKey eventKey, handler broadcastHandler, debounceTime time.Duration, maxTime time.Duration) {
	service.Lock()
	defer service.Unlock()

	broadcaster := func() { service.broadcast(resourceKey, handler) }

	// Cancel and re-set a debounce timer
	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
	}
	service.debounceTimers[resourceKey] = time.AfterFunc(debounceTime, broadcaster)

	// Set a max timer if not already set
	if _, ok := service.maxTimers[resourceKey]; !ok {
		service.maxTimers[resourceKey] = time.AfterFunc(maxTime, broadcaster)
	}
}

func (service *activityService) broadcast(resourceKey eventKey, handler broadcastHandler) {
	service.Lock()
	defer service.Unlock()

	if t, ok := service.debounceTimers[resourceKey]; ok {
		t.Stop()
		delete(service.debounceTimers, resourceKey)
	}

	if t, ok := service.maxTimers[resourceKey]; ok {
		t.Stop()
		delete(service.maxTimers, resourceKey)
	}

	if err := handler(resourceKey.id); err != nil {
		log.Emit(logger.WARNING, "Broadcast for movie %d failed: %v\n", resourceKey.id, err)
	}
}
