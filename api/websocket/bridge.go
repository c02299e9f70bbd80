package websocket

import (
	"context"
	"encoding/json"

	"github.com/OldStager01/service-autoscaler/internal/logger"
	"github.com/OldStager01/service-autoscaler/pkg/models"
)

// EventBridge pipes the orchestrator's event stream into the hub.
type EventBridge struct {
	hub       *Hub
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewEventBridge(hub *Hub, eventChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:       hub,
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	<-b.done
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventChan:
			if !ok {
				return
			}
			b.forward(event)
		}
	}
}

func (b *EventBridge) forward(event *models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Errorf("Failed to marshal event for WebSocket: %v", err)
		return
	}
	b.hub.Broadcast(event.Service, data)
}
