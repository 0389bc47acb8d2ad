// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventBoardDeployed      EventType = "BOARD_DEPLOYED"
	EventBoardConnected     EventType = "BOARD_CONNECTED"
	EventBoardDisconnected  EventType = "BOARD_DISCONNECTED"
	EventBoardError         EventType = "BOARD_ERROR"
	EventOperationCompleted EventType = "OPERATION_COMPLETED"
	EventOperationFailed    EventType = "OPERATION_FAILED"
	EventPulseStarted       EventType = "PULSE_STARTED"
	EventPulseStopped       EventType = "PULSE_STOPPED"
	EventSerialLine         EventType = "SERIAL_LINE"
)

// BoardEvent represents an event in the system
type BoardEvent struct {
	ID        uuid.UUID      `json:"id"`
	EventType EventType      `json:"event_type"`
	Port      string         `json:"port"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Severity  string         `json:"severity"` // INFO, WARNING, ERROR
}

// NewBoardEvent stamps a new event with an id and the current time
func NewBoardEvent(eventType EventType, port string, data map[string]any) *BoardEvent {
	severity := "INFO"
	switch eventType {
	case EventBoardError, EventOperationFailed:
		severity = "ERROR"
	case EventBoardDisconnected:
		severity = "WARNING"
	}

	return &BoardEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Port:      port,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}
