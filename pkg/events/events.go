// Package events defines the event types published on run and node
// lifecycle transitions.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "fluxor.events"               // Run and node lifecycle events
const DeadLetterTopic = "fluxor.deadletter" // Dead-lettered items

// Message metadata keys.
const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunCancelledEvent EventType = "run.cancelled"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeFinishedEvent  EventType = "node.finished"
	NodeRestartedEvent EventType = "node.restarted"

	// Item-level events.
	ItemProcessedEvent    EventType = "item.processed"
	ItemFailedEvent       EventType = "item.failed"
	ItemDeadLetteredEvent EventType = "item.deadlettered"

	// Resilience events.
	CircuitStateChangedEvent EventType = "circuit.state_changed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	PlanID    string         `json:"plan_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent fills the common envelope fields.
func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		RunID:     runID,
	}
}

type RunStarted struct {
	BaseEvent

	Nodes int `json:"nodes"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	NodeID   string        `json:"node_id,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	Duration time.Duration `json:"duration"`
}

func (e RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

type NodeStarted struct {
	BaseEvent

	NodeID string `json:"node_id"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeFinished struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Restarts int    `json:"restarts"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type NodeRestarted struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Restarts int    `json:"restarts"`
	Error    string `json:"error,omitempty"`
}

func (e NodeRestarted) GetType() EventType {
	return NodeRestartedEvent
}

type ItemProcessed struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Attempt int    `json:"attempt"`
}

func (e ItemProcessed) GetType() EventType {
	return ItemProcessedEvent
}

type ItemFailed struct {
	BaseEvent

	NodeID  string `json:"node_id"`
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

func (e ItemFailed) GetType() EventType {
	return ItemFailedEvent
}

type ItemDeadLettered struct {
	BaseEvent

	NodeID   string `json:"node_id"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func (e ItemDeadLettered) GetType() EventType {
	return ItemDeadLetteredEvent
}

type CircuitStateChanged struct {
	BaseEvent

	NodeID string `json:"node_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (e CircuitStateChanged) GetType() EventType {
	return CircuitStateChangedEvent
}
