package pipeline

import (
	"context"
	"time"
)

// EventType はパイプラインイベントの種類
type EventType string

const (
	EventProposed  EventType = "proposed"
	EventApplied   EventType = "applied"
	EventCommitted EventType = "committed"
	EventPushed    EventType = "pushed"
	EventLanded    EventType = "landed"
	EventFailed    EventType = "failed"
)

// Event はパイプラインの状態遷移を表す
type Event struct {
	Type       EventType `json:"type"`
	Op         string    `json:"op,omitempty"`
	ProposalID string    `json:"id,omitempty"`
	Hash       string    `json:"hash,omitempty"`
	Files      []string  `json:"files,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// EventSink はイベントの配信先
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// EventSinkFunc は関数をEventSinkとして扱うアダプタ
type EventSinkFunc func(ctx context.Context, ev Event)

// Publish はfを呼び出す
func (f EventSinkFunc) Publish(ctx context.Context, ev Event) {
	f(ctx, ev)
}
