// Package eventbus defines the publish interface the core uses to emit
// observability/notification events. Subscribers are out of scope.
package eventbus

import "context"

// EventName enumerates the events the core publishes.
type EventName string

const (
	EventPositionReconciled EventName = "PositionReconciled"
	EventTradeOpened        EventName = "TradeOpened"
	EventTradeClosed        EventName = "TradeClosed"
	EventCriticalError      EventName = "CriticalError"
	EventNotification       EventName = "NotificationEvent"
)

// Event is a single published event.
type Event struct {
	Name    EventName
	Details map[string]interface{}
}

// Bus is the publish-only interface the core depends on.
type Bus interface {
	Publish(ctx context.Context, event Event)
}
