package domain

import "context"

type EventKind string

const (
	EventNewFollower      EventKind = "new_follower"
	EventTestNotification EventKind = "test_notification"
	EventSettingsUpdated  EventKind = "settings_updated"
)

// TopicFollowers is the implicit topic every connection starts on.
const TopicFollowers = "followers"

// Event travels over the broadcast bus. Exactly one of Follower or Settings
// is set, depending on Kind.
type Event struct {
	Kind     EventKind
	Follower *Follower
	Settings Settings
}

func NewFollowerEvent(f Follower) Event {
	return Event{Kind: EventNewFollower, Follower: &f}
}

func NewTestNotificationEvent(f Follower) Event {
	return Event{Kind: EventTestNotification, Follower: &f}
}

func NewSettingsUpdatedEvent(s Settings) Event {
	return Event{Kind: EventSettingsUpdated, Settings: s}
}

// Topic returns the topic an event is delivered on.
func (e Event) Topic() string {
	return TopicFollowers
}

// EventPublisher hands events to every interested subscriber. Publish never
// blocks on slow consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}
