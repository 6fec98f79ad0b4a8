package notify

import "dvfmarket/server/internal/models"

// Sink receives terminal import notifications for an actor.
type Sink interface {
	Notify(actorID string, payload models.ImportNotification)
}

type fanout []Sink

func (f fanout) Notify(actorID string, payload models.ImportNotification) {
	for _, sink := range f {
		sink.Notify(actorID, payload)
	}
}

// Fanout combines several sinks into one.
func Fanout(sinks ...Sink) Sink {
	return fanout(sinks)
}
