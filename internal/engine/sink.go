package engine

import "PerpTrade/internal/event"

// MultiSink fans an envelope out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(env *event.Envelope) {
	for _, s := range m {
		s.Emit(env)
	}
}
