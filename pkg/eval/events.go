package eval

import "github.com/gigboard/flagcore/pkg/model"

// Event describes a single evaluation, for observability sinks.
type Event struct {
	FlagID   string
	Decision bool
	Reason   model.Reason
}

// EventSink receives evaluation events. Implementations must never
// block: evaluation stays on the hot path of every caller.
type EventSink interface {
	Emit(Event)
}

// ChannelSink buffers events on a channel and drops them when the
// consumer falls behind, so a slow or absent consumer can never stall
// an evaluation.
type ChannelSink struct {
	ch chan Event
}

func NewChannelSink(size int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, size)}
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Events exposes the consumer side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}
