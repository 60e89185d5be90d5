package events

import (
	"context"

	"go.uber.org/multierr"
)

// Publisher delivers outbound events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ctx context.Context, event *Event) error

// Publish implements Publisher
func (f PublisherFunc) Publish(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Multi fans out to every publisher; one failing transport does not stop the rest
type Multi []Publisher

// Publish implements Publisher
func (m Multi) Publish(ctx context.Context, event *Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, event))
	}
	return err
}

// Nop discards events
var Nop Publisher = PublisherFunc(func(context.Context, *Event) error { return nil })
