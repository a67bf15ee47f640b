// Package connector defines how normalized activities reach the ingestion
// coordinator.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/deemkeen/andstatus/domain"
)

// Connector yields normalized activities in origin order. Next returns
// io.EOF when there is nothing more to read.
type Connector interface {
	Next(ctx context.Context) (*domain.Activity, error)
}

// Sink consumes activities, one at a time.
type Sink interface {
	OnActivity(ctx context.Context, act *domain.Activity) error
}

type SinkFunc func(ctx context.Context, act *domain.Activity) error

func (f SinkFunc) OnActivity(ctx context.Context, act *domain.Activity) error {
	return f(ctx, act)
}

// Drain feeds every activity of c to sink sequentially and returns how many
// were consumed. It stops at the first sink error.
func Drain(ctx context.Context, c Connector, sink Sink) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		act, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("reading activity: %w", err)
		}
		if err := sink.OnActivity(ctx, act); err != nil {
			return n, fmt.Errorf("processing activity %s: %w", act.Oid, err)
		}
		n++
	}
}

type static struct {
	acts []*domain.Activity
}

// Static returns a connector yielding the given activities.
func Static(acts ...*domain.Activity) Connector {
	return &static{acts: acts}
}

func (s *static) Next(context.Context) (*domain.Activity, error) {
	if len(s.acts) == 0 {
		return nil, io.EOF
	}
	act := s.acts[0]
	s.acts = s.acts[1:]
	return act, nil
}
