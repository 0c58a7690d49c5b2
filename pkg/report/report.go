// Package report consumes finalized consolidation results: rendering
// for humans and delivery to downstream systems.
package report

import (
	"context"

	"github.com/DragonSun329/briefAI-sub001/pkg/consolidate"
)

// Renderer turns a finalized result into a human-readable document.
type Renderer interface {
	Render(res *consolidate.Result) (string, error)
}

// Notifier delivers a finalized result to a destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, res *consolidate.Result) error
}
