package scriptsync

import (
	"context"
	"time"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/dom"
	"uptain-sync/internal/model"
)

// Document and Element are the DOM surface the controller writes to.
type (
	Document = dom.Document
	Element  = dom.Element
)

// Publisher is the tracker's global event bus.
type Publisher interface {
	Publish(event string)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(event string)

// Publish calls f.
func (f PublisherFunc) Publish(event string) { f(event) }

type nopPublisher struct{}

func (nopPublisher) Publish(string) {}

// Scheduler defers a function, letting dependent state settle first.
type Scheduler interface {
	Schedule(fn func())
}

// DelayScheduler runs fn on its own goroutine after Delay.
type DelayScheduler struct {
	Delay time.Duration
}

// Schedule runs fn after s.Delay.
func (s DelayScheduler) Schedule(fn func()) {
	time.AfterFunc(s.Delay, fn)
}

// StateSource exposes the current storefront state.
type StateSource interface {
	State() aggregate.State
}

// StateSourceFunc adapts a function to StateSource.
type StateSourceFunc func() aggregate.State

// State calls f.
func (f StateSourceFunc) State() aggregate.State { return f() }

// Observable is a state source the controller can subscribe to.
type Observable interface {
	Subscribe(fn func()) (unsubscribe func())
}

// ConsentGate reports whether consent permits the tracker.
type ConsentGate interface {
	Allowed() bool
}

type allowAll struct{}

func (allowAll) Allowed() bool { return true }

// SnapshotBuilder derives snapshots and product attributes.
type SnapshotBuilder interface {
	Build(ctx context.Context, s *aggregate.State) *model.Snapshot
	ProductFields(p *model.Product) []model.Field
}
