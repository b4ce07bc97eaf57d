// Package subscription keeps a dropper.Store in step with its host
// platform: every persisted file is watched, and files whose object is
// removed behind the Store's back are dropped from it.
package subscription

import (
	"context"
	"errors"
	"sync"

	"impractical.co/dropper"
	"impractical.co/dropper/host"
	"yall.in"
)

// Store is the part of a dropper.Store the Bridge reports to.
type Store interface {
	DeleteFileShallow(ctx context.Context, guid string) bool
}

// Bridge is a dropper.SubscriptionHandler backed by host.Platform
// subscriptions.
type Bridge struct {
	ctx      context.Context
	platform host.Platform

	mu           sync.Mutex
	store        Store
	unsubscribes []func()
	closed       bool
}

// New returns a Bridge watching objects on platform. ctx is used for the
// lookups and deletes triggered by change notifications.
func New(ctx context.Context, platform host.Platform) *Bridge {
	return &Bridge{ctx: ctx, platform: platform}
}

// Attach points the Bridge at the Store it keeps in step.
func (b *Bridge) Attach(s Store) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = s
}

// Handle replaces every watch with one per file in g.
func (b *Bridge) Handle(g dropper.Guids) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
	if b.closed {
		return
	}
	log := yall.FromContext(b.ctx)
	for _, guid := range g.Files {
		guid := guid
		b.unsubscribes = append(b.unsubscribes, b.platform.Subscribe(guid, func() {
			b.changed(guid)
		}))
	}
	if len(g.Files) > 0 {
		log.WithField("subscription.files", len(g.Files)).Debug("[subscription] watching files")
	}
}

func (b *Bridge) changed(guid string) {
	log := yall.FromContext(b.ctx).WithField("subscription.guid", guid)
	_, err := b.platform.Get(b.ctx, guid)
	if err == nil {
		return
	}
	if !errors.Is(err, host.ErrObjectNotFound) {
		log.WithError(err).Warn("[subscription] error checking changed object")
		return
	}

	b.mu.Lock()
	store := b.store
	b.mu.Unlock()
	if store == nil {
		return
	}
	log.Debug("[subscription] object removed, dropping file")
	store.DeleteFileShallow(b.ctx, guid)
}

// Close stops every watch; later calls to Handle are ignored.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
	b.closed = true
}

func (b *Bridge) clearLocked() {
	for _, unsubscribe := range b.unsubscribes {
		unsubscribe()
	}
	b.unsubscribes = nil
}
