package memory

import (
	"context"

	"impractical.co/dropper/host"
)

// Factory creates in-memory stores and platforms for tests.
type Factory struct{}

// NewStorer returns an empty in-memory Storer.
func (f Factory) NewStorer(ctx context.Context) (host.DocumentStore, error) {
	return NewStorer()
}

// NewPlatform returns a Platform with its own Storer, knowing about the
// entities passed.
func (f Factory) NewPlatform(ctx context.Context, entities ...host.Entity) (*Platform, error) {
	docs, err := NewStorer()
	if err != nil {
		return nil, err
	}
	return NewPlatform(docs, "http://localhost", entities...)
}

// TeardownStorers releases the Storers the Factory created. In-memory
// storers need no cleanup.
func (f Factory) TeardownStorers() error {
	return nil
}
