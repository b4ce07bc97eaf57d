// Package memory provides an in-memory host platform, backed by go-memdb,
// for tests, the command line tool and local development.
package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	memdb "github.com/hashicorp/go-memdb"
	"impractical.co/dropper/host"
	"yall.in"
)

var _ host.Platform = &Platform{}

var (
	objectSchema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"object": {
				Name: "object",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "GUID", Lowercase: true},
					},
				},
			},
		},
	}
)

// Platform is an in-memory host.Platform. Objects are stored as copies, so
// changes to an *host.Object are only visible to others once committed.
type Platform struct {
	db      *memdb.MemDB
	docs    host.DocumentStore
	baseURL string
	now     func() time.Time

	mu       sync.RWMutex
	entities map[string]host.Entity
}

// NewPlatform returns a Platform that keeps documents in docs and knows
// about the entities passed. baseURL is used to build document URLs.
func NewPlatform(docs host.DocumentStore, baseURL string, entities ...host.Entity) (*Platform, error) {
	db, err := memdb.NewMemDB(objectSchema)
	if err != nil {
		return nil, err
	}
	p := &Platform{
		db:       db,
		docs:     docs,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		now:      time.Now,
		entities: map[string]host.Entity{},
	}
	for _, e := range entities {
		p.Define(e)
	}
	return p, nil
}

// Define makes an entity known to the Platform, replacing any previous
// definition with the same name.
func (p *Platform) Define(e host.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities[e.Name] = e
}

// Entity returns the entity defined as name.
func (p *Platform) Entity(_ context.Context, name string) (host.Entity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entities[name]
	if !ok {
		return host.Entity{}, fmt.Errorf("%w: %s", host.ErrUnknownEntity, name)
	}
	return e, nil
}

// Create inserts a new object of entity with a fresh GUID.
func (p *Platform) Create(ctx context.Context, entity string) (*host.Object, error) {
	if _, err := p.Entity(ctx, entity); err != nil {
		return nil, err
	}
	obj := &host.Object{
		GUID:        uuid.NewString(),
		Entity:      entity,
		Attributes:  map[string]any{},
		References:  map[string]string{},
		ChangedDate: p.now(),
	}
	txn := p.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert("object", obj.Clone()); err != nil {
		return nil, err
	}
	txn.Commit()

	yall.FromContext(ctx).WithField("memory.guid", obj.GUID).WithField("memory.entity", entity).Debug("[memory] object created")
	return obj, nil
}

// Commit merges the attributes and references of obj into the stored object
// and updates obj to match it.
func (p *Platform) Commit(ctx context.Context, obj *host.Object) error {
	txn := p.db.Txn(true)
	defer txn.Abort()
	res, err := txn.First("object", "id", obj.GUID)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("%w: %s", host.ErrObjectNotFound, obj.GUID)
	}
	rec := res.(*host.Object).Clone()
	for k, v := range obj.Attributes {
		rec.Attributes[k] = v
	}
	for k, v := range obj.References {
		rec.References[k] = v
	}
	rec.ChangedDate = p.now()
	if err := txn.Insert("object", rec); err != nil {
		return err
	}
	txn.Commit()

	*obj = *rec.Clone()
	yall.FromContext(ctx).WithField("memory.guid", obj.GUID).Debug("[memory] object committed")
	return nil
}

// Remove deletes the object of guid and its document.
func (p *Platform) Remove(ctx context.Context, guid string) error {
	txn := p.db.Txn(true)
	defer txn.Abort()
	res, err := txn.First("object", "id", guid)
	if err != nil {
		return err
	}
	if res != nil {
		if err := txn.Delete("object", res); err != nil {
			return err
		}
	}
	txn.Commit()

	if err := p.docs.Delete(ctx, guid); err != nil {
		return fmt.Errorf("error deleting document of %s: %w", guid, err)
	}
	yall.FromContext(ctx).WithField("memory.guid", guid).Debug("[memory] object removed")
	return nil
}

// Get returns a copy of the object of guid.
func (p *Platform) Get(_ context.Context, guid string) (*host.Object, error) {
	txn := p.db.Txn(false)
	res, err := txn.First("object", "id", guid)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", host.ErrObjectNotFound, guid)
	}
	return res.(*host.Object).Clone(), nil
}

// SaveDocument stores the document and records its name and size on the
// object, which counts as a change for subscribers.
func (p *Platform) SaveDocument(ctx context.Context, guid, name string, r io.Reader) error {
	obj, err := p.Get(ctx, guid)
	if err != nil {
		return err
	}
	doc, err := host.Upload(ctx, p.docs, r, guid)
	if err != nil {
		return err
	}
	obj.Set("Name", name)
	obj.Set("Size", doc.Size)
	obj.Set("HasContents", true)
	return p.Commit(ctx, obj)
}

// DocumentURL returns the URL the document of obj is served on by hostapi.
// The changed date busts caches when the document is replaced.
func (p *Platform) DocumentURL(obj *host.Object) string {
	return fmt.Sprintf("%s/file?guid=%s&changedDate=%d", p.baseURL, obj.GUID, obj.ChangedDate.UnixMilli())
}

// Documents returns the DocumentStore the Platform keeps documents in.
func (p *Platform) Documents() host.DocumentStore {
	return p.docs
}

// Subscribe watches the object identified by guid, calling fn from a
// separate goroutine whenever it is committed or removed.
func (p *Platform) Subscribe(guid string, fn func()) func() {
	done := make(chan struct{})
	var once sync.Once

	// take the first watch before returning, so changes made right after
	// subscribing aren't missed
	watch, err := p.watch(guid)
	if err != nil {
		return func() {}
	}
	go func() {
		for {
			select {
			case <-done:
				return
			case <-watch:
			}
			select {
			case <-done:
				return
			default:
			}
			fn()
			watch, err = p.watch(guid)
			if err != nil {
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}

func (p *Platform) watch(guid string) (<-chan struct{}, error) {
	txn := p.db.Txn(false)
	ch, _, err := txn.FirstWatch("object", "id", guid)
	return ch, err
}
