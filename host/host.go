// Package host describes the services a host platform offers to the upload
// widget: creating, committing, fetching and removing objects, storing
// documents, running actions, and watching objects for changes.
package host

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrObjectNotFound is returned when an object is requested and can't
	// be found.
	ErrObjectNotFound = errors.New("object not found")

	// ErrDocumentNotFound is returned when a document is requested and
	// can't be found.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnknownEntity is returned when an object of an entity the
	// platform doesn't know about is requested.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNoAction is returned when an Action names neither a microflow nor
	// a nanoflow.
	ErrNoAction = errors.New("no microflow/nanoflow defined")
)

const (
	// FileDocument is the generalization of every entity that can hold a
	// document.
	FileDocument = "System.FileDocument"
	// Image is the generalization of every entity that holds an image.
	Image = "System.Image"
)

// Entity describes a type of object on the host platform.
type Entity struct {
	Name            string
	Generalizations []string
	Persistable     bool
	Attributes      []string
	References      []string
}

// IsA reports whether the entity is, or specializes, the named entity.
func (e Entity) IsA(name string) bool {
	if e.Name == name {
		return true
	}
	for _, g := range e.Generalizations {
		if g == name {
			return true
		}
	}
	return false
}

// Has reports whether the entity has an attribute or reference called
// member.
func (e Entity) Has(member string) bool {
	for _, a := range e.Attributes {
		if a == member {
			return true
		}
	}
	for _, r := range e.References {
		if r == member {
			return true
		}
	}
	return false
}

// Object is an instance of an Entity on the host platform.
type Object struct {
	GUID        string
	Entity      string
	Attributes  map[string]any
	References  map[string]string
	ChangedDate time.Time
}

// Set sets an attribute on the object.
func (o *Object) Set(attr string, value any) {
	if o.Attributes == nil {
		o.Attributes = map[string]any{}
	}
	o.Attributes[attr] = value
}

// Get returns the value of an attribute, or nil.
func (o *Object) Get(attr string) any {
	return o.Attributes[attr]
}

// AddReference points the reference ref at the object identified by guid.
func (o *Object) AddReference(ref, guid string) {
	if o.References == nil {
		o.References = map[string]string{}
	}
	o.References[ref] = guid
}

// Clone returns a deep copy of the object.
func (o *Object) Clone() *Object {
	c := &Object{
		GUID:        o.GUID,
		Entity:      o.Entity,
		ChangedDate: o.ChangedDate,
		Attributes:  make(map[string]any, len(o.Attributes)),
		References:  make(map[string]string, len(o.References)),
	}
	for k, v := range o.Attributes {
		c.Attributes[k] = v
	}
	for k, v := range o.References {
		c.References[k] = v
	}
	return c
}

// Platform is the object API of a host platform.
type Platform interface {
	// Entity returns the metadata of the named entity.
	Entity(ctx context.Context, name string) (Entity, error)
	// Create creates a new object of the named entity.
	Create(ctx context.Context, entity string) (*Object, error)
	// Commit persists the changes made to obj.
	Commit(ctx context.Context, obj *Object) error
	// Remove deletes the object and any document it holds. Removing an
	// object that doesn't exist is not an error.
	Remove(ctx context.Context, guid string) error
	// Get returns the object identified by guid, or ErrObjectNotFound.
	Get(ctx context.Context, guid string) (*Object, error)
	// SaveDocument stores the contents of r as the document of the object
	// identified by guid.
	SaveDocument(ctx context.Context, guid, name string, r io.Reader) error
	// DocumentURL returns a URL the document of obj can be fetched from.
	DocumentURL(obj *Object) string
	// Subscribe calls fn every time the object identified by guid changes
	// or is removed, until the returned function is called.
	Subscribe(guid string, fn func()) (unsubscribe func())
}

// Action names a server-side microflow or client-side nanoflow.
type Action struct {
	Microflow string `mapstructure:"microflow"`
	Nanoflow  string `mapstructure:"nanoflow"`
}

// Empty reports whether the Action names nothing to run.
func (a Action) Empty() bool {
	return a.Microflow == "" && a.Nanoflow == ""
}

// String returns the name of the action to run, microflow first.
func (a Action) String() string {
	if a.Microflow != "" {
		return a.Microflow
	}
	return a.Nanoflow
}

// ActionRunner runs business actions on the host platform, with obj as
// their context.
type ActionRunner interface {
	Run(ctx context.Context, action Action, obj *Object) (any, error)
}
