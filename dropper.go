// Package dropper manages the lifecycle of files dropped into an upload
// widget: materializing them in memory, persisting them through injected
// adapters, verifying them, and keeping the set of persisted files in sync
// with a host platform.
package dropper

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrEmptyFile is returned when a File is materialized without a raw
	// file to read from.
	ErrEmptyFile = errors.New("file appears to be empty")

	// ErrNotSaved is recorded on a File when its save adapter reports the
	// file wasn't persisted without returning an error of its own.
	ErrNotSaved = errors.New("File not saved, check logs")

	// ErrNoData is returned by adapters asked to persist a File that has not
	// been materialized yet.
	ErrNoData = errors.New("file has no data")
)

// Status is the lifecycle state of a File.
type Status string

const (
	StatusNotLoaded Status = "not_loaded"
	StatusPending   Status = "pending"
	StatusLoaded    Status = "loaded"
	StatusSaved     Status = "saved"
	StatusError     Status = "error"
)

// RawFile represents a file selected or dropped by the user, before anything
// has been read from it.
type RawFile interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// SaveFunc persists a File. Returning false without an error is a
// recoverable rejection.
type SaveFunc func(ctx context.Context, f *File) (bool, error)

// DeleteFunc removes a previously persisted File. Returning false or an
// error keeps the File in the Store.
type DeleteFunc func(ctx context.Context, f *File) (bool, error)

// VerifyFunc decides whether a saved File is accepted. Returning false or an
// error removes the File from the Store.
type VerifyFunc func(ctx context.Context, f *File) (bool, error)

// Guids describes the context a Store is bound to and the identifiers of
// every File it has persisted. The zero value means "watch nothing".
type Guids struct {
	Context string
	Files   []string
}

// SubscriptionHandler is told about every change to the set of persisted
// identifiers, so it can watch them for out-of-band deletion.
type SubscriptionHandler func(Guids)

// Bool returns a pointer to b, for the optional fields of Options.
func Bool(b bool) *bool {
	return &b
}
