package dropper

import (
	"context"
	"sync"

	"yall.in"
)

// File is a single file making its way from raw bytes to a persisted
// record. All of its methods are safe for concurrent use.
type File struct {
	name       string
	raw        RawFile
	save       SaveFunc
	saveBase64 bool
	onChange   func(*File)

	// seq serializes Store.Process runs for this File.
	seq sync.Mutex

	mu           sync.RWMutex
	deletable    bool
	status       Status
	err          string
	loadProgress int
	data         []byte
	base64       string
	previewURL   string
	hash         string
	guid         string
	boundTo      string
}

// FileSnapshot is a point-in-time copy of a File's observable state.
type FileSnapshot struct {
	Name         string
	ContentType  string
	Size         int64
	Status       Status
	Error        string
	LoadProgress int
	Base64       string
	Hash         string
	PreviewURL   string
	GUID         string
	BoundTo      string
	Deletable    bool
}

// NewFile returns a File for raw in the not_loaded state. save may be nil,
// in which case SaveFile is a no-op. saveBase64 controls whether a preview
// string is captured when the File is loaded.
func NewFile(raw RawFile, save SaveFunc, saveBase64 bool) *File {
	return newFile(raw, save, saveBase64, nil)
}

func newFile(raw RawFile, save SaveFunc, saveBase64 bool, onChange func(*File)) *File {
	f := &File{
		raw:        raw,
		save:       save,
		saveBase64: saveBase64,
		onChange:   onChange,
		deletable:  true,
		status:     StatusNotLoaded,
	}
	if raw != nil {
		f.name = raw.Name()
	}
	return f
}

func (f *File) changed() {
	if f.onChange != nil {
		f.onChange(f)
	}
}

// update applies fn under the write lock and then notifies the owner.
func (f *File) update(fn func()) {
	f.mu.Lock()
	fn()
	f.mu.Unlock()
	f.changed()
}

// LoadFile materializes the File in memory. It only does something when the
// File is not_loaded and has a raw file to read; failures are recorded on
// the File rather than returned.
func (f *File) LoadFile(ctx context.Context) {
	f.mu.Lock()
	if f.raw == nil || f.status != StatusNotLoaded {
		f.mu.Unlock()
		return
	}
	f.status = StatusPending
	f.mu.Unlock()
	f.changed()

	log := yall.FromContext(ctx).WithField("dropper.file", f.name)
	log.Debug("[dropper] loading file")

	parts, err := LoadInMemory(yall.InContext(ctx, log), f.raw, f.saveBase64)
	if err != nil {
		log.WithError(err).Error("[dropper] error loading file")
		f.update(func() {
			f.status = StatusError
			f.err = errorMessage(err)
			f.data = nil
			f.base64 = ""
		})
		return
	}

	f.update(func() {
		if parts.Data != nil {
			f.status = StatusLoaded
		} else {
			f.status = StatusNotLoaded
		}
		f.data = parts.Data
		if parts.Base64 != "" {
			if f.saveBase64 {
				f.base64 = parts.Base64
			}
			f.hash = Hash(parts.Base64)
		}
	})
	log.WithField("dropper.size", len(parts.Data)).Debug("[dropper] file loaded")
}

// SaveFile persists the File using its save adapter. It only does something
// when the File is loaded, has a raw file, and has an adapter; failures are
// recorded on the File rather than returned.
func (f *File) SaveFile(ctx context.Context) {
	f.mu.Lock()
	if f.raw == nil || f.status != StatusLoaded || f.save == nil {
		f.mu.Unlock()
		return
	}
	f.status = StatusPending
	f.mu.Unlock()
	f.changed()

	log := yall.FromContext(ctx).WithField("dropper.file", f.name)
	log.Debug("[dropper] saving file")

	saved, err := f.save(yall.InContext(ctx, log), f)
	switch {
	case err != nil:
		log.WithError(err).Error("[dropper] error saving file")
		f.update(func() {
			f.err = errorMessage(err)
			f.status = StatusError
		})
	case saved:
		log.Debug("[dropper] file saved")
		f.update(func() {
			f.status = StatusSaved
			f.loadProgress = 100
		})
	default:
		log.Debug("[dropper] file not saved")
		f.update(func() {
			f.err = ErrNotSaved.Error()
			f.status = StatusError
		})
	}
}

// SetStatus forces the File into status, bypassing every guard.
func (f *File) SetStatus(status Status) {
	f.update(func() { f.status = status })
}

// SetLoadProgress records progress as a percentage, clamped to 0-100.
func (f *File) SetLoadProgress(perc int) {
	if perc < 0 {
		perc = 0
	}
	if perc > 100 {
		perc = 100
	}
	f.update(func() { f.loadProgress = perc })
}

// SetPreviewURL records the URL the File's preview can be fetched from.
func (f *File) SetPreviewURL(url string) {
	f.update(func() { f.previewURL = url })
}

// SetBoundTo records the context record the File has been associated with.
func (f *File) SetBoundTo(id string) {
	f.update(func() { f.boundTo = id })
}

// SetGUID records the identifier of the File's persisted record.
func (f *File) SetGUID(guid string) {
	f.update(func() { f.guid = guid })
}

// SetError moves the File to the error state with err's message.
func (f *File) SetError(err error) {
	f.update(func() {
		f.err = errorMessage(err)
		f.status = StatusError
	})
}

// SetDeletable sets whether the File may be offered for removal.
func (f *File) SetDeletable(deletable bool) {
	f.update(func() { f.deletable = deletable })
}

// Name returns the name of the raw file, unique within a Store.
func (f *File) Name() string { return f.name }

// Raw returns the raw file the File was created from.
func (f *File) Raw() RawFile { return f.raw }

// Status returns the File's current state.
func (f *File) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// Error returns the message of the last failure, or an empty string.
func (f *File) Error() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.err
}

// LoadProgress returns the progress of the current transfer, 0-100.
func (f *File) LoadProgress() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loadProgress
}

// Data returns the materialized contents of the File, or nil if it hasn't
// been loaded.
func (f *File) Data() []byte {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.data
}

// Base64 returns the preview data URI, or an empty string when no preview
// was captured.
func (f *File) Base64() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.base64
}

// Hash returns the md5 fingerprint of the preview data URI.
func (f *File) Hash() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.hash
}

// PreviewURL returns the URL set with SetPreviewURL.
func (f *File) PreviewURL() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.previewURL
}

// GUID returns the identifier of the persisted record, or an empty
// string while the File isn't persisted.
func (f *File) GUID() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.guid
}

// BoundTo returns the context record the File is associated with.
func (f *File) BoundTo() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.boundTo
}

// Deletable reports whether the File may be offered for removal.
func (f *File) Deletable() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.deletable
}

// Snapshot returns a copy of the File's observable state.
func (f *File) Snapshot() FileSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := FileSnapshot{
		Name:         f.name,
		Status:       f.status,
		Error:        f.err,
		LoadProgress: f.loadProgress,
		Base64:       f.base64,
		Hash:         f.hash,
		PreviewURL:   f.previewURL,
		GUID:         f.guid,
		BoundTo:      f.boundTo,
		Deletable:    f.deletable,
	}
	if f.raw != nil {
		s.ContentType = f.raw.ContentType()
		s.Size = f.raw.Size()
	}
	return s
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return "unknown error"
	}
	return err.Error()
}
