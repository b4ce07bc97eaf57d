package dropper

import (
	"context"
	"fmt"
	"sync"

	"yall.in"
)

// EventKind describes what changed in a Store.
type EventKind string

const (
	EventFileAdded       EventKind = "file_added"
	EventFileChanged     EventKind = "file_changed"
	EventFileRemoved     EventKind = "file_removed"
	EventContextChanged  EventKind = "context_changed"
	EventMessagesChanged EventKind = "messages_changed"
)

// Event is published to observers whenever a Store or one of its Files
// changes. File is set for the file events.
type Event struct {
	Kind EventKind
	File string
}

// Options configures a Store. Unset optional fields take their defaults:
// AutoLoad and SaveBase64 default to true, AutoSave to false, MaxNumber 0
// means unlimited.
type Options struct {
	Save          SaveFunc
	Delete        DeleteFunc
	Verify        VerifyFunc
	Subscriptions SubscriptionHandler

	AutoLoad   *bool
	AutoSave   bool
	SaveBase64 *bool

	// MaxNumber caps the number of files in the Store; 0 is unlimited.
	MaxNumber int
	// MaxSize and Accept are enforced by Filter, not by AddFile.
	MaxSize int64
	Accept  string

	Context            string
	Texts              Texts
	ValidationMessages []ValidationMessage
}

// Store owns the files dropped into one widget instance, drives each of
// them through load, save and verification, and keeps the subscription
// handler informed about which files are persisted.
type Store struct {
	save          SaveFunc
	del           DeleteFunc
	verify        VerifyFunc
	subscriptions SubscriptionHandler

	autoLoad   bool
	autoSave   bool
	saveBase64 bool
	maxNumber  int
	maxSize    int64
	accept     string
	texts      Texts

	mu       sync.RWMutex
	context  string
	files    []*File
	messages []ValidationMessage

	observersMu  sync.Mutex
	observers    map[int]func(Event)
	nextObserver int

	// pubMu keeps each subscription payload in step with the files it
	// was computed from.
	pubMu sync.Mutex

	running sync.WaitGroup
}

// StoreSnapshot is a point-in-time copy of a Store's observable state.
type StoreSnapshot struct {
	Context            string
	Files              []FileSnapshot
	ValidationMessages []ValidationMessage
	Disabled           bool
	MaxFilesReached    bool
}

// NewStore returns a Store configured with opts.
func NewStore(opts Options) *Store {
	s := &Store{
		save:          opts.Save,
		del:           opts.Delete,
		verify:        opts.Verify,
		subscriptions: opts.Subscriptions,
		autoLoad:      true,
		autoSave:      opts.AutoSave,
		saveBase64:    true,
		maxNumber:     opts.MaxNumber,
		maxSize:       opts.MaxSize,
		accept:        opts.Accept,
		texts:         DefaultTexts().Merge(opts.Texts),
		context:       opts.Context,
		observers:     map[int]func(Event){},
	}
	if opts.AutoLoad != nil {
		s.autoLoad = *opts.AutoLoad
	}
	if opts.SaveBase64 != nil {
		s.saveBase64 = *opts.SaveBase64
	}
	s.messages = append(s.messages, opts.ValidationMessages...)
	return s
}

// AddFile creates a File for raw, adds it to the Store, and starts its
// load/save/verify sequence in the background. It returns nil without
// adding anything when a file with the same name is already in the Store,
// or when the maximum number of files has been reached; the latter also
// adds a warning.
func (s *Store) AddFile(ctx context.Context, raw RawFile) *File {
	if raw == nil {
		return nil
	}
	log := yall.FromContext(ctx).WithField("dropper.file", raw.Name())

	s.mu.Lock()
	if s.maxFilesReachedLocked() {
		s.messages = append(s.messages, NewValidationMessage(s.texts.DropZoneMaximum, SeverityWarning))
		s.mu.Unlock()
		log.Debug("[dropper] maximum number of files reached, rejecting file")
		s.emit(Event{Kind: EventMessagesChanged})
		return nil
	}
	if s.indexByNameLocked(raw.Name()) != -1 {
		s.mu.Unlock()
		log.Debug("[dropper] file with the same name already added, dropping")
		return nil
	}
	f := newFile(raw, s.save, s.saveBase64, s.fileChanged)
	s.files = append(s.files, f)
	s.running.Add(1)
	s.mu.Unlock()

	log.Debug("[dropper] file added")
	s.emit(Event{Kind: EventFileAdded, File: f.Name()})

	go func() {
		defer s.running.Done()
		s.Process(ctx, f)
	}()
	return f
}

// Process runs the load/save/verify sequence for f. Steps run one after the
// other, and two calls for the same File never overlap. Once the sequence
// settles, the subscription handler is told about the persisted files.
func (s *Store) Process(ctx context.Context, f *File) {
	f.seq.Lock()
	defer f.seq.Unlock()

	log := yall.FromContext(ctx).WithField("dropper.file", f.Name())
	ctx = yall.InContext(ctx, log)

	if s.autoLoad || s.autoSave {
		f.LoadFile(ctx)
	}
	if s.autoSave {
		f.SaveFile(ctx)
	}
	if f.Status() == StatusSaved && s.verify != nil {
		log.Debug("[dropper] verifying file")
		ok, err := s.verify(ctx, f)
		if err != nil {
			log.WithError(err).Warn("[dropper] error verifying file")
		}
		if !ok || err != nil {
			log.Debug("[dropper] file rejected by verification")
			s.AddValidationMessage(NewValidationMessage(
				fmt.Sprintf("File: '%s' rejected by the server", f.Name()),
				SeverityWarning,
			))
			s.DeleteFile(ctx, f)
		}
	}
	s.publish()
}

// Wait blocks until every sequence started by AddFile has settled.
func (s *Store) Wait() {
	s.running.Wait()
}

// DeleteFile removes f from the Store. If f was saved, the delete adapter
// is called first and a failure leaves f in place. DeleteFile reports
// whether f was removed.
func (s *Store) DeleteFile(ctx context.Context, f *File) bool {
	if f == nil {
		return false
	}
	log := yall.FromContext(ctx).WithField("dropper.file", f.Name())

	// clear every watch first, so the handler can't react to our own
	// delete by deleting the file a second time
	s.clearSubscriptions()

	s.mu.RLock()
	found := s.indexLocked(f) != -1
	s.mu.RUnlock()
	if !found {
		log.Debug("[dropper] file to delete not found")
		s.publish()
		return false
	}

	if f.Status() == StatusSaved && s.del != nil {
		log.Debug("[dropper] deleting persisted file")
		deleted, err := s.del(yall.InContext(ctx, log), f)
		if err != nil {
			log.WithError(err).Error("[dropper] error deleting file")
		}
		if err != nil || !deleted {
			s.publish()
			return false
		}
	}

	// f may have been removed while the adapter ran, and a new file
	// with the same name added
	s.mu.Lock()
	pos := s.indexLocked(f)
	if pos == -1 {
		s.mu.Unlock()
		s.publish()
		return false
	}
	s.files = append(s.files[:pos:pos], s.files[pos+1:]...)
	s.mu.Unlock()

	log.Debug("[dropper] file removed")
	s.emit(Event{Kind: EventFileRemoved, File: f.Name()})
	s.publish()
	return true
}

// DeleteFileShallow removes the file persisted as guid from the Store
// without asking the delete adapter to remove it remotely. It's meant for
// files whose backing record has already disappeared.
func (s *Store) DeleteFileShallow(ctx context.Context, guid string) bool {
	if guid == "" {
		return false
	}
	s.mu.RLock()
	var f *File
	for _, candidate := range s.files {
		if candidate.GUID() == guid {
			f = candidate
			break
		}
	}
	s.mu.RUnlock()
	if f == nil {
		return false
	}
	yall.FromContext(ctx).WithField("dropper.guid", guid).Debug("[dropper] backing record gone, purging file")

	// DeleteFile only calls the delete adapter for saved files
	f.SetStatus(StatusLoaded)
	return s.DeleteFile(ctx, f)
}

// SetContext binds the Store to the record identified by id, or unbinds it
// when id is empty. Files are kept.
func (s *Store) SetContext(id string) {
	s.mu.Lock()
	s.context = id
	s.mu.Unlock()
	s.emit(Event{Kind: EventContextChanged})
	s.publish()
}

// Context returns the identifier of the record the Store is bound to.
func (s *Store) Context() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// Guids returns the current context and the identifiers of every persisted
// file.
func (s *Store) Guids() Guids {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g := Guids{Context: s.context, Files: []string{}}
	for _, f := range s.files {
		if guid := f.GUID(); guid != "" {
			g.Files = append(g.Files, guid)
		}
	}
	return g
}

// Files returns the files in the Store in the order they were added.
func (s *Store) Files() []*File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	files := make([]*File, len(s.files))
	copy(files, s.files)
	return files
}

// File returns the file named name, or nil.
func (s *Store) File(name string) *File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pos := s.indexByNameLocked(name); pos != -1 {
		return s.files[pos]
	}
	return nil
}

// MaxFilesReached reports whether the Store holds as many files as it may.
func (s *Store) MaxFilesReached() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxFilesReachedLocked()
}

func (s *Store) maxFilesReachedLocked() bool {
	return s.maxNumber > 0 && len(s.files) >= s.maxNumber
}

// Disabled reports whether the Store should refuse new files: a fatal
// message exists, the maximum is reached, or no context is bound.
func (s *Store) Disabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disabledLocked()
}

func (s *Store) disabledLocked() bool {
	for _, m := range s.messages {
		if m.Fatal {
			return true
		}
	}
	return s.maxFilesReachedLocked() || s.context == ""
}

// MaxNumber returns the maximum number of files; 0 is unlimited.
func (s *Store) MaxNumber() int { return s.maxNumber }

// MaxSize returns the size limit in bytes Filter enforces.
func (s *Store) MaxSize() int64 { return s.maxSize }

// Accept returns the accept filter Filter enforces.
func (s *Store) Accept() string { return s.accept }

// Texts returns the Store's message templates.
func (s *Store) Texts() Texts { return s.texts }

// AutoSave reports whether files are saved as soon as they are loaded.
func (s *Store) AutoSave() bool { return s.autoSave }

// AutoLoad reports whether files are loaded as soon as they are added.
func (s *Store) AutoLoad() bool { return s.autoLoad }

// SaveBase64 reports whether files capture a base64 preview when loaded.
func (s *Store) SaveBase64() bool { return s.saveBase64 }

// AddValidationMessage appends m to the Store's messages.
func (s *Store) AddValidationMessage(m ValidationMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessagesChanged})
}

// RemoveValidationMessage removes the message with the provided ID,
// reporting whether it was found.
func (s *Store) RemoveValidationMessage(id string) bool {
	s.mu.Lock()
	pos := -1
	for i, m := range s.messages {
		if m.ID == id {
			pos = i
			break
		}
	}
	if pos == -1 {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages[:pos:pos], s.messages[pos+1:]...)
	s.mu.Unlock()
	s.emit(Event{Kind: EventMessagesChanged})
	return true
}

// ValidationMessages returns the Store's messages in the order they were
// added.
func (s *Store) ValidationMessages() []ValidationMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := make([]ValidationMessage, len(s.messages))
	copy(messages, s.messages)
	return messages
}

// Snapshot returns a copy of the Store's observable state.
func (s *Store) Snapshot() StoreSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := StoreSnapshot{
		Context:            s.context,
		Files:              make([]FileSnapshot, 0, len(s.files)),
		ValidationMessages: make([]ValidationMessage, len(s.messages)),
		Disabled:           s.disabledLocked(),
		MaxFilesReached:    s.maxFilesReachedLocked(),
	}
	for _, f := range s.files {
		snap.Files = append(snap.Files, f.Snapshot())
	}
	copy(snap.ValidationMessages, s.messages)
	return snap
}

// Observe registers fn to be called after every change to the Store or its
// files. Calling the returned function unregisters it.
func (s *Store) Observe(fn func(Event)) func() {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	return func() {
		s.observersMu.Lock()
		defer s.observersMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) emit(e Event) {
	s.observersMu.Lock()
	observers := make([]func(Event), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.observersMu.Unlock()
	for _, fn := range observers {
		fn(e)
	}
}

func (s *Store) fileChanged(f *File) {
	s.emit(Event{Kind: EventFileChanged, File: f.Name()})
}

// publish hands the current context and persisted files to the
// subscription handler. Payloads are computed and delivered under pubMu, so
// the handler never sees an older set after a newer one.
func (s *Store) publish() {
	if s.subscriptions == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.subscriptions(s.Guids())
}

func (s *Store) clearSubscriptions() {
	if s.subscriptions == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.subscriptions(Guids{})
}

func (s *Store) indexLocked(f *File) int {
	for i, candidate := range s.files {
		if candidate == f {
			return i
		}
	}
	return -1
}

func (s *Store) indexByNameLocked(name string) int {
	for i, f := range s.files {
		if f.Name() == name {
			return i
		}
	}
	return -1
}
