// Package commit persists dropped files as objects on a host platform. Its
// Adapter provides the save, delete and verify functions a dropper.Store
// is configured with.
package commit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"impractical.co/dropper"
	"impractical.co/dropper/host"
	"yall.in"
)

// ErrNoUploader is returned when files are to be saved with PostRequest but
// the Adapter has no Uploader.
var ErrNoUploader = errors.New("no uploader configured for post requests")

// SaveMethod selects how a file's contents reach the host.
type SaveMethod string

const (
	// SaveDocument hands the contents to the platform's document API.
	SaveDocument SaveMethod = "saveDocument"
	// PostRequest sends the contents to the host's file endpoint.
	PostRequest SaveMethod = "postRequest"
)

// Verification configures the check a file goes through before it is
// committed: an object of Entity is filled in with the file's details and
// handed to BeforeAccept, which returns a reason to reject the file or
// nothing.
type Verification struct {
	Entity       string
	NameAttr     string
	SizeAttr     string
	TypeAttr     string
	ExtAttr      string
	BeforeAccept host.Action
}

// Config names the entity files are stored as, and the attributes,
// association and actions involved in storing them.
type Config struct {
	Entity      string
	NameAttr    string
	TypeAttr    string
	ExtAttr     string
	Association string
	SaveMethod  SaveMethod

	// OnAccept is the microflow deciding whether a saved file is kept.
	OnAccept     string
	Verification Verification
	AfterCommit  host.Action
}

// Store is the part of a dropper.Store the Adapter reports back to.
type Store interface {
	Context() string
	Texts() dropper.Texts
	AddValidationMessage(dropper.ValidationMessage)
	DeleteFile(ctx context.Context, f *dropper.File) bool
}

// Uploader sends the contents of a file to the host as the document of the
// object identified by guid.
type Uploader interface {
	Upload(ctx context.Context, guid string, f *dropper.File) error
}

// Adapter saves, deletes and verifies dropper Files against a host
// platform.
type Adapter struct {
	platform host.Platform
	actions  host.ActionRunner
	uploader Uploader
	cfg      Config

	mu    sync.RWMutex
	store Store

	running sync.WaitGroup
}

// New returns an Adapter. uploader may be nil unless cfg.SaveMethod is
// PostRequest.
func New(platform host.Platform, actions host.ActionRunner, uploader Uploader, cfg Config) *Adapter {
	if cfg.SaveMethod == "" {
		cfg.SaveMethod = SaveDocument
	}
	return &Adapter{
		platform: platform,
		actions:  actions,
		uploader: uploader,
		cfg:      cfg,
	}
}

// Attach points the Adapter at the Store it saves files for. It must be
// called before the Store starts saving files.
func (a *Adapter) Attach(s Store) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store = s
}

func (a *Adapter) getStore() Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// Options returns a copy of opts with the Adapter's functions filled in.
func (a *Adapter) Options(opts dropper.Options) dropper.Options {
	opts.Save = a.Save
	opts.Delete = a.Delete
	opts.Verify = a.Verify
	return opts
}

// Save persists f as a new object. Files rejected by the before-commit
// verification are removed from the Store and reported as unsaved; any
// other failure removes the half-created object and is returned.
func (a *Adapter) Save(ctx context.Context, f *dropper.File) (bool, error) {
	log := yall.FromContext(ctx).WithField("commit.entity", a.cfg.Entity)
	ctx = yall.InContext(ctx, log)

	data := f.Data()
	if data == nil {
		log.Debug("[commit] file has no data, not saving")
		return false, nil
	}

	accepted, err := a.verifyBeforeCommit(ctx, f)
	if err != nil {
		f.SetLoadProgress(0)
		return false, fmt.Errorf("error testing file: %w", err)
	}
	if !accepted {
		return false, nil
	}

	obj, err := a.platform.Create(ctx, a.cfg.Entity)
	if err != nil {
		f.SetLoadProgress(0)
		return false, fmt.Errorf("error creating %s: %w", a.cfg.Entity, err)
	}
	log = log.WithField("commit.guid", obj.GUID)

	if err := a.persist(yall.InContext(ctx, log), f, obj, data); err != nil {
		log.WithError(err).Error("[commit] error saving file")
		f.SetLoadProgress(0)
		f.SetGUID("")
		if rmErr := a.platform.Remove(ctx, obj.GUID); rmErr != nil {
			log.WithError(rmErr).Warn("[commit] error removing object of failed save")
		}
		return false, err
	}

	a.afterCommit(ctx, obj)
	log.Debug("[commit] file saved")
	return true, nil
}

func (a *Adapter) persist(ctx context.Context, f *dropper.File, obj *host.Object, data []byte) error {
	log := yall.FromContext(ctx)

	entity, err := a.platform.Entity(ctx, a.cfg.Entity)
	if err != nil {
		return err
	}

	if store := a.getStore(); store != nil && a.cfg.Association != "" {
		if id := store.Context(); id != "" {
			ref, _, _ := strings.Cut(a.cfg.Association, "/")
			if ref != "" && entity.Has(ref) {
				obj.AddReference(ref, id)
				f.SetBoundTo(id)
			}
		}
	}

	contentType := contentTypeOf(f)
	if a.cfg.NameAttr != "" {
		obj.Set(a.cfg.NameAttr, f.Name())
	}
	if a.cfg.TypeAttr != "" && contentType != "" {
		obj.Set(a.cfg.TypeAttr, contentType)
	}
	if a.cfg.ExtAttr != "" && contentType != "" {
		obj.Set(a.cfg.ExtAttr, Extension(contentType))
	}

	if err := a.platform.Commit(ctx, obj); err != nil {
		return fmt.Errorf("error committing %s: %w", obj.GUID, err)
	}
	f.SetGUID(obj.GUID)

	switch a.cfg.SaveMethod {
	case PostRequest:
		if a.uploader == nil {
			return ErrNoUploader
		}
		log.Debug("[commit] posting file contents")
		if err := a.uploader.Upload(ctx, obj.GUID, f); err != nil {
			return fmt.Errorf("error posting contents of %s: %w", f.Name(), err)
		}
		if err := a.platform.Commit(ctx, obj); err != nil {
			return fmt.Errorf("error committing %s: %w", obj.GUID, err)
		}
	default:
		f.SetLoadProgress(50)
		log.Debug("[commit] saving document")
		if err := a.platform.SaveDocument(ctx, obj.GUID, f.Name(), bytes.NewReader(data)); err != nil {
			return fmt.Errorf("error saving document %s: %w", f.Name(), err)
		}
		if err := a.platform.Commit(ctx, obj); err != nil {
			return fmt.Errorf("error committing %s: %w", obj.GUID, err)
		}
		f.SetLoadProgress(100)
	}

	if entity.IsA(host.Image) {
		f.SetPreviewURL(a.platform.DocumentURL(obj) + "&target=window")
	}
	return nil
}

// verifyBeforeCommit runs the before-commit verification, if configured. A
// rejected file is reported on and removed from the Store.
func (a *Adapter) verifyBeforeCommit(ctx context.Context, f *dropper.File) (bool, error) {
	v := a.cfg.Verification
	if v.Entity == "" || v.BeforeAccept.Empty() {
		return true, nil
	}
	log := yall.FromContext(ctx).WithField("commit.verification", v.Entity)

	obj, err := a.platform.Create(ctx, v.Entity)
	if err != nil {
		return false, err
	}
	defer func() {
		if err := a.platform.Remove(ctx, obj.GUID); err != nil {
			log.WithError(err).Warn("[commit] error removing verification object")
		}
	}()

	contentType := contentTypeOf(f)
	if v.NameAttr != "" {
		obj.Set(v.NameAttr, f.Name())
	}
	if v.SizeAttr != "" {
		var size int64
		if raw := f.Raw(); raw != nil {
			size = raw.Size()
		}
		obj.Set(v.SizeAttr, size)
	}
	if v.TypeAttr != "" && contentType != "" {
		obj.Set(v.TypeAttr, contentType)
	}
	if v.ExtAttr != "" && contentType != "" {
		obj.Set(v.ExtAttr, Extension(contentType))
	}
	if err := a.platform.Commit(ctx, obj); err != nil {
		return false, err
	}

	log.WithField("commit.action", v.BeforeAccept.String()).Debug("[commit] running verification")
	res, err := a.actions.Run(ctx, v.BeforeAccept, obj)
	if err != nil {
		return false, err
	}
	reason, _ := res.(string)
	if reason == "" {
		return true, nil
	}

	log.WithField("commit.reason", reason).Debug("[commit] file rejected before commit")
	if store := a.getStore(); store != nil {
		store.AddValidationMessage(dropper.NewValidationMessage(
			store.Texts().RejectedByServer(f.Name(), reason),
			dropper.SeverityWarning,
		))
		store.DeleteFile(ctx, f)
	}
	return false, nil
}

// afterCommit fires the after-commit action without waiting for it.
func (a *Adapter) afterCommit(ctx context.Context, obj *host.Object) {
	action := a.cfg.AfterCommit
	if action.Empty() {
		return
	}
	log := yall.FromContext(ctx).WithField("commit.action", action.String())
	ctx = context.WithoutCancel(ctx)

	a.running.Add(1)
	go func() {
		defer a.running.Done()
		if _, err := a.actions.Run(ctx, action, obj); err != nil {
			log.WithError(err).Error("[commit] an error occurred while executing action " + action.String())
		}
	}()
}

// Wait blocks until every after-commit action has returned.
func (a *Adapter) Wait() {
	a.running.Wait()
}

// Delete removes the object of a saved or failed file. Files that never
// made it to the host are deleted trivially.
func (a *Adapter) Delete(ctx context.Context, f *dropper.File) (bool, error) {
	status, guid := f.Status(), f.GUID()
	if (status != dropper.StatusSaved && status != dropper.StatusError) || guid == "" {
		return true, nil
	}
	if err := a.platform.Remove(ctx, guid); err != nil {
		return false, fmt.Errorf("error deleting %s: %w", guid, err)
	}
	yall.FromContext(ctx).WithField("commit.guid", guid).Debug("[commit] object removed")
	return true, nil
}

// Verify runs the on-accept microflow for a saved file. Without one, every
// file is accepted; files whose object is gone never are.
func (a *Adapter) Verify(ctx context.Context, f *dropper.File) (bool, error) {
	if a.cfg.OnAccept == "" {
		return true, nil
	}
	guid := f.GUID()
	if guid == "" {
		return false, nil
	}
	obj, err := a.platform.Get(ctx, guid)
	if errors.Is(err, host.ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res, err := a.actions.Run(ctx, host.Action{Microflow: a.cfg.OnAccept}, obj)
	if err != nil {
		yall.FromContext(ctx).WithError(err).WithField("commit.action", a.cfg.OnAccept).Warn("[commit] verification failed")
		return false, nil
	}
	accepted, _ := res.(bool)
	return accepted, nil
}

func contentTypeOf(f *dropper.File) string {
	if raw := f.Raw(); raw != nil {
		return raw.ContentType()
	}
	return ""
}

// Extension returns the preferred file extension for a MIME type, without a
// leading dot, or an empty string when the type is unknown.
func Extension(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	mime := mimetype.Lookup(strings.TrimSpace(base))
	if mime == nil {
		return ""
	}
	return strings.TrimPrefix(mime.Extension(), ".")
}
