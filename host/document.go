package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"yall.in"
)

// Document describes a stored document.
type Document struct {
	GUID        string
	Size        int64
	ContentType string
	SHA256      string
}

// DocumentStore represents a destination for the contents of documents.
type DocumentStore interface {
	Upload(ctx context.Context, guid string) (io.WriteCloser, error)
	Download(ctx context.Context, guid string) (io.ReadCloser, error)
	Delete(ctx context.Context, guid string) error
	Stat(ctx context.Context, guid string) (Document, error)
}

// Upload performs a streaming upload of the data in the provided io.Reader,
// writing it to the provided DocumentStore as the document of guid and
// replacing any previous contents.
//
// If source is also an io.ReadCloser, its Close method will be called by
// Upload.
func Upload(ctx context.Context, s DocumentStore, source io.Reader, guid string) (Document, error) {
	log := yall.FromContext(ctx)
	log = log.WithField("host.store", fmt.Sprintf("%T", s))
	log = log.WithField("host.source", fmt.Sprintf("%T", source))
	log = log.WithField("host.guid", guid)

	// if we can, close the source when we're done
	if rc, ok := source.(io.ReadCloser); ok {
		defer rc.Close()
	}

	// set up a writer that'll record the hash of the uploaded document
	hasher := sha256.New()

	// set up a writer that'll keep the start of the document, to detect
	// its content type
	head := &headWriter{limit: 3072}

	// set up a writer that'll persist the uploaded data
	storer, err := s.Upload(yall.InContext(ctx, log), guid)
	if err != nil {
		return Document{}, fmt.Errorf("error starting upload to %T: %w", s, err)
	}

	w := io.MultiWriter(head, hasher, storer)

	log.Debug("[host] starting upload")
	size, err := io.Copy(w, source)
	if err != nil {
		storer.Close()
		return Document{}, fmt.Errorf("error uploading document to %T: %w", s, err)
	}
	if err := storer.Close(); err != nil {
		return Document{}, fmt.Errorf("error finishing upload to %T: %w", s, err)
	}

	log = log.WithField("host.size", size)
	log.Debug("[host] completed upload")
	return Document{
		GUID:        guid,
		Size:        size,
		ContentType: mimetype.Detect(head.buf).String(),
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Download writes the document of guid inside the provided DocumentStore to
// the provided io.Writer, returning an ErrDocumentNotFound error if there is
// no such document.
//
// If the provided io.Writer is also an io.WriteCloser, its Close method will
// be called by Download.
func Download(ctx context.Context, s DocumentStore, dst io.Writer, guid string) error {
	log := yall.FromContext(ctx)
	log = log.WithField("host.store", fmt.Sprintf("%T", s))
	log = log.WithField("host.destination", fmt.Sprintf("%T", dst))
	log = log.WithField("host.guid", guid)

	log.Debug("[host] downloading")

	// if our destination can be closed, close it when we're done
	if wc, ok := dst.(io.WriteCloser); ok {
		defer wc.Close()
	}

	// get a reader from our DocumentStore
	rc, err := s.Download(yall.InContext(ctx, log), guid)
	if err != nil {
		return fmt.Errorf("error starting download from %T: %w", s, err)
	}
	defer rc.Close()

	log.Debug("[host] starting data copy")
	_, err = io.Copy(dst, rc)
	if err != nil {
		return fmt.Errorf("error copying information from %T to %T: %w", rc, dst, err)
	}

	log.Debug("[host] download complete")
	return nil
}

// headWriter keeps the first limit bytes written to it.
type headWriter struct {
	buf   []byte
	limit int
}

func (h *headWriter) Write(p []byte) (int, error) {
	if room := h.limit - len(h.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		h.buf = append(h.buf, p[:room]...)
	}
	return len(p), nil
}
