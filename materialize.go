package dropper

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"yall.in"
)

// PreviewSizeLimit is the largest file, in bytes, that LoadInMemory will
// build a base64 preview for.
const PreviewSizeLimit = 20 * 1024 * 1024

const dataURIMarker = ";base64,"

// ErrInvalidDataURI is returned when a string handed to DecodeDataURI isn't
// a base64 data URI.
var ErrInvalidDataURI = errors.New("not a base64 data URI")

// Parts holds the in-memory representation of a file: its bytes, and, when
// a preview was requested, a base64 data URI of those bytes.
type Parts struct {
	Data   []byte
	Base64 string
}

// LoadInMemory reads the provided RawFile into memory. If preview is true
// and the file is no larger than PreviewSizeLimit, the content is encoded
// into a base64 data URI and the returned Data is decoded back out of that
// URI. Otherwise the bytes are returned as-is with an empty Base64.
//
// Cancelling ctx aborts the read.
func LoadInMemory(ctx context.Context, raw RawFile, preview bool) (Parts, error) {
	if raw == nil {
		return Parts{}, ErrEmptyFile
	}
	log := yall.FromContext(ctx)
	log = log.WithField("dropper.raw", fmt.Sprintf("%T", raw))
	log = log.WithField("dropper.size", raw.Size())
	log = log.WithField("dropper.preview", preview)

	if !preview || raw.Size() > PreviewSizeLimit {
		log.Debug("[dropper] reading file without preview")
		var buf bytes.Buffer
		if err := copyRaw(ctx, &buf, raw); err != nil {
			return Parts{}, err
		}
		data := buf.Bytes()
		if data == nil {
			data = []byte{}
		}
		return Parts{Data: data}, nil
	}

	if raw.Size() == 0 {
		log.Debug("[dropper] empty file, nothing to read")
		return Parts{Data: []byte{}}, nil
	}

	contentType := raw.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// set up a writer that'll build the data URI as the file streams in
	var uri strings.Builder
	uri.WriteString("data:" + contentType + dataURIMarker)
	encoder := base64.NewEncoder(base64.StdEncoding, &uri)

	log.Debug("[dropper] starting preview encoding")
	if err := copyRaw(ctx, encoder, raw); err != nil {
		return Parts{}, err
	}
	if err := encoder.Close(); err != nil {
		return Parts{}, fmt.Errorf("error finishing preview of %s: %w", raw.Name(), err)
	}

	data, err := DecodeDataURI(uri.String())
	if err != nil {
		return Parts{}, fmt.Errorf("error decoding preview of %s: %w", raw.Name(), err)
	}
	log.WithField("dropper.preview_length", uri.Len()).Debug("[dropper] preview encoded")
	return Parts{Data: data, Base64: uri.String()}, nil
}

// DecodeDataURI returns the bytes encoded in a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	_, encoded, ok := strings.Cut(uri, dataURIMarker)
	if !ok || !strings.HasPrefix(uri, "data:") {
		return nil, ErrInvalidDataURI
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Hash returns the fingerprint used to identify a preview string.
func Hash(preview string) string {
	sum := md5.Sum([]byte(preview))
	return hex.EncodeToString(sum[:])
}

func copyRaw(ctx context.Context, dst io.Writer, raw RawFile) error {
	rc, err := raw.Open()
	if err != nil {
		return fmt.Errorf("error opening %s: %w", raw.Name(), err)
	}
	defer rc.Close()

	_, err = io.Copy(dst, &ctxReader{ctx: ctx, r: rc})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("loading file %s aborted: %w", raw.Name(), ctx.Err())
		}
		return fmt.Errorf("error reading %s: %w", raw.Name(), err)
	}
	return nil
}

// ctxReader stops reading as soon as its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
