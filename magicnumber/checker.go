package magicnumber

import (
	"errors"
	"path"
	"strings"

	"github.com/h2non/filetype"
)

// the minimum number of bytes needed to determine the MIME type.
const minBytesNeeded = 261

// ErrUnsupportedFile is returned when the detected MIME type of the file isn't
// accepted by the Checker's Accept filter, or no MIME type could be detected.
var ErrUnsupportedFile = errors.New("unsupported file")

// Accept is a parsed accept filter, in the format of the HTML accept
// attribute: a comma-separated list of MIME types ("application/pdf"), MIME
// type wildcards ("image/*") and file extensions (".txt").
type Accept struct {
	mimes      []string
	wildcards  []string
	extensions []string
}

// ParseAccept parses an accept filter. Empty entries are ignored.
func ParseAccept(accept string) Accept {
	var a Accept
	for _, entry := range strings.Split(accept, ",") {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.HasPrefix(entry, "."):
			a.extensions = append(a.extensions, entry)
		case strings.HasSuffix(entry, "/*"):
			a.wildcards = append(a.wildcards, strings.TrimSuffix(entry, "*"))
		default:
			a.mimes = append(a.mimes, entry)
		}
	}
	return a
}

// Empty reports whether the filter accepts everything.
func (a Accept) Empty() bool {
	return len(a.mimes) == 0 && len(a.wildcards) == 0 && len(a.extensions) == 0
}

// MatchMIME reports whether the MIME type is accepted. Parameters such as
// charset are ignored.
func (a Accept) MatchMIME(mime string) bool {
	if a.Empty() {
		return true
	}
	mime, _, _ = strings.Cut(mime, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return false
	}
	for _, m := range a.mimes {
		if m == mime {
			return true
		}
	}
	for _, w := range a.wildcards {
		if strings.HasPrefix(mime, w) {
			return true
		}
	}
	return false
}

// MatchName reports whether the file name has an accepted extension.
func (a Accept) MatchName(name string) bool {
	if a.Empty() {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range a.extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Checker is an io.WriteCloser that will check to see if the data passed to it
// is for a file with a MIME type accepted by Accept. If so, MatchedMIME will be
// set to the MIME type matched and Write and Close will return no error.
// Otherwise, ErrUnsupportedFile is returned, either from Write as soon as we
// can tell what MIME type the file is, or from Close if no MIME type has been
// detected.
type Checker struct {
	buf         []byte
	Accept      Accept
	MatchedMIME string
}

// Write checks the incoming data for magic number bytes that will indicate the
// MIME type of the data. Once a MIME type is matched, no more data is read
// into memory, and the function is a no-op. If a MIME type is detected that
// isn't accepted, ErrUnsupportedFile is returned.
func (m *Checker) Write(b []byte) (int, error) {
	if m.MatchedMIME != "" {
		return len(b), nil
	}
	m.buf = append(m.buf, b...)
	if len(m.buf) < minBytesNeeded {
		return len(b), nil
	}
	if m.match() {
		return len(b), nil
	}
	return len(b), ErrUnsupportedFile
}

// Close makes a last attempt at detecting a MIME type for files shorter than
// the bytes usually needed, and returns ErrUnsupportedFile if no accepted MIME
// type was detected.
func (m *Checker) Close() error {
	if m.MatchedMIME != "" {
		return nil
	}
	if len(m.buf) > 0 && len(m.buf) < minBytesNeeded && m.match() {
		return nil
	}
	return ErrUnsupportedFile
}

func (m *Checker) match() bool {
	kind, err := filetype.Match(m.buf)
	if err != nil || kind == filetype.Unknown {
		return false
	}
	if !m.Accept.MatchMIME(kind.MIME.Value) {
		return false
	}
	m.MatchedMIME = kind.MIME.Value
	m.buf = nil
	return true
}
