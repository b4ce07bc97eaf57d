package dropper

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

type memoryFile struct {
	name        string
	contentType string
	data        []byte
}

// NewRawFile returns a RawFile serving data from memory.
func NewRawFile(name, contentType string, data []byte) RawFile {
	return &memoryFile{name: name, contentType: contentType, data: data}
}

func (m *memoryFile) Name() string        { return m.name }
func (m *memoryFile) Size() int64         { return int64(len(m.data)) }
func (m *memoryFile) ContentType() string { return m.contentType }

func (m *memoryFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}

type fsFile struct {
	fs          afero.Fs
	path        string
	size        int64
	contentType string
}

// OpenFile returns a RawFile for the file at path inside fs. The content
// type is detected from the file's contents.
func OpenFile(fs afero.Fs, path string) (RawFile, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error stating %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("error detecting content type of %s: %w", path, err)
	}
	return &fsFile{
		fs:          fs,
		path:        path,
		size:        info.Size(),
		contentType: baseMIME(mime.String()),
	}, nil
}

func (f *fsFile) Name() string        { return filepath.Base(f.path) }
func (f *fsFile) Size() int64         { return f.size }
func (f *fsFile) ContentType() string { return f.contentType }

func (f *fsFile) Open() (io.ReadCloser, error) {
	return f.fs.Open(f.path)
}

// baseMIME strips parameters such as charset from a MIME type.
func baseMIME(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.TrimSpace(base)
}
