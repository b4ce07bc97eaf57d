package dropper_test

import (
	"io"
	"testing"

	"github.com/spf13/afero"
	"impractical.co/dropper"
)

func TestOpenFile(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	gif := make([]byte, 64)
	copy(gif, "GIF89a")
	if err := afero.WriteFile(fs, "/uploads/cat.gif", gif, 0o644); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if err := afero.WriteFile(fs, "/uploads/notes.txt", []byte("hello, world"), 0o644); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}

	table := map[string]struct {
		path        string
		name        string
		size        int64
		contentType string
	}{
		"gif":  {path: "/uploads/cat.gif", name: "cat.gif", size: 64, contentType: "image/gif"},
		"text": {path: "/uploads/notes.txt", name: "notes.txt", size: 12, contentType: "text/plain"},
	}
	for id, testcase := range table {
		raw, err := dropper.OpenFile(fs, testcase.path)
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", id, err)
		}
		if raw.Name() != testcase.name || raw.Size() != testcase.size || raw.ContentType() != testcase.contentType {
			t.Errorf("%s: expected %s (%d bytes, %s), got %s (%d bytes, %s)", id, testcase.name, testcase.size, testcase.contentType, raw.Name(), raw.Size(), raw.ContentType())
		}
		rc, err := raw.Open()
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", id, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil || int64(len(b)) != testcase.size {
			t.Errorf("%s: expected to read %d bytes, got %d (%v)", id, testcase.size, len(b), err)
		}
	}

	if _, err := dropper.OpenFile(fs, "/uploads/missing.txt"); err == nil {
		t.Errorf("Expected an error opening a missing file")
	}
	if _, err := dropper.OpenFile(fs, "/uploads"); err == nil {
		t.Errorf("Expected an error opening a directory")
	}
}
