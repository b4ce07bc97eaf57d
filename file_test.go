package dropper_test

import (
	"context"
	"testing"

	"impractical.co/dropper"
)

func TestSaveFileGuards(t *testing.T) {
	for _, status := range []dropper.Status{dropper.StatusNotLoaded, dropper.StatusPending, dropper.StatusSaved, dropper.StatusError} {
		status := status
		t.Run("Status="+string(status), func(t *testing.T) {
			t.Parallel()
			calls := 0
			f := dropper.NewFile(textFile("a.txt", 10), func(context.Context, *dropper.File) (bool, error) {
				calls++
				return true, nil
			}, true)
			f.SetStatus(status)
			f.SaveFile(baseCtx)
			if f.Status() != status {
				t.Errorf("Expected status to stay %q, got %q", status, f.Status())
			}
			if calls != 0 {
				t.Errorf("Expected save adapter not to be called, got %d calls", calls)
			}
		})
	}
}

func TestSaveFileWithoutAdapter(t *testing.T) {
	t.Parallel()
	f := dropper.NewFile(textFile("a.txt", 10), nil, true)
	f.LoadFile(baseCtx)
	f.SaveFile(baseCtx)
	if f.Status() != dropper.StatusLoaded {
		t.Errorf("Expected status to stay %q, got %q", dropper.StatusLoaded, f.Status())
	}
}

func TestSaveFileWithoutRaw(t *testing.T) {
	t.Parallel()
	calls := 0
	f := dropper.NewFile(nil, func(context.Context, *dropper.File) (bool, error) {
		calls++
		return true, nil
	}, true)
	f.LoadFile(baseCtx)
	if f.Status() != dropper.StatusNotLoaded {
		t.Errorf("Expected file without raw to stay %q, got %q", dropper.StatusNotLoaded, f.Status())
	}
	f.SetStatus(dropper.StatusLoaded)
	f.SaveFile(baseCtx)
	if f.Status() != dropper.StatusLoaded || calls != 0 {
		t.Errorf("Expected file without raw not to be saved, got %q after %d calls", f.Status(), calls)
	}
}

func TestLoadFileGuards(t *testing.T) {
	for _, status := range []dropper.Status{dropper.StatusPending, dropper.StatusLoaded, dropper.StatusSaved, dropper.StatusError} {
		status := status
		t.Run("Status="+string(status), func(t *testing.T) {
			t.Parallel()
			f := dropper.NewFile(textFile("a.txt", 10), nil, true)
			f.SetStatus(status)
			f.LoadFile(baseCtx)
			if f.Status() != status {
				t.Errorf("Expected status to stay %q, got %q", status, f.Status())
			}
			if f.Data() != nil {
				t.Errorf("Expected no data to be loaded")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	type loadTest struct {
		raw        dropper.RawFile
		saveBase64 bool
		status     dropper.Status
		preview    bool
	}
	table := map[string]loadTest{
		"Preview":        {raw: textFile("a.txt", 100), saveBase64: true, status: dropper.StatusLoaded, preview: true},
		"NoPreview":      {raw: textFile("a.txt", 100), saveBase64: false, status: dropper.StatusLoaded},
		"Empty":          {raw: textFile("empty.txt", 0), saveBase64: true, status: dropper.StatusLoaded},
		"EmptyNoPreview": {raw: textFile("empty.txt", 0), saveBase64: false, status: dropper.StatusLoaded},
		"TooLarge": {
			raw:        &fakeRaw{name: "huge.bin", size: dropper.PreviewSizeLimit + 1, data: []byte("abc")},
			saveBase64: true,
			status:     dropper.StatusLoaded,
		},
	}
	for id, testcase := range table {
		id, testcase := id, testcase
		t.Run("ID="+id, func(t *testing.T) {
			t.Parallel()
			f := dropper.NewFile(testcase.raw, nil, testcase.saveBase64)
			f.LoadFile(baseCtx)
			if f.Status() != testcase.status {
				t.Fatalf("Expected status %q, got %q (error %q)", testcase.status, f.Status(), f.Error())
			}
			if f.Data() == nil {
				t.Errorf("Expected data to be set")
			}
			if testcase.preview && (f.Base64() == "" || f.Hash() == "") {
				t.Errorf("Expected preview and hash, got %q and %q", f.Base64(), f.Hash())
			}
			if !testcase.preview && f.Base64() != "" {
				t.Errorf("Expected no preview, got %q", f.Base64())
			}
		})
	}
}

func TestLoadFileCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(baseCtx)
	cancel()
	f := dropper.NewFile(textFile("a.txt", 100), nil, true)
	f.LoadFile(ctx)
	if f.Status() != dropper.StatusError {
		t.Errorf("Expected status %q, got %q", dropper.StatusError, f.Status())
	}
	if f.Data() != nil || f.Base64() != "" {
		t.Errorf("Expected data and preview to be cleared")
	}
}

func TestSetters(t *testing.T) {
	t.Parallel()
	changes := 0
	store := dropper.NewStore(dropper.Options{AutoLoad: dropper.Bool(false)})
	store.Observe(func(e dropper.Event) {
		if e.Kind == dropper.EventFileChanged {
			changes++
		}
	})
	f := store.AddFile(baseCtx, textFile("a.txt", 1))
	store.Wait()

	f.SetLoadProgress(150)
	if f.LoadProgress() != 100 {
		t.Errorf("Expected progress to be clamped to 100, got %d", f.LoadProgress())
	}
	f.SetLoadProgress(-5)
	if f.LoadProgress() != 0 {
		t.Errorf("Expected progress to be clamped to 0, got %d", f.LoadProgress())
	}
	f.SetPreviewURL("http://localhost/file?guid=1")
	f.SetBoundTo("parent")
	f.SetGUID("1")
	f.SetDeletable(false)
	f.SetError(nil)

	snap := f.Snapshot()
	if snap.PreviewURL != "http://localhost/file?guid=1" || snap.BoundTo != "parent" || snap.GUID != "1" || snap.Deletable {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
	if snap.Status != dropper.StatusError || snap.Error != "unknown error" {
		t.Errorf("Expected error status with %q, got %q with %q", "unknown error", snap.Status, snap.Error)
	}
	if changes != 7 {
		t.Errorf("Expected 7 change events, got %d", changes)
	}
}
