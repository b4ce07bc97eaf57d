package host_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"testing"

	"impractical.co/dropper/host"
	"impractical.co/dropper/memory"
	yall "yall.in"
	"yall.in/colour"
)

type Factory interface {
	NewStorer(ctx context.Context) (host.DocumentStore, error)
	TeardownStorers() error
}

var factories []Factory

func TestMain(m *testing.M) {
	flag.Parse()

	// set up our test storers
	factories = append(factories, memory.Factory{})

	// run the tests
	result := m.Run()

	// tear down all the storers we created
	for _, factory := range factories {
		err := factory.TeardownStorers()
		if err != nil {
			log.Printf("Error cleaning up after %T: %+v\n", factory, err)
		}
	}

	// return the test result
	os.Exit(result)
}

func runTest(t *testing.T, f func(*testing.T, host.DocumentStore, context.Context)) {
	t.Parallel()
	logger := yall.New(colour.New(os.Stdout, yall.Debug))
	for _, factory := range factories {
		ctx := yall.InContext(context.Background(), logger)
		storer, err := factory.NewStorer(ctx)
		if err != nil {
			t.Fatalf("Error creating DocumentStore from %T: %+v\n", factory, err)
		}
		t.Run(fmt.Sprintf("Storer=%T", storer), func(t *testing.T) {
			t.Parallel()
			f(t, storer, ctx)
		})
	}
}

func gifHeader() []byte {
	out := make([]byte, 2048)
	copy(out, "GIF89a")
	return out
}

func TestUploadDownloadDelete(t *testing.T) {
	type input struct {
		guid string
		data []byte
	}
	type output struct {
		doc host.Document
	}
	type uploadTest struct {
		in  input
		out output
	}
	table := map[string]uploadTest{
		"helloworld": {
			in:  input{data: []byte("hello, world"), guid: "d4a1c2a8-5f0e-4d3b-9d0a-0e8c5a7f1b21"},
			out: output{doc: host.Document{SHA256: "09ca7e4eaa6e8ae9c7d261167129184883644d07dfba7cbfbc4c8a2e08360d5b", Size: 12, ContentType: "text/plain; charset=utf-8"}},
		},
		"gif": {
			in:  input{data: gifHeader(), guid: "8f14e45f-ceea-467f-a0e6-5f8f1c2b7e10"},
			out: output{doc: host.Document{Size: 2048, ContentType: "image/gif"}},
		},
	}
	for id, testcase := range table {
		id, testcase := id, testcase
		t.Run("ID="+id, func(t *testing.T) {
			runTest(t, func(t *testing.T, storer host.DocumentStore, ctx context.Context) {
				result, err := host.Upload(ctx, storer, io.NopCloser(bytes.NewReader(testcase.in.data)), testcase.in.guid)
				if err != nil {
					t.Errorf("Unexpected error: %s", err)
					return
				}
				if result.GUID != testcase.in.guid {
					t.Errorf("Expected GUID to be %q, got %q", testcase.in.guid, result.GUID)
					return
				}
				if result.Size != testcase.out.doc.Size {
					t.Errorf("Expected size to be %d, got %d", testcase.out.doc.Size, result.Size)
					return
				}
				if testcase.out.doc.SHA256 != "" && result.SHA256 != testcase.out.doc.SHA256 {
					t.Errorf("Expected SHA256 to be %q, got %q", testcase.out.doc.SHA256, result.SHA256)
					return
				}
				if result.ContentType != testcase.out.doc.ContentType {
					t.Errorf("Expected content type to be %q, got %q", testcase.out.doc.ContentType, result.ContentType)
					return
				}

				var buf bytes.Buffer
				err = host.Download(ctx, storer, &buf, testcase.in.guid)
				if err != nil {
					t.Errorf("Unexpected error: %s", err)
					return
				}
				b := buf.Bytes()
				if !bytes.Equal(testcase.in.data, b) {
					t.Errorf("Expected download to be %q, got %q", hex.EncodeToString(testcase.in.data), hex.EncodeToString(b))
					return
				}

				err = storer.Delete(ctx, testcase.in.guid)
				if err != nil {
					t.Errorf("Unexpected error: %s", err)
					return
				}
				buf = bytes.Buffer{}
				err = host.Download(ctx, storer, &buf, testcase.in.guid)
				if !errors.Is(err, host.ErrDocumentNotFound) {
					t.Errorf("Expected %q, got %q", host.ErrDocumentNotFound, err)
					return
				}
				err = storer.Delete(ctx, testcase.in.guid)
				if err != nil {
					t.Errorf("Unexpected error: %s", err)
					return
				}
			})
		})
	}
}

func TestUploadReplaces(t *testing.T) {
	runTest(t, func(t *testing.T, storer host.DocumentStore, ctx context.Context) {
		guid := "2b5c7e0a-1f3d-4c6e-8a9b-0d1e2f3a4b5c"
		_, err := host.Upload(ctx, storer, bytes.NewReader([]byte("first")), guid)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		_, err = host.Upload(ctx, storer, bytes.NewReader([]byte("second")), guid)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		var buf bytes.Buffer
		if err := host.Download(ctx, storer, &buf, guid); err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if buf.String() != "second" {
			t.Errorf("Expected download to be %q, got %q", "second", buf.String())
		}
		doc, err := storer.Stat(ctx, guid)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if doc.Size != 6 {
			t.Errorf("Expected size to be %d, got %d", 6, doc.Size)
		}
	})
}

func TestEntity(t *testing.T) {
	t.Parallel()
	e := host.Entity{
		Name:            "MyModule.Photo",
		Generalizations: []string{host.Image, host.FileDocument},
		Attributes:      []string{"Name", "Size"},
		References:      []string{"MyModule.Photo_Album"},
	}
	if !e.IsA("MyModule.Photo") || !e.IsA(host.Image) || !e.IsA(host.FileDocument) {
		t.Errorf("Expected %s to be an image and a file document", e.Name)
	}
	if e.IsA("MyModule.Album") {
		t.Errorf("Expected %s not to be a MyModule.Album", e.Name)
	}
	if !e.Has("Size") || !e.Has("MyModule.Photo_Album") {
		t.Errorf("Expected %s to have Size and MyModule.Photo_Album", e.Name)
	}
	if e.Has("Extension") {
		t.Errorf("Expected %s not to have Extension", e.Name)
	}
}

func TestObjectClone(t *testing.T) {
	t.Parallel()
	o := &host.Object{GUID: "1"}
	o.Set("Name", "a.txt")
	o.AddReference("MyModule.File_Folder", "2")
	c := o.Clone()
	c.Set("Name", "b.txt")
	c.AddReference("MyModule.File_Folder", "3")
	if o.Get("Name") != "a.txt" || o.References["MyModule.File_Folder"] != "2" {
		t.Errorf("Expected clone not to share maps with the original, got %+v", o)
	}
	if (host.Action{}).Empty() != true {
		t.Errorf("Expected zero Action to be empty")
	}
	if (host.Action{Nanoflow: "NF"}).String() != "NF" {
		t.Errorf("Expected Action to name its nanoflow")
	}
}
