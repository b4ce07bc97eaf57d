package memory

import (
	"bytes"
	"context"
	"io"

	"github.com/h2non/filetype"
	memdb "github.com/hashicorp/go-memdb"
	"impractical.co/dropper/host"
)

var _ host.DocumentStore = &Storer{}

var (
	documentSchema = &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"document": {
				Name: "document",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID", Lowercase: true},
					},
				},
			},
		},
	}
)

// Document is a stored document. Documents are immutable once inserted.
type Document struct {
	ID       string
	Contents []byte
}

// writer buffers an upload and inserts it into the database on Close.
type writer struct {
	id  string
	db  *memdb.MemDB
	buf bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	txn := w.db.Txn(true)
	defer txn.Abort()
	err := txn.Insert("document", &Document{ID: w.id, Contents: w.buf.Bytes()})
	if err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Storer is an in-memory host.DocumentStore.
type Storer struct {
	db *memdb.MemDB
}

// Upload returns a writer that replaces the document of guid when closed.
func (s *Storer) Upload(_ context.Context, guid string) (io.WriteCloser, error) {
	return &writer{id: guid, db: s.db}, nil
}

// Download returns the contents of the document of guid.
func (s *Storer) Download(_ context.Context, guid string) (io.ReadCloser, error) {
	txn := s.db.Txn(false)
	res, err := txn.First("document", "id", guid)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, host.ErrDocumentNotFound
	}
	return io.NopCloser(bytes.NewReader(res.(*Document).Contents)), nil
}

// Delete removes the document of guid, if there is one.
func (s *Storer) Delete(_ context.Context, guid string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	exists, err := txn.First("document", "id", guid)
	if err != nil {
		return err
	}
	if exists == nil {
		return nil
	}
	err = txn.Delete("document", exists)
	if err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Stat returns the size and sniffed content type of the document of guid.
func (s *Storer) Stat(_ context.Context, guid string) (host.Document, error) {
	txn := s.db.Txn(false)
	res, err := txn.First("document", "id", guid)
	if err != nil {
		return host.Document{}, err
	}
	if res == nil {
		return host.Document{}, host.ErrDocumentNotFound
	}
	d := res.(*Document)
	t, err := filetype.Match(d.Contents)
	if err != nil {
		return host.Document{}, err
	}
	return host.Document{
		GUID:        guid,
		ContentType: t.MIME.Value,
		Size:        int64(len(d.Contents)),
	}, nil
}

// NewStorer returns an empty Storer.
func NewStorer() (*Storer, error) {
	db, err := memdb.NewMemDB(documentSchema)
	if err != nil {
		return nil, err
	}
	return &Storer{
		db: db,
	}, nil
}
