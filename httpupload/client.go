// Package httpupload sends file contents to a host's file endpoint as a
// multipart POST, the way the host's own client does, reporting upload
// progress on the file as it goes.
package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"impractical.co/dropper"
	"yall.in"
)

// ErrUnexpectedStatus is returned when the host answers an upload with a
// non-2xx status code.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Client posts file contents to <BaseURL>/file?guid=<guid>.
type Client struct {
	baseURL    string
	csrfToken  string
	httpClient *http.Client
	now        func() time.Time

	requests atomic.Int64
}

// New returns a Client for the host at baseURL. csrfToken is sent along
// with every request; hc may be nil to use http.DefaultClient.
func New(baseURL, csrfToken string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		csrfToken:  csrfToken,
		httpClient: hc,
		now:        time.Now,
	}
}

// envelope is the empty change set the host expects next to the blob.
type envelope struct {
	Changes map[string]any `json:"changes"`
	Objects []any          `json:"objects"`
}

// Upload sends the materialized contents of f as the document of the object
// identified by guid.
func (c *Client) Upload(ctx context.Context, guid string, f *dropper.File) error {
	data := f.Data()
	if data == nil {
		return dropper.ErrNoData
	}
	log := yall.FromContext(ctx).WithField("httpupload.guid", guid).WithField("httpupload.file", f.Name())

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	meta, err := json.Marshal(envelope{Changes: map[string]any{}, Objects: []any{}})
	if err != nil {
		return fmt.Errorf("error encoding data field: %w", err)
	}
	if err := w.WriteField("data", string(meta)); err != nil {
		return fmt.Errorf("error writing data field: %w", err)
	}
	fw, err := w.CreateFormFile("blob", f.Name())
	if err != nil {
		return fmt.Errorf("error creating blob field: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("error writing blob field: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("error closing multipart writer: %w", err)
	}

	total := int64(body.Len())
	reader := &progressReader{r: &body, total: total, last: -1, report: f.SetLoadProgress}
	u := c.baseURL + "/file?guid=" + url.QueryEscape(guid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.ContentLength = total
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Csrf-Token", c.csrfToken)
	req.Header.Set("X-Mx-ReqToken", c.requestID())
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	log.WithField("httpupload.size", total).Debug("[httpupload] posting file")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error posting file: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	log.Debug("[httpupload] file posted")
	return nil
}

// requestID returns an identifier unique to this client: the current time
// in milliseconds and a running request count.
func (c *Client) requestID() string {
	n := c.requests.Add(1) - 1
	return fmt.Sprintf("%d-%d", c.now().UnixMilli(), n)
}

// progressReader reports how much of the request body has been read, as a
// percentage, whenever that percentage changes.
type progressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.loaded += int64(n)
	if p.total > 0 {
		perc := int(p.loaded * 100 / p.total)
		if perc < 0 {
			perc = 0
		}
		if perc > 100 {
			perc = 100
		}
		if perc != p.last {
			p.last = perc
			p.report(perc)
		}
	}
	return n, err
}
