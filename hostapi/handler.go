// Package hostapi serves the host's file endpoint: documents are uploaded
// to and downloaded from /file, keyed by the GUID of the object they
// belong to. Objects to attach documents to are created through /object.
package hostapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"impractical.co/dropper/host"
	"yall.in"
)

const maxUploadSize = 32 << 20 // 32MB held in memory, the rest spills to disk

// Handler provides the file endpoint handlers.
type Handler struct {
	platform  host.Platform
	documents host.DocumentStore
	log       *yall.Logger
}

// NewHandler creates a new Handler storing documents through platform and
// serving them from documents.
func NewHandler(platform host.Platform, documents host.DocumentStore, log *yall.Logger) *Handler {
	return &Handler{
		platform:  platform,
		documents: documents,
		log:       log,
	}
}

// Routes returns a chi.Router with the file routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(h.logRequests)

	r.Post("/object", h.create)
	r.Post("/file", h.upload)
	r.Get("/file", h.download)

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.log.WithField("hostapi.method", r.Method).
			WithField("hostapi.path", r.URL.Path).
			WithField("hostapi.request_id", chimw.GetReqID(r.Context()))
		log.Debug("[hostapi] request")
		next.ServeHTTP(w, r.WithContext(yall.InContext(r.Context(), log)))
	})
}

// object loads the object named by the guid query parameter, writing an
// error response and returning nil when that isn't possible.
func (h *Handler) object(ctx context.Context, w http.ResponseWriter, r *http.Request) *host.Object {
	guid := r.URL.Query().Get("guid")
	if guid == "" {
		http.Error(w, "guid is required", http.StatusBadRequest)
		return nil
	}
	obj, err := h.platform.Get(ctx, guid)
	if errors.Is(err, host.ErrObjectNotFound) {
		http.Error(w, "object not found", http.StatusNotFound)
		return nil
	}
	if err != nil {
		yall.FromContext(ctx).WithError(err).Error("[hostapi] error loading object")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	return obj
}

type createResponse struct {
	GUID string `json:"guid"`
}

// create makes a new object of the entity named by the entity query
// parameter and responds with its GUID.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := yall.FromContext(ctx)

	entity := r.URL.Query().Get("entity")
	if entity == "" {
		http.Error(w, "entity is required", http.StatusBadRequest)
		return
	}
	obj, err := h.platform.Create(ctx, entity)
	if errors.Is(err, host.ErrUnknownEntity) {
		http.Error(w, "unknown entity", http.StatusBadRequest)
		return
	}
	if err != nil {
		log.WithError(err).Error("[hostapi] error creating object")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	log.WithField("hostapi.guid", obj.GUID).WithField("hostapi.entity", entity).Debug("[hostapi] object created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(createResponse{GUID: obj.GUID}); err != nil {
		log.WithError(err).Error("[hostapi] error writing response")
	}
}

// upload stores the "blob" part of a multipart form as the document of the
// object named by the guid query parameter.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := yall.FromContext(ctx)

	obj := h.object(ctx, w, r)
	if obj == nil {
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		log.WithError(err).Debug("[hostapi] failed to parse multipart form")
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	blob, header, err := r.FormFile("blob")
	if err != nil {
		http.Error(w, "blob is required", http.StatusBadRequest)
		return
	}
	defer blob.Close()

	if err := h.platform.SaveDocument(ctx, obj.GUID, header.Filename, blob); err != nil {
		log.WithError(err).Error("[hostapi] error saving document")
		http.Error(w, "error saving document", http.StatusInternalServerError)
		return
	}
	log.WithField("hostapi.guid", obj.GUID).WithField("hostapi.size", header.Size).Debug("[hostapi] document saved")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}

// download streams the document of the object named by the guid query
// parameter.
func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := yall.FromContext(ctx)

	obj := h.object(ctx, w, r)
	if obj == nil {
		return
	}

	doc, err := h.documents.Stat(ctx, obj.GUID)
	if errors.Is(err, host.ErrDocumentNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.WithError(err).Error("[hostapi] error stating document")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	if name, ok := obj.Get("Name").(string); ok && name != "" {
		w.Header().Set("Content-Disposition", "inline; filename=\""+name+"\"")
	}
	if err := host.Download(ctx, h.documents, w, obj.GUID); err != nil {
		// headers are already sent
		log.WithError(err).Error("[hostapi] error streaming document")
	}
}
