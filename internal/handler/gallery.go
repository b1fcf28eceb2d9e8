package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/msomdec/gallery-manager/internal/domain"
	"github.com/msomdec/gallery-manager/internal/service"
)

// multipartMemory is how much of a multipart upload is held in memory
// before spilling to temporary files.
const multipartMemory = 10 << 20

// GalleryHandler exposes the galleries of every configured owner type.
type GalleryHandler struct {
	galleries map[string]*service.GalleryService
}

// NewGalleryHandler creates a new GalleryHandler serving the given galleries,
// keyed by their type name.
func NewGalleryHandler(galleries ...*service.GalleryService) *GalleryHandler {
	h := &GalleryHandler{galleries: make(map[string]*service.GalleryService, len(galleries))}
	for _, g := range galleries {
		h.galleries[g.Type().Name] = g
	}
	return h
}

// target resolves the {type} and {galleryID} path values to an existing
// owner. On failure the response has been written.
func (h *GalleryHandler) target(w http.ResponseWriter, r *http.Request) (*service.GalleryService, domain.PrimaryKey, bool) {
	gallery, ok := h.galleries[r.PathValue("type")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown gallery type")
		return nil, nil, false
	}
	owner, err := gallery.OwnerKey(r.PathValue("galleryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid gallery id")
		return nil, nil, false
	}
	if err := gallery.CheckOwner(r.Context(), owner); err != nil {
		writeServiceError(w, "find gallery owner", err)
		return nil, nil, false
	}
	return gallery, owner, true
}

// HandleList returns the gallery's images in display order.
// GET /galleries/{type}/{galleryID}/images
func (h *GalleryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	gallery, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	images, err := gallery.Images(r.Context(), owner)
	if err != nil {
		writeServiceError(w, "list images", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": toImageDTOs(gallery, images)})
}

// HandleUpload validates a multipart upload against the type's policy and
// adds it to the gallery.
// POST /galleries/{type}/{galleryID}/images
func (h *GalleryHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	gallery, owner, ok := h.target(w, r)
	if !ok {
		return
	}
	policy := gallery.Type().Policy

	if policy.MaxSize > 0 {
		// Leave room for the multipart envelope around the file.
		r.Body = http.MaxBytesReader(w, r.Body, policy.MaxSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no image file provided")
		return
	}
	defer file.Close()

	if policy.MaxSize > 0 && header.Size > policy.MaxSize {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		slog.Error("read upload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	upload, err := validateUpload(policy, header.Filename, data)
	if err != nil {
		writeServiceError(w, "validate upload", err)
		return
	}

	img, err := gallery.AddImage(r.Context(), owner, upload)
	if err = ownerSyncOnly(err); err != nil {
		writeServiceError(w, "add image", err)
		return
	}
	writeJSON(w, http.StatusCreated, toImageDTO(gallery, *img))
}

// HandleDelete removes the listed images. Ids outside the gallery are ignored.
// POST /galleries/{type}/{galleryID}/delete
func (h *GalleryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	gallery, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	var req deleteRequest
	if err := readJSON(w, r, &req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required")
		return
	}

	if err := ownerSyncOnly(gallery.DeleteImages(r.Context(), owner, req.IDs)); err != nil {
		writeServiceError(w, "delete images", err)
		return
	}
	h.writeImages(w, r, gallery, owner)
}

// HandleRotate turns one image 90 degrees clockwise.
// POST /galleries/{type}/{galleryID}/rotate
func (h *GalleryHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	gallery, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	var req rotateRequest
	if err := readJSON(w, r, &req); err != nil || req.ID == 0 {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := gallery.RotateImage(r.Context(), owner, req.ID); err != nil {
		writeServiceError(w, "rotate image", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID})
}

// HandleOrder applies a new image order.
// POST /galleries/{type}/{galleryID}/order
func (h *GalleryHandler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	gallery, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	order, err := readOrder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil || len(order) == 0 {
		writeError(w, http.StatusBadRequest, "invalid order")
		return
	}

	applied, err := gallery.Arrange(r.Context(), owner, order)
	if err = ownerSyncOnly(err); err != nil {
		writeServiceError(w, "arrange images", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": toSortDTOs(applied)})
}

// HandleData updates image names and descriptions.
// POST /galleries/{type}/{galleryID}/data
func (h *GalleryHandler) HandleData(w http.ResponseWriter, r *http.Request) {
	gallery, owner, ok := h.target(w, r)
	if !ok {
		return
	}

	var req dataRequest
	if err := readJSON(w, r, &req); err != nil || len(req.Photo) == 0 {
		writeError(w, http.StatusBadRequest, "photo data is required")
		return
	}

	edits := make(map[int64]domain.ImageEdit, len(req.Photo))
	for id, d := range req.Photo {
		edits[id] = domain.ImageEdit{Name: d.Name, Description: d.Description}
	}

	updated, err := gallery.UpdateImagesData(r.Context(), owner, edits, nil)
	if err != nil {
		writeServiceError(w, "update image data", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": toImageDTOs(gallery, updated)})
}

func (h *GalleryHandler) writeImages(w http.ResponseWriter, r *http.Request, gallery *service.GalleryService, owner domain.PrimaryKey) {
	images, err := gallery.Images(r.Context(), owner)
	if err != nil {
		writeServiceError(w, "list images", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": toImageDTOs(gallery, images)})
}

// ownerSyncOnly logs and drops an owner cache failure. The image mutation
// it accompanies has already been committed.
func ownerSyncOnly(err error) error {
	if err != nil && errors.Is(err, domain.ErrOwnerSync) {
		slog.Error("sync gallery owner", "error", err)
		return nil
	}
	return err
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrValidationRejected), errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
