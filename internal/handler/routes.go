package handler

import (
	"net/http"

	"github.com/msomdec/gallery-manager/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux. A nil limiter
// leaves uploads unthrottled.
func RegisterRoutes(mux *http.ServeMux, galleries *GalleryHandler, limiter *service.UploadLimiter) {
	mux.HandleFunc("GET /healthz", HandleHealthz)

	var upload http.Handler = http.HandlerFunc(galleries.HandleUpload)
	if limiter != nil {
		upload = LimitUploads(limiter, upload)
	}

	mux.HandleFunc("GET /galleries/{type}/{galleryID}/images", galleries.HandleList)
	mux.Handle("POST /galleries/{type}/{galleryID}/images", upload)
	mux.HandleFunc("POST /galleries/{type}/{galleryID}/delete", galleries.HandleDelete)
	mux.HandleFunc("POST /galleries/{type}/{galleryID}/rotate", galleries.HandleRotate)
	mux.HandleFunc("POST /galleries/{type}/{galleryID}/order", galleries.HandleOrder)
	mux.HandleFunc("POST /galleries/{type}/{galleryID}/data", galleries.HandleData)
}
