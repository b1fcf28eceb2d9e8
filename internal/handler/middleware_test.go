package handler_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/msomdec/gallery-manager/internal/domain"
	"github.com/msomdec/gallery-manager/internal/handler"
	"github.com/msomdec/gallery-manager/internal/repository/disk"
	"github.com/msomdec/gallery-manager/internal/repository/sqlite"
	"github.com/msomdec/gallery-manager/internal/service"
)

type testEnv struct {
	srv     *httptest.Server
	db      *sqlite.DB
	gallery *service.GalleryService
	dir     string
}

func productType() domain.GalleryType {
	return domain.GalleryType{
		Name:          "product",
		OwnerTable:    "product",
		PKColumns:     []string{"id"},
		OwnerFirstSrc: "first_src",
		OwnerTimeHash: "time_hash",
		Policy: domain.UploadPolicy{
			AllowedMimeTypes:  []string{"image/png", "image/jpeg"},
			AllowedExtensions: []string{"png", "jpg"},
			MaxSize:           1 << 20,
			MinWidth:          2,
			MinHeight:         2,
		},
	}
}

func newTestEnv(t *testing.T, limiter *service.UploadLimiter) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.SqlDB.Exec(`
		CREATE TABLE product (id INTEGER PRIMARY KEY, first_src TEXT NOT NULL DEFAULT '', time_hash INTEGER NOT NULL DEFAULT 0);
		INSERT INTO product (id) VALUES (7);
	`); err != nil {
		t.Fatalf("create product table: %v", err)
	}

	images, err := db.GalleryImages("")
	if err != nil {
		t.Fatalf("GalleryImages: %v", err)
	}
	dir := t.TempDir()
	gallery := service.NewGalleryService(productType(), images, disk.NewFileStore(dir, "/uploads"),
		db.Owners(), service.NewKeyResolver("_"))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, handler.NewGalleryHandler(gallery), limiter)
	srv := httptest.NewServer(handler.SecurityHeaders(mux))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, db: db, gallery: gallery, dir: dir}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(40 * x), G: uint8(40 * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.SecurityHeaders(inner).ServeHTTP(w, req)

	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}
}

func TestLimitUploads(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := service.NewUploadLimiter(ctx, 0.5, 1)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	})
	h := handler.LimitUploads(limiter, inner)

	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("first upload: expected 201, got %d", w.Code)
	}

	// Same client on another port shares the bucket.
	req = httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.RemoteAddr = "192.0.2.1:5001"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload: expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}

	req = httptest.NewRequest(http.MethodPost, "/upload", nil)
	req.RemoteAddr = "192.0.2.2:5000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("other client: expected 201, got %d", w.Code)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls through, got %d", calls)
	}
}

func TestLimitUploads_OnlyUploadRoute(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env := newTestEnv(t, service.NewUploadLimiter(ctx, 0, 1))

	for i, want := range []int{http.StatusCreated, http.StatusTooManyRequests} {
		body, contentType := multipartBody(t, "a.png", testPNG(t, 3, 3))
		resp, err := http.Post(env.srv.URL+"/galleries/product/7/images", contentType, body)
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("upload %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}

	resp, err := http.Get(env.srv.URL + "/galleries/product/7/images")
	if err != nil {
		t.Fatalf("GET images: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
}
