package handler_test

import (
	"encoding/json"
	"errors"
	"image/png"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/msomdec/gallery-manager/internal/handler"
)

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (e *testEnv) upload(t *testing.T, filename string, data []byte) (*http.Response, handler.ImageDTO) {
	t.Helper()
	body, contentType := multipartBody(t, filename, data)
	resp, err := http.Post(e.srv.URL+"/galleries/product/7/images", contentType, body)
	if err != nil {
		t.Fatalf("POST images: %v", err)
	}
	defer resp.Body.Close()

	var dto handler.ImageDTO
	if resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
			t.Fatalf("decode image: %v", err)
		}
	}
	return resp, dto
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func decodeImages(t *testing.T, resp *http.Response) []handler.ImageDTO {
	t.Helper()
	defer resp.Body.Close()
	var body struct {
		Images []handler.ImageDTO `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode images: %v", err)
	}
	return body.Images
}

func TestGalleryHandler_UploadAndList(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, img := env.upload(t, "cover.png", testPNG(t, 4, 3))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if !strings.HasSuffix(img.Src, ".png") {
		t.Fatalf("expected sniffed .png name, got %q", img.Src)
	}
	if img.URL != "/uploads/7/"+img.Src {
		t.Fatalf("unexpected url %q", img.URL)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "7", img.Src)); err != nil {
		t.Fatalf("expected stored file: %v", err)
	}

	var firstSrc string
	if err := env.db.SqlDB.QueryRow("SELECT first_src FROM product WHERE id = 7").Scan(&firstSrc); err != nil {
		t.Fatalf("read owner: %v", err)
	}
	if firstSrc != img.Src {
		t.Fatalf("expected owner first_src %q, got %q", img.Src, firstSrc)
	}

	listResp, err := http.Get(env.srv.URL + "/galleries/product/7/images")
	if err != nil {
		t.Fatalf("GET images: %v", err)
	}
	images := decodeImages(t, listResp)
	if len(images) != 1 || images[0].ID != img.ID {
		t.Fatalf("expected the uploaded image, got %+v", images)
	}
}

func TestGalleryHandler_UploadRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"not an image", "notes.png", []byte("plain text pretending to be a png")},
		{"too small", "tiny.png", testPNG(t, 1, 1)},
		{"too large", "big.png", append(testPNG(t, 3, 3), make([]byte, 1<<20)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.upload(t, tt.filename, tt.data)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}

	var n int
	env.db.SqlDB.QueryRow("SELECT COUNT(*) FROM gallery_image").Scan(&n)
	if n != 0 {
		t.Fatalf("expected no rows after rejected uploads, got %d", n)
	}
}

func TestGalleryHandler_UnknownOwner(t *testing.T) {
	env := newTestEnv(t, nil)

	body, contentType := multipartBody(t, "a.png", testPNG(t, 3, 3))
	resp, err := http.Post(env.srv.URL+"/galleries/product/404/images", contentType, body)
	if err != nil {
		t.Fatalf("POST images: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a missing owner, got %d", resp.StatusCode)
	}

	resp = env.postJSON(t, "/galleries/product/404/order", `{"order":{"1":1}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("order: expected 404 for a missing owner, got %d", resp.StatusCode)
	}

	var n int
	env.db.SqlDB.QueryRow("SELECT COUNT(*) FROM gallery_image").Scan(&n)
	if n != 0 {
		t.Fatalf("expected no rows for a missing owner, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "404")); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no gallery directory, err=%v", err)
	}
}

func TestGalleryHandler_RejectsTraversalInGalleryID(t *testing.T) {
	env := newTestEnv(t, nil)
	outside := filepath.Join(filepath.Dir(env.dir), "escaped")

	for _, id := range []string{"..%2Fescaped", "..%5Cescaped", ".."} {
		body, contentType := multipartBody(t, "a.png", testPNG(t, 3, 3))
		resp, err := http.Post(env.srv.URL+"/galleries/product/"+id+"/images", contentType, body)
		if err != nil {
			t.Fatalf("POST %s: %v", id, err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusCreated {
			t.Fatalf("%s: expected the upload to be refused, got 201", id)
		}
	}

	if _, err := os.Stat(outside); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected nothing written outside the gallery directory, err=%v", err)
	}
	var n int
	env.db.SqlDB.QueryRow("SELECT COUNT(*) FROM gallery_image").Scan(&n)
	if n != 0 {
		t.Fatalf("expected no rows, got %d", n)
	}
}

func TestGalleryHandler_UnknownType(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.srv.URL + "/galleries/post/7/images")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown type: expected 404, got %d", resp.StatusCode)
	}
}

func TestGalleryHandler_Delete(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.upload(t, "a.png", testPNG(t, 3, 3))
	_, b := env.upload(t, "b.png", testPNG(t, 3, 3))

	resp := env.postJSON(t, "/galleries/product/7/delete", `{"ids":[`+itoa(a.ID)+`,999]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	images := decodeImages(t, resp)
	if len(images) != 1 || images[0].ID != b.ID {
		t.Fatalf("expected only %d to remain, got %+v", b.ID, images)
	}
	if _, err := os.Stat(filepath.Join(env.dir, "7", a.Src)); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected deleted file to be gone, err=%v", err)
	}

	resp = env.postJSON(t, "/galleries/product/7/delete", `{"ids":[]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty ids: expected 400, got %d", resp.StatusCode)
	}
}

func TestGalleryHandler_Rotate(t *testing.T) {
	env := newTestEnv(t, nil)
	_, img := env.upload(t, "a.png", testPNG(t, 4, 2))

	resp := env.postJSON(t, "/galleries/product/7/rotate", `{"id":`+itoa(img.ID)+`}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	f, err := os.Open(filepath.Join(env.dir, "7", img.Src))
	if err != nil {
		t.Fatalf("open rotated: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode rotated: %v", err)
	}
	if cfg.Width != 2 || cfg.Height != 4 {
		t.Fatalf("expected 2x4, got %dx%d", cfg.Width, cfg.Height)
	}

	resp = env.postJSON(t, "/galleries/product/7/rotate", `{"id":999}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id: expected 404, got %d", resp.StatusCode)
	}
}

func TestGalleryHandler_OrderKeepsKeyOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	var ids []int64
	for range 3 {
		_, img := env.upload(t, "a.png", testPNG(t, 3, 3))
		ids = append(ids, img.ID)
	}

	// The last image is listed first, so it receives the smallest value.
	body := `{"order":{"` + itoa(ids[2]) + `":30,"` + itoa(ids[0]) + `":10,"` + itoa(ids[1]) + `":null}}`
	resp := env.postJSON(t, "/galleries/product/7/order", body)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var applied struct {
		Order []handler.SortDTO `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&applied); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	resp.Body.Close()

	// ids[1] falls back to its own id (2); sorted values [2 10 30].
	want := []handler.SortDTO{{ID: ids[2], Sort: ids[1]}, {ID: ids[0], Sort: 10}, {ID: ids[1], Sort: 30}}
	if len(applied.Order) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), applied.Order)
	}
	for i := range want {
		if applied.Order[i] != want[i] {
			t.Fatalf("entry %d: expected %+v, got %+v", i, want[i], applied.Order[i])
		}
	}

	listResp, err := http.Get(env.srv.URL + "/galleries/product/7/images")
	if err != nil {
		t.Fatalf("GET images: %v", err)
	}
	images := decodeImages(t, listResp)
	if images[0].ID != ids[2] {
		t.Fatalf("expected %d first, got %d", ids[2], images[0].ID)
	}

	var firstSrc string
	env.db.SqlDB.QueryRow("SELECT first_src FROM product WHERE id = 7").Scan(&firstSrc)
	if firstSrc != images[0].Src {
		t.Fatalf("expected owner cover %q, got %q", images[0].Src, firstSrc)
	}
}

func TestGalleryHandler_OrderRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, nil)
	_, img := env.upload(t, "a.png", testPNG(t, 3, 3))

	for _, body := range []string{
		`{"order":{}}`,
		`{"order":{"abc":1}}`,
		`{"order":{"` + itoa(img.ID) + `":[1]}}`,
		`{"other":1}`,
	} {
		resp := env.postJSON(t, "/galleries/product/7/order", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	resp := env.postJSON(t, "/galleries/product/7/order", `{"order":{"999":1}}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign id: expected 404, got %d", resp.StatusCode)
	}
}

func TestGalleryHandler_Data(t *testing.T) {
	env := newTestEnv(t, nil)
	_, a := env.upload(t, "a.png", testPNG(t, 3, 3))
	_, b := env.upload(t, "b.png", testPNG(t, 3, 3))

	body := `{"photo":{"` + itoa(a.ID) + `":{"name":"Front","description":"Seen from the street"},"` + itoa(b.ID) + `":{"description":"Back"}}}`
	resp := env.postJSON(t, "/galleries/product/7/data", body)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	images := decodeImages(t, resp)
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].Name != "Front" || images[0].Description != "Seen from the street" {
		t.Fatalf("unexpected first image %+v", images[0])
	}
	if images[1].Name != "" || images[1].Description != "Back" {
		t.Fatalf("unexpected second image %+v", images[1])
	}

	resp = env.postJSON(t, "/galleries/product/7/data", `{"photo":{"`+itoa(a.ID)+`":{"description":"Changed"}}}`)
	images = decodeImages(t, resp)
	if images[0].Name != "Front" || images[0].Description != "Changed" {
		t.Fatalf("expected name kept on partial edit, got %+v", images[0])
	}
}
