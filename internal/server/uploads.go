package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const maxUploadSize = 8 << 20

// ErrUnsupportedImage is returned for uploads whose content type is not a
// known image format
var ErrUnsupportedImage = errors.New("unsupported image type")

// ImagePipeline stores raw upload bytes and serves the stored files back.
// Thumbnail generation is best-effort: an implementation that cannot produce
// one returns an empty reference instead of failing the upload.
type ImagePipeline interface {
	Store(ctx context.Context, data []byte, contentType string) (imageURL, thumbnailURL string, err error)
	Handler() http.Handler
}

// DiskImageStore keeps uploads as flat files under one directory and serves
// them under baseURL. It produces no thumbnails.
type DiskImageStore struct {
	dir     string
	baseURL string
}

func NewDiskImageStore(dir, baseURL string) (*DiskImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskImageStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

func (s *DiskImageStore) Store(_ context.Context, data []byte, contentType string) (string, string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", ErrUnsupportedImage
	}

	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", "", err
	}

	return s.baseURL + "/" + name, "", nil
}

func (s *DiskImageStore) Handler() http.Handler {
	return http.StripPrefix(s.baseURL+"/", http.FileServer(http.Dir(s.dir)))
}

// upload handles HTTP requests on "POST /uploads". The returned references
// are what clients attach to messages as image_url/thumbnail_url.
func (h *handler) upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
		return
	}
	if len(data) == 0 {
		http.Error(w, "No body provided", http.StatusBadRequest)
		return
	}

	imageURL, thumbnailURL, err := h.images.Store(r.Context(), data, r.Header.Get("Content-Type"))
	if err != nil {
		if errors.Is(err, ErrUnsupportedImage) {
			http.Error(w, "Only image uploads are supported", http.StatusBadRequest)
			return
		}
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := map[string]string{"image_url": imageURL}
	if thumbnailURL != "" {
		resp["thumbnail_url"] = thumbnailURL
	}
	h.respondJSON(w, http.StatusCreated, resp)
}
