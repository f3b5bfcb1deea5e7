package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	importservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/service"
	"github.com/FACorreiaa/cbhpm-tables/pkg/httpx"
)

// DefaultMaxUploadBytes bounds the multipart body of one import request.
const DefaultMaxUploadBytes int64 = 64 << 20

// fileFields are the multipart keys accepted for uploads, in order.
var fileFields = []string{"files[]", "files", "file"}

// Importer is the import coordinator as seen by the handler.
type Importer interface {
	ImportFiles(ctx context.Context, files []importservice.File, version string) (*importservice.ImportReport, error)
}

// FingerprintLister lists files already imported into a version.
type FingerprintLister interface {
	ListFingerprints(ctx context.Context, version string) ([]repository.ImportFingerprint, error)
}

// ImportHandler handles table uploads
type ImportHandler struct {
	importer       Importer
	fingerprints   FingerprintLister
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewImportHandler creates a new import handler
func NewImportHandler(importer Importer, fingerprints FingerprintLister, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importer:       importer,
		fingerprints:   fingerprints,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         logger,
	}
}

// WithMaxUploadBytes overrides the request size limit
func (h *ImportHandler) WithMaxUploadBytes(n int64) *ImportHandler {
	if n > 0 {
		h.maxUploadBytes = n
	}
	return h
}

// ImportFiles handles POST /imports: multipart files plus a version field.
func (h *ImportHandler) ImportFiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpx.RespondWithError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := uploadedFiles(r.MultipartForm)
	if len(headers) == 0 {
		httpx.RespondWithError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	files := make([]importservice.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			h.logger.Warn("failed to read upload", slog.String("file", fh.Filename), slog.Any("error", err))
			httpx.RespondWithError(w, http.StatusBadRequest, "failed to read file: "+fh.Filename)
			return
		}
		files = append(files, importservice.File{Name: fh.Filename, Data: data})
	}

	report, err := h.importer.ImportFiles(r.Context(), files, r.FormValue("version"))
	if errors.Is(err, importservice.ErrInvalidVersionLabel) {
		httpx.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("import failed", slog.Any("error", err))
		httpx.RespondWithError(w, http.StatusInternalServerError, "import failed")
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, report)
}

// ListImports handles GET /imports?version=
func (h *ImportHandler) ListImports(w http.ResponseWriter, r *http.Request) {
	version := strings.TrimSpace(r.URL.Query().Get("version"))
	if version == "" {
		httpx.RespondWithError(w, http.StatusBadRequest, "version is required")
		return
	}

	fps, err := h.fingerprints.ListFingerprints(r.Context(), version)
	if err != nil {
		h.logger.Error("failed to list imports", slog.String("version", version), slog.Any("error", err))
		httpx.RespondWithError(w, http.StatusInternalServerError, "failed to list imports")
		return
	}
	if fps == nil {
		fps = []repository.ImportFingerprint{}
	}
	httpx.RespondWithJSON(w, http.StatusOK, fps)
}

func uploadedFiles(form *multipart.Form) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, key := range fileFields {
		out = append(out, form.File[key]...)
	}
	return out
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}
