package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// archivePrefix is where the archiver writes settled-outcome batches.
const archivePrefix = "archive/outcomes/"

// ArchiveHandler serves the settled-outcome archives from object storage so
// operators can inspect records after they have been moved out of Postgres.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{blobs: blobs, logger: logger}
}

// archiveEntry is the listing representation of one archive object.
type archiveEntry struct {
	Name         string    `json:"name"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives returns the available outcome archive files.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "list_archives")

	infos, err := h.blobs.List(r.Context(), archivePrefix)
	if err != nil {
		log.Error("archive listing failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "failed to list outcome archives")
		return
	}

	entries := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, archiveEntry{
			Name:         strings.TrimPrefix(info.Path, archivePrefix),
			SizeBytes:    info.Size,
			LastModified: info.LastModified,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"archives": entries})
}

// GetArchive streams one archive file back as newline-delimited JSON.
// GET /api/archives/{name}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	log := logHandler(h.logger, "get_archive")

	name := pathParam(r, "name")
	// Names come straight from the URL; keep lookups inside the archive
	// prefix.
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive name")
		return
	}

	body, err := h.blobs.Get(r.Context(), archivePrefix+name)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		log.Error("archive fetch failed",
			slog.String("name", name),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadGateway, "failed to fetch archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		// The response is already streaming; all we can do is log.
		log.Error("archive stream interrupted",
			slog.String("name", name),
			slog.Any("error", err),
		)
	}
}
