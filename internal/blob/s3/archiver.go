package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/academymint/internal/domain"
)

// OutcomeArchiveStore is the slice of the outcome store the archiver needs:
// listing settled records and removing them once they are safely in cold
// storage.
type OutcomeArchiveStore interface {
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]*domain.MintOutcome, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArchiveImpl implements domain.Archiver by moving settled (delivered or
// failed) mint outcomes to object storage as JSONL, then deleting them from
// the primary store. Outstanding and undelivered records are never archived;
// they still need operator action.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	outcomes  OutcomeArchiveStore
	batchSize int
	logger    *slog.Logger
}

// NewArchiver creates a new ArchiveImpl. batchSize bounds how many outcomes
// are moved per upload.
func NewArchiver(writer domain.BlobWriter, outcomes OutcomeArchiveStore, batchSize int, logger *slog.Logger) *ArchiveImpl {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ArchiveImpl{
		writer:    writer,
		outcomes:  outcomes,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOutcomes moves all settled outcomes last updated before the cutoff
// to object storage, batch by batch, and returns the total number archived.
// Each batch is deleted from the primary store only after its upload
// succeeded, so a failure mid-run leaves every record either archived or
// still in the database, never lost.
func (a *ArchiveImpl) ArchiveOutcomes(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		outcomes, err := a.outcomes.ListTerminalBefore(ctx, before, a.batchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive outcomes query: %w", err)
		}
		if len(outcomes) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(outcomes)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive outcomes marshal: %w", err)
		}

		path := archivePath(outcomes[0].UpdatedAt, outcomes[len(outcomes)-1].UpdatedAt)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive outcomes upload: %w", err)
		}

		ids := make([]string, len(outcomes))
		for i, o := range outcomes {
			ids[i] = o.ID
		}
		deleted, err := a.outcomes.DeleteByIDs(ctx, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive outcomes delete after upload to %s: %w", path, err)
		}
		total += deleted

		a.logger.InfoContext(ctx, "outcome batch archived",
			slog.String("path", path),
			slog.Int64("archived", deleted),
		)

		if len(outcomes) < a.batchSize {
			return total, nil
		}
	}
}

// archivePath builds the S3 key for an archive file, named by the update-time
// span of the batch it holds.
//
//	archive/outcomes/20250101T090000-20250131T235959.jsonl
func archivePath(oldest, newest time.Time) string {
	const layout = "20060102T150405"
	return fmt.Sprintf("archive/outcomes/%s-%s.jsonl",
		oldest.UTC().Format(layout), newest.UTC().Format(layout))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
