package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	json "github.com/goccy/go-json"

	"github.com/alanyoungcy/freightarb/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold is the object size above which uploads go through the
// multipart manager.
const multipartThreshold = MinPartSize

// AuditArchiver implements domain.Archiver. Entries older than the cutoff are
// appended to monthly JSONL objects (archive/audit/YYYY-MM.jsonl, by entry
// creation month) and then removed from the database.
type AuditArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	store  domain.AuditArchiveStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditArchiver creates an AuditArchiver.
func NewAuditArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	store domain.AuditArchiveStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *AuditArchiver {
	return &AuditArchiver{
		writer: writer,
		reader: reader,
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "audit_archiver")),
	}
}

// ArchiveAudit exports every entry created before the cutoff and deletes the
// exported rows. Entries already present in an archive object (matched by ID)
// are not written twice, so a run that failed after uploading can be repeated.
// It returns the number of entries archived.
func (a *AuditArchiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.AuditEntry)
	for _, e := range entries {
		month := e.CreatedAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], e)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	slices.Sort(months)

	paths := make([]string, 0, len(months))
	for _, m := range months {
		path := archivePath("audit", m)
		if err := a.appendMonth(ctx, path, byMonth[m]); err != nil {
			return 0, err
		}
		paths = append(paths, path)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit delete: %w", err)
	}

	count := int64(len(entries))
	a.logger.InfoContext(ctx, "audit archived",
		slog.Int64("count", count),
		slog.Int64("deleted", deleted),
		slog.String("before", before.UTC().Format(time.RFC3339)),
	)

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"count":   count,
		"deleted": deleted,
		"before":  before.UTC().Format(time.RFC3339),
		"paths":   paths,
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}
	return count, nil
}

// appendMonth merges entries into the object at path.
func (a *AuditArchiver) appendMonth(ctx context.Context, path string, entries []domain.AuditEntry) error {
	existing, seen, err := a.load(ctx, path)
	if err != nil {
		return err
	}

	fresh := make([]domain.AuditEntry, 0, len(entries))
	for _, e := range entries {
		if !seen[e.ID] {
			fresh = append(fresh, e)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	lines, err := marshalJSONL(fresh)
	if err != nil {
		return fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}
	body := append(existing, lines...)

	if int64(len(body)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(body), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(body), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive audit upload: %w", err)
	}
	return nil
}

// load returns the current object content and the IDs it holds. A missing
// object is empty.
func (a *AuditArchiver) load(ctx context.Context, path string) ([]byte, map[int64]bool, error) {
	seen := make(map[int64]bool)
	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	if !ok {
		return nil, seen, nil
	}

	body, err := a.reader.Get(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive audit: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive audit read %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &e); err == nil {
			seen[e.ID] = true
		}
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return data, seen, nil
}

// archivePath builds keys like archive/audit/2026-01.jsonl.
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// marshalJSONL encodes one compact JSON document per line.
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

var _ domain.Archiver = (*AuditArchiver)(nil)
