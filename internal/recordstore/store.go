// Package recordstore presents table-like CRUD semantics over a single
// XLSX file held in remote blob storage. The provider offers no
// transactions and no row-level writes, so every mutation is a
// read-modify-write of the whole file: re-download, mutate in memory,
// re-encode, upload. Two independent sessions can still overwrite each
// other at whole-file granularity (last writer wins); re-reading right
// before each mutation shrinks that window but cannot close it.
package recordstore

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Criser2013/adt-records/internal/codec"
	"github.com/Criser2013/adt-records/internal/domain"
	"github.com/Criser2013/adt-records/internal/drive"
	"github.com/Criser2013/adt-records/internal/metrics"
)

// maxUploadAttempts bounds the resumable upload retry loop, counting
// the first attempt.
const maxUploadAttempts = 3

// BlobAPI is the slice of the drive client the store depends on.
type BlobAPI interface {
	Search(ctx context.Context, token, query string) ([]drive.FileMeta, error)
	CreateFile(ctx context.Context, token, name, parentID string, isFolder bool) (drive.FileMeta, error)
	BeginResumableUpload(ctx context.Context, token, fileID string) (string, error)
	UploadContent(ctx context.Context, token, sessionURL string, content []byte) (drive.FileMeta, error)
	Download(ctx context.Context, token, fileID string) ([]byte, error)
}

// Store owns the cached patients table and the resolved remote
// identifiers for one logical container+file. Construct once per
// authenticated session; Invalidate on teardown.
type Store struct {
	blob       BlobAPI
	logger     *zap.Logger
	folderName string
	fileName   string

	mu       sync.Mutex
	folderID string
	fileID   string
	records  []domain.PatientRecord
}

func NewStore(blob BlobAPI, folderName, fileName string, logger *zap.Logger) *Store {
	return &Store{
		blob:       blob,
		logger:     logger,
		folderName: folderName,
		fileName:   fileName,
	}
}

// Ensure resolves the remote folder and file, creating either when
// absent, and caches both identifiers. Idempotent: once resolved,
// subsequent calls issue no remote traffic. Any failure leaves the
// store unresolved; the caller may simply call again.
func (s *Store) Ensure(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx, token)
}

func (s *Store) ensureLocked(ctx context.Context, token string) error {
	if s.folderID != "" && s.fileID != "" {
		return nil
	}

	folderQuery := fmt.Sprintf("mimeType = '%s' and name = '%s' and trashed = false",
		drive.MimeTypeFolder, drive.EscapeQueryValue(s.folderName))
	folders, err := s.blob.Search(ctx, token, folderQuery)
	if err != nil {
		return fmt.Errorf("resolving folder %q: %w", s.folderName, err)
	}

	var folderID string
	if len(folders) > 0 {
		folderID = folders[0].ID
	} else {
		created, err := s.blob.CreateFile(ctx, token, s.folderName, "", true)
		if err != nil {
			return fmt.Errorf("creating folder %q: %w", s.folderName, err)
		}
		folderID = created.ID
	}

	fileQuery := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false",
		drive.EscapeQueryValue(folderID), drive.EscapeQueryValue(s.fileName))
	files, err := s.blob.Search(ctx, token, fileQuery)
	if err != nil {
		return fmt.Errorf("resolving file %q: %w", s.fileName, err)
	}

	var fileID string
	if len(files) > 0 {
		fileID = files[0].ID
	} else {
		created, err := s.blob.CreateFile(ctx, token, s.fileName, folderID, false)
		if err != nil {
			return fmt.Errorf("creating file %q: %w", s.fileName, err)
		}
		fileID = created.ID
	}

	s.folderID = folderID
	s.fileID = fileID
	s.logger.Info("Resolved remote patients table",
		zap.String("folder_id", folderID),
		zap.String("file_id", fileID),
	)
	return nil
}

// Load downloads and decodes the remote table, replacing the in-memory
// cache. On decode failure the cache is emptied and the failure is
// surfaced; the store never serves a table it could not read back.
func (s *Store) Load(ctx context.Context, token string) ([]domain.PatientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx, token); err != nil {
		return nil, err
	}
	rows, err := s.refreshLocked(ctx, token)
	if err != nil {
		s.records = nil
		return nil, err
	}
	s.records = rows
	return cloneTable(rows), nil
}

// refreshLocked re-fetches the current remote content. Every mutation
// starts here so the read-modify-write window stays as small as the
// transport allows.
func (s *Store) refreshLocked(ctx context.Context, token string) ([]domain.PatientRecord, error) {
	blob, err := s.blob.Download(ctx, token, s.fileID)
	if err != nil {
		return nil, fmt.Errorf("downloading table: %w", err)
	}
	rows, err := codec.DecodeTable(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding table: %w", err)
	}
	return rows, nil
}

// Upsert adds a record, or replaces one when isEdit is set. previousID
// names the row being edited when the identity field itself changed;
// when empty, the record's own DocumentID is used for the lookup.
// Rejects with a duplicate-identity error when a different row already
// holds the target identity. The encode+upload is one unit: on any
// failure the cache is left untouched and no partial state is written.
func (s *Store) Upsert(ctx context.Context, token string, rec domain.PatientRecord, isEdit bool, previousID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx, token); err != nil {
		return err
	}
	rows, err := s.refreshLocked(ctx, token)
	if err != nil {
		return err
	}

	lookupID := rec.DocumentID
	if isEdit && previousID != "" {
		lookupID = previousID
	}
	targetIdx := indexOf(rows, lookupID)

	for i, row := range rows {
		if row.DocumentID == rec.DocumentID && i != targetIdx {
			return drive.NewError(drive.KindDuplicateIdentity,
				fmt.Sprintf("a record with document id %q already exists", rec.DocumentID))
		}
	}

	if isEdit {
		if targetIdx < 0 {
			return drive.NewError(drive.KindNotFound,
				fmt.Sprintf("no record with document id %q", lookupID))
		}
		rows[targetIdx] = rec.Clone()
	} else {
		if targetIdx >= 0 {
			return drive.NewError(drive.KindDuplicateIdentity,
				fmt.Sprintf("a record with document id %q already exists", rec.DocumentID))
		}
		rows = append(rows, rec.Clone())
	}

	return s.commitLocked(ctx, token, rows)
}

// DeleteRecords removes every row whose identity is in ids. A single
// unmatched id is an error; misses within a bulk delete are tolerated.
// Matching rows are filtered out in one pass, so id order and row order
// are irrelevant.
func (s *Store) DeleteRecords(ctx context.Context, token string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(ctx, token); err != nil {
		return err
	}
	rows, err := s.refreshLocked(ctx, token)
	if err != nil {
		return err
	}

	doomed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}

	kept := make([]domain.PatientRecord, 0, len(rows))
	removed := 0
	for _, row := range rows {
		if _, ok := doomed[row.DocumentID]; ok {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	if len(ids) == 1 && removed == 0 {
		return drive.NewError(drive.KindNotFound,
			fmt.Sprintf("no record with document id %q", ids[0]))
	}
	if removed == 0 {
		return nil
	}

	return s.commitLocked(ctx, token, kept)
}

// commitLocked encodes rows and uploads them through a resumable
// session, then replaces the cache. The same session URL is reused
// across retries; full content is re-submitted each attempt rather than
// resuming from a byte offset.
func (s *Store) commitLocked(ctx context.Context, token string, rows []domain.PatientRecord) error {
	blob, err := codec.EncodeTable(rows)
	if err != nil {
		return err
	}

	sessionURL, err := s.blob.BeginResumableUpload(ctx, token, s.fileID)
	if err != nil {
		return fmt.Errorf("opening upload session: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxUploadAttempts; attempt++ {
		_, lastErr = s.blob.UploadContent(ctx, token, sessionURL, blob)
		if lastErr == nil {
			break
		}
		if drive.KindOf(lastErr) != drive.KindResumableIncomplete {
			return fmt.Errorf("uploading table: %w", lastErr)
		}
		if attempt < maxUploadAttempts {
			metrics.UploadRetriesTotal.Inc()
			s.logger.Warn("Resumable upload incomplete, retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxUploadAttempts),
			)
		}
	}
	if lastErr != nil {
		return fmt.Errorf("uploading table: %w", lastErr)
	}

	s.records = rows
	s.logger.Info("Patients table written", zap.Int("rows", len(rows)))
	return nil
}

// Cached returns the in-memory table without remote traffic. Empty
// until the first successful Load or mutation.
func (s *Store) Cached() []domain.PatientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTable(s.records)
}

// Find returns the cached record with the given identity, if present.
func (s *Store) Find(documentID string) (domain.PatientRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := indexOf(s.records, documentID); idx >= 0 {
		return s.records[idx].Clone(), true
	}
	return domain.PatientRecord{}, false
}

// Invalidate drops the cached table and the resolved identifiers.
// The next operation re-resolves and re-downloads from scratch.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folderID = ""
	s.fileID = ""
	s.records = nil
}

func indexOf(rows []domain.PatientRecord, documentID string) int {
	for i, row := range rows {
		if row.DocumentID == documentID {
			return i
		}
	}
	return -1
}

func cloneTable(rows []domain.PatientRecord) []domain.PatientRecord {
	out := make([]domain.PatientRecord, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}
