package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"filescdn/internal/access"
	"filescdn/internal/auth"
	"filescdn/internal/collection"
	"filescdn/internal/events"
	"filescdn/internal/integrity"
	"filescdn/internal/metrics"
	"filescdn/internal/model"
	"filescdn/internal/repository"
	"filescdn/internal/upload"
)

const defaultMaxConcurrent = 32

var (
	fileIDRe    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
	extensionRe = regexp.MustCompile(`^[a-z0-9]{1,16}$`)
)

// ChunkRequest is one chunk of an upload as received from a client.
// File is read on the first chunk; its Meta is honoured on the first and the last chunk only.
type ChunkRequest struct {
	FileID  string
	ChunkID int
	EOF     bool
	Data    io.Reader
	File    model.FileDescriptor
}

// FileListResult is the service-level DTO for paginated file records.
type FileListResult struct {
	Items []model.FileRecord `json:"data"`
	Total int                `json:"total"`
}

// ListQuery filters a listing. An empty UserID lists the whole collection.
type ListQuery struct {
	UserID string
	Limit  int
	Offset int
}

// FileService defines the use cases of a files collection.
type FileService interface {
	// HandleChunk accepts one chunk. Chunk 1 opens the upload, the EOF chunk finalizes it.
	// Any failure discards the partial file and its record.
	HandleChunk(ctx context.Context, sess *auth.Session, req ChunkRequest) (*model.FileRecord, error)

	// Abort drops an upload in progress.
	Abort(ctx context.Context, sess *auth.Session, fileID string) error

	// Get returns a record of this collection by id.
	Get(ctx context.Context, id string) (*model.FileRecord, error)

	// List returns records using limit/offset and a total count.
	List(ctx context.Context, q ListQuery) (*FileListResult, error)

	// Remove deletes every record matching q, after the before-remove policy allowed it,
	// along with the stored files of all versions.
	Remove(ctx context.Context, sess *auth.Session, q repository.FileQuery) (int64, error)

	// Link returns the download path of a version of rec.
	Link(rec *model.FileRecord, version string) string

	// Sweep aborts uploads idle for longer than idle and returns how many were dropped.
	Sweep(ctx context.Context, idle time.Duration) int

	// AddListener subscribes to record changes.
	AddListener(ev events.Event, fn events.Listener)

	Collection() *collection.Collection
}

type uploadSession struct {
	rec      *model.FileRecord
	ownerID  string
	declared int64
	// unix nanos of the last accepted chunk; Sweep reads it without holding the file lock
	lastSeen atomic.Int64
}

func (us *uploadSession) touch(t time.Time) { us.lastSeen.Store(t.UnixNano()) }

func (us *uploadSession) idleSince(cutoff time.Time) bool {
	return us.lastSeen.Load() < cutoff.UnixNano()
}

type fileService struct {
	coll      *collection.Collection
	repo      repository.FileRepository
	bus       *events.Bus
	metrics   *metrics.Files
	log       *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	assembler *upload.Assembler
	locks     *upload.KeyedMutex
	sem       *semaphore.Weighted

	mu       sync.Mutex
	sessions map[string]*uploadSession
}

// Option customizes a FileService.
type Option func(*fileService)

func WithBus(b *events.Bus) Option { return func(s *fileService) { s.bus = b } }

func WithMetrics(m *metrics.Files) Option { return func(s *fileService) { s.metrics = m } }

func WithLogger(l *slog.Logger) Option { return func(s *fileService) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *fileService) { s.now = now } }

// WithMaxConcurrent caps the number of chunks processed at once across all uploads.
func WithMaxConcurrent(n int64) Option {
	return func(s *fileService) {
		if n > 0 {
			s.sem = semaphore.NewWeighted(n)
		}
	}
}

// NewFileService constructs a FileService for coll.
func NewFileService(coll *collection.Collection, repo repository.FileRepository, opts ...Option) FileService {
	s := &fileService{
		coll:      coll,
		repo:      repo,
		tracer:    otel.Tracer("filescdn/service"),
		now:       func() time.Time { return time.Now().UTC() },
		assembler: upload.NewAssembler(coll.Disk()),
		locks:     upload.NewKeyedMutex(),
		sem:       semaphore.NewWeighted(defaultMaxConcurrent),
		sessions:  make(map[string]*uploadSession),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "file_service", "collection", coll.Name())
	if s.bus == nil {
		s.bus = events.NewBus(s.log)
	}
	return s
}

func (s *fileService) Collection() *collection.Collection { return s.coll }

func (s *fileService) AddListener(ev events.Event, fn events.Listener) {
	s.bus.AddListener(ev, fn)
}

func (s *fileService) HandleChunk(ctx context.Context, sess *auth.Session, req ChunkRequest) (*model.FileRecord, error) {
	if req.ChunkID < 1 || req.Data == nil {
		return nil, fmt.Errorf("%w: chunk id must be >= 1 and carry data", ErrInvalidChunk)
	}
	if !s.sem.TryAcquire(1) {
		s.metrics.Chunk(s.coll.Name(), "busy")
		return nil, ErrBusy
	}
	defer s.sem.Release(1)

	fileID := req.FileID
	if fileID == "" && req.ChunkID == 1 {
		fileID = s.coll.Options().NamingFunction()
	}
	if !fileIDRe.MatchString(fileID) {
		return nil, fmt.Errorf("%w: file id %q", ErrInvalidChunk, fileID)
	}

	ctx, span := s.tracer.Start(ctx, "FileService.HandleChunk", trace.WithAttributes(
		attribute.String("file.id", fileID),
		attribute.Int("upload.chunk_id", req.ChunkID),
		attribute.Bool("upload.eof", req.EOF),
	))
	defer span.End()

	unlock, err := s.locks.Lock(ctx, fileID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.handleLocked(ctx, sess, fileID, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rec, nil
}

func (s *fileService) handleLocked(ctx context.Context, sess *auth.Session, fileID string, req ChunkRequest) (*model.FileRecord, error) {
	us, active := s.session(fileID)
	switch {
	case active && us.ownerID != sess.ID():
		return nil, ErrUnknownUpload
	case !active && req.ChunkID != 1:
		s.metrics.Chunk(s.coll.Name(), "unknown")
		return nil, ErrUnknownUpload
	case active && req.ChunkID == 1:
		return nil, s.fail(ctx, fileID, &UploadError{
			Kind: OutOfOrderChunk, FileID: fileID, Err: fmt.Errorf("%w: chunk 1 repeated", upload.ErrOutOfOrderChunk),
		})
	}

	if !active {
		us = &uploadSession{rec: s.newRecord(fileID, sess, req.File), ownerID: sess.ID(), declared: req.File.Size}
		us.touch(s.now())
	} else if req.EOF && len(req.File.Meta) > 0 {
		us.rec.Meta = mergeMeta(us.rec.Meta, req.File.Meta)
	} else if len(req.File.Meta) > 0 {
		s.log.DebugContext(ctx, "chunk_meta_ignored", "file_id", fileID, "chunk_id", req.ChunkID)
	}

	fileView := *us.rec
	if !active {
		// the policy sees the size the client declared on the first chunk
		fileView.Size = us.declared
	}
	verdict := s.coll.Gate().AuthorizeUpload(&access.UploadContext{
		Session: sess,
		File:    &fileView,
		ChunkID: req.ChunkID,
		EOF:     req.EOF,
	})
	if !verdict.Allow {
		s.metrics.Chunk(s.coll.Name(), "denied")
		ue := &UploadError{Kind: AbortedByPolicy, FileID: fileID, Reason: verdict.Reason, Status: verdict.Status}
		if !active {
			return nil, ue
		}
		return nil, s.fail(ctx, fileID, ue)
	}

	if !active {
		if err := s.begin(ctx, us); err != nil {
			return nil, err
		}
	}
	seen := s.now()
	us.touch(seen)

	n, err := s.assembler.Append(fileID, req.ChunkID, req.Data)
	if err != nil {
		if errors.Is(err, upload.ErrOutOfOrderChunk) {
			s.metrics.Chunk(s.coll.Name(), "out_of_order")
			return nil, s.fail(ctx, fileID, &UploadError{Kind: OutOfOrderChunk, FileID: fileID, Err: err})
		}
		s.metrics.Chunk(s.coll.Name(), "error")
		return nil, s.fail(ctx, fileID, err)
	}
	s.metrics.Chunk(s.coll.Name(), "accepted")
	s.metrics.UploadedBytes(s.coll.Name(), n)

	us.rec.Size += n
	us.rec.UpdatedAt = seen

	if req.EOF {
		return s.finalize(ctx, us)
	}

	size := us.rec.Size
	if err := s.repo.Update(ctx, fileID, repository.FilePatch{Size: &size, UpdatedAt: us.rec.UpdatedAt}); err != nil {
		return nil, s.fail(ctx, fileID, fmt.Errorf("update record: %w", err))
	}

	out := *us.rec
	return &out, nil
}

// begin opens the write handle and stores the incomplete record.
func (s *fileService) begin(ctx context.Context, us *uploadSession) error {
	rec := us.rec
	if err := s.assembler.Begin(rec.ID, rec.Path); err != nil {
		s.log.ErrorContext(ctx, "upload_begin_failed", "file_id", rec.ID, "error", err.Error())
		return err
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		_ = s.assembler.Discard(rec.ID)
		s.log.ErrorContext(ctx, "upload_insert_failed", "file_id", rec.ID, "error", err.Error())
		return fmt.Errorf("insert record: %w", err)
	}

	s.mu.Lock()
	s.sessions[rec.ID] = us
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveUploads(active)

	s.log.InfoContext(ctx, "upload_started",
		"file_id", rec.ID,
		"name", rec.Name,
		"declared_size", us.declared,
		"user_id", rec.UserID,
	)
	return nil
}

func (s *fileService) finalize(ctx context.Context, us *uploadSession) (*model.FileRecord, error) {
	rec := us.rec
	path, written, err := s.assembler.Finalize(rec.ID)
	if err != nil {
		return nil, s.fail(ctx, rec.ID, err)
	}
	rec.Size = written

	verifier := s.coll.Verifier()
	if verifier.Enabled() {
		if rec.Checksum != "" {
			ok, err := verifier.Verify(path, rec.Checksum)
			if err != nil {
				return nil, s.fail(ctx, rec.ID, &UploadError{Kind: IntegrityMismatch, FileID: rec.ID, Reason: "checksum could not be verified", Err: err})
			}
			if !ok {
				s.metrics.IntegrityFailure(s.coll.Name())
				return nil, s.fail(ctx, rec.ID, &UploadError{Kind: IntegrityMismatch, FileID: rec.ID, Reason: "checksum mismatch"})
			}
		} else {
			sum, err := integrity.Checksum(path)
			if err != nil {
				return nil, s.fail(ctx, rec.ID, err)
			}
			rec.Checksum = sum
		}
	}

	if rec.Type == "" {
		if mt, err := mimetype.DetectFile(path); err == nil {
			rec.Type = mt.String()
		} else {
			rec.Type = "application/octet-stream"
		}
	}

	rec.IsComplete = true
	if rec.Versions == nil {
		rec.Versions = make(map[string]model.Version)
	}
	rec.Versions[model.OriginalVersion] = model.Version{
		Path:      path,
		Size:      rec.Size,
		Type:      rec.Type,
		Extension: rec.Extension,
	}

	if err := s.coll.Options().Schema(rec); err != nil {
		return nil, s.fail(ctx, rec.ID, fmt.Errorf("%w: %v", ErrInvalidRecord, err))
	}

	done := true
	size := rec.Size
	checksum := rec.Checksum
	err = s.repo.Update(ctx, rec.ID, repository.FilePatch{
		Size:       &size,
		IsComplete: &done,
		Checksum:   &checksum,
		Meta:       rec.Meta,
		Versions:   rec.Versions,
		UpdatedAt:  rec.UpdatedAt,
	})
	if err != nil {
		return nil, s.fail(ctx, rec.ID, fmt.Errorf("update record: %w", err))
	}

	s.dropSession(rec.ID)
	s.metrics.Completed(s.coll.Name())
	s.log.InfoContext(ctx, "upload_complete",
		"file_id", rec.ID,
		"size", rec.Size,
		"checksum", rec.Checksum,
	)

	out := *rec
	if cb := s.coll.Options().OnAfterUpload; cb != nil {
		view := out
		cb(ctx, &view)
	}
	s.bus.Emit(ctx, events.AfterUpload, out)
	return &out, nil
}

// fail discards everything an upload left behind and returns cause.
// It runs with the file lock held.
func (s *fileService) fail(ctx context.Context, fileID string, cause error) error {
	us, _ := s.session(fileID)
	s.dropSession(fileID)

	if err := s.assembler.Discard(fileID); err != nil && !errors.Is(err, upload.ErrNotActive) {
		s.log.ErrorContext(ctx, "upload_discard_failed", "file_id", fileID, "error", err.Error())
	}
	if us != nil {
		if err := s.coll.Disk().Remove(us.rec.Path); err != nil {
			s.log.ErrorContext(ctx, "upload_remove_file_failed", "file_id", fileID, "error", err.Error())
		}
	}
	if _, err := s.repo.Remove(ctx, repository.FileQuery{ID: fileID, Collection: s.coll.Name()}); err != nil {
		s.log.ErrorContext(ctx, "upload_remove_record_failed", "file_id", fileID, "error", err.Error())
	}

	level := slog.LevelWarn
	var ue *UploadError
	if !errors.As(cause, &ue) {
		level = slog.LevelError
	}
	s.log.Log(ctx, level, "upload_aborted", "file_id", fileID, "error", cause.Error())
	return cause
}

func (s *fileService) Abort(ctx context.Context, sess *auth.Session, fileID string) error {
	if !fileIDRe.MatchString(fileID) {
		return ErrUnknownUpload
	}
	unlock, err := s.locks.Lock(ctx, fileID)
	if err != nil {
		return err
	}
	defer unlock()

	us, ok := s.session(fileID)
	if !ok || us.ownerID != sess.ID() {
		return ErrUnknownUpload
	}
	_ = s.fail(ctx, fileID, &UploadError{Kind: AbortedByPolicy, FileID: fileID, Reason: "aborted by client"})
	return nil
}

func (s *fileService) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var stale []string
	for id, us := range s.sessions {
		if us.idleSince(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	n := 0
	for _, id := range stale {
		unlock, err := s.locks.Lock(ctx, id)
		if err != nil {
			return n
		}
		if us, ok := s.session(id); ok && us.idleSince(cutoff) {
			_ = s.fail(ctx, id, &UploadError{Kind: AbortedByPolicy, FileID: id, Reason: "upload idle"})
			n++
		}
		unlock()
	}
	return n
}

func (s *fileService) Get(ctx context.Context, id string) (*model.FileRecord, error) {
	if !fileIDRe.MatchString(id) {
		return nil, ErrNotFound
	}
	rec, err := s.repo.FindOne(ctx, repository.FileQuery{ID: id, Collection: s.coll.Name()})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List returns paginated records without exposing repository types.
func (s *fileService) List(ctx context.Context, q ListQuery) (*FileListResult, error) {
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	res, err := s.repo.List(ctx,
		repository.FileQuery{Collection: s.coll.Name(), UserID: q.UserID},
		repository.PageQuery{Limit: q.Limit, Offset: q.Offset},
	)
	if err != nil {
		return nil, err
	}
	return &FileListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *fileService) Remove(ctx context.Context, sess *auth.Session, q repository.FileQuery) (int64, error) {
	q.Collection = s.coll.Name()
	if q.ID != "" && !fileIDRe.MatchString(q.ID) {
		return 0, ErrNotFound
	}

	ctx, span := s.tracer.Start(ctx, "FileService.Remove")
	defer span.End()

	recs, err := s.repo.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, ErrNotFound
	}
	if !s.coll.Gate().AuthorizeRemove(&access.RemoveContext{Session: sess, Files: recs}) {
		return 0, ErrForbidden
	}

	for _, rec := range recs {
		s.removeFiles(ctx, rec)
	}

	n, err := s.repo.Remove(ctx, q)
	if err != nil {
		return 0, err
	}

	for _, rec := range recs {
		s.bus.Emit(ctx, events.AfterRemove, rec)
	}
	s.log.InfoContext(ctx, "files_removed", "count", n, "user_id", sess.ID())
	return n, nil
}

// removeFiles deletes the stored files of every version of rec, closing an upload in progress first.
func (s *fileService) removeFiles(ctx context.Context, rec model.FileRecord) {
	unlock, err := s.locks.Lock(ctx, rec.ID)
	if err == nil {
		defer unlock()
		if _, ok := s.session(rec.ID); ok {
			s.dropSession(rec.ID)
			_ = s.assembler.Discard(rec.ID)
		}
	}

	paths := map[string]struct{}{rec.Path: {}}
	for _, v := range rec.Versions {
		paths[v.Path] = struct{}{}
	}
	disk := s.coll.Disk()
	for p := range paths {
		if p == "" || !disk.Contains(p) {
			continue
		}
		if err := disk.Remove(p); err != nil {
			s.log.ErrorContext(ctx, "remove_file_failed", "file_id", rec.ID, "path", p, "error", err.Error())
		}
	}
}

func (s *fileService) Link(rec *model.FileRecord, version string) string {
	if version == "" {
		version = model.OriginalVersion
	}
	name := rec.Name
	if v, ok := rec.Version(version); ok && v.Extension != "" && !strings.HasSuffix(name, "."+v.Extension) {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + "." + v.Extension
	}
	return s.coll.BasePath() + "/" + url.PathEscape(rec.ID) + "/" + url.PathEscape(version) + "/" + url.PathEscape(name)
}

func (s *fileService) newRecord(fileID string, sess *auth.Session, d model.FileDescriptor) *model.FileRecord {
	name := sanitizeName(d.Name, fileID)
	ext := extension(name)
	now := s.now()
	return &model.FileRecord{
		ID:         fileID,
		Collection: s.coll.Name(),
		Name:       name,
		Extension:  ext,
		Type:       strings.TrimSpace(d.Type),
		Path:       s.coll.Disk().PathFor(fileID, ext),
		Checksum:   strings.TrimSpace(d.Checksum),
		UserID:     sess.ID(),
		Meta:       mergeMeta(nil, d.Meta),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *fileService) session(fileID string) (*uploadSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.sessions[fileID]
	return us, ok
}

func (s *fileService) dropSession(fileID string) {
	s.mu.Lock()
	delete(s.sessions, fileID)
	active := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveUploads(active)
}

func sanitizeName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}

func extension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !extensionRe.MatchString(ext) {
		return ""
	}
	return ext
}

func mergeMeta(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
