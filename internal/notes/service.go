package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cloudnotes/backend/internal/storage"
	"github.com/cloudnotes/backend/internal/users"
)

var (
	// ErrUnauthenticated indicates a mutating call without a caller identity.
	ErrUnauthenticated = errors.New("notes: caller must be authenticated")
	// ErrNoteNotFound indicates the referenced note does not exist.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrForbidden indicates the caller is neither uploader nor admin.
	ErrForbidden = errors.New("notes: caller may not modify this note")
	// ErrInvalidNote indicates missing required metadata on upload.
	ErrInvalidNote = errors.New("notes: title, category, and subject are required")

	errMissingDatabase = errors.New("database handle is required")
	errMissingFiles    = errors.New("file remover is required")
	noOpLogger         = zap.NewNop()
)

// ServiceError carries a stable operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "notes.service.new"
	opAddNote        = "notes.add_note"
	opRecordDownload = "notes.record_download"
	opDeleteNote     = "notes.delete_note"
	opRate           = "notes.rate"
	opSearch         = "notes.search"
	opListCategories = "notes.list_categories"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// FileRemover deletes the bytes behind a stored-file reference.
type FileRemover interface {
	Remove(path string) error
}

// ServiceConfig describes the dependencies of the note catalog.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Files    FileRemover
	Logger   *zap.Logger
}

// Service implements the note catalog, rating ledger, and search engine.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	files  FileRemover
	logger *zap.Logger
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Files == nil {
		return nil, newServiceError(opServiceNew, "missing_files", errMissingFiles)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		clock:  clock,
		files:  cfg.Files,
		logger: logger,
	}, nil
}

// AddNoteInput carries the metadata for a new catalog entry. Stored must
// reference bytes already persisted by the storage collaborator.
type AddNoteInput struct {
	Title       string
	Category    string
	Subject     string
	Description string
	Tags        []string
	UploaderID  int64
	Stored      storage.StoredFile
}

// AddNote creates a catalog entry for an already-persisted file.
func (s *Service) AddNote(ctx context.Context, input AddNoteInput) (Note, error) {
	if input.UploaderID <= 0 {
		return Note{}, newServiceError(opAddNote, "unauthenticated", ErrUnauthenticated)
	}

	title := strings.TrimSpace(input.Title)
	category := strings.TrimSpace(input.Category)
	subject := strings.TrimSpace(input.Subject)
	if title == "" || category == "" || subject == "" {
		return Note{}, newServiceError(opAddNote, "invalid_metadata", ErrInvalidNote)
	}
	if input.Stored.Path == "" || input.Stored.Name == "" {
		return Note{}, newServiceError(opAddNote, "missing_stored_file", ErrInvalidNote)
	}

	tagsJSON, err := EncodeTags(NormalizeTags(input.Tags))
	if err != nil {
		s.logError(opAddNote, "tag_encode_failed", err)
		return Note{}, newServiceError(opAddNote, "tag_encode_failed", err)
	}

	note := Note{
		Title:       title,
		Category:    category,
		Subject:     subject,
		Description: strings.TrimSpace(input.Description),
		UploaderID:  input.UploaderID,
		UploadedAt:  s.clock().UTC(),
		TagsJSON:    tagsJSON,
		FilePath:    input.Stored.Path,
		FileName:    input.Stored.Name,
		FileSize:    input.Stored.Size,
	}

	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opAddNote, "note_insert_failed", err, zap.Int64("uploader_id", input.UploaderID))
		return Note{}, newServiceError(opAddNote, "note_insert_failed", err)
	}

	s.logger.Info("note added",
		zap.Int64("note_id", note.ID),
		zap.Int64("uploader_id", note.UploaderID),
		zap.String("category", note.Category))
	return note, nil
}

// RecordDownload increments the note's download counter by exactly one and
// returns the stored-file reference for the caller to stream.
func (s *Service) RecordDownload(ctx context.Context, noteID, callerID int64) (storage.StoredFile, error) {
	if callerID <= 0 {
		return storage.StoredFile{}, newServiceError(opRecordDownload, "unauthenticated", ErrUnauthenticated)
	}

	var note Note
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", noteID).Take(&note).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRecordDownload, "note_not_found", ErrNoteNotFound)
		}
		if err != nil {
			s.logError(opRecordDownload, "note_select_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opRecordDownload, "note_select_failed", err)
		}

		if err := tx.Model(&Note{}).
			Where("id = ?", noteID).
			UpdateColumn("downloads", gorm.Expr("downloads + 1")).Error; err != nil {
			s.logError(opRecordDownload, "counter_update_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opRecordDownload, "counter_update_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return storage.StoredFile{}, txErr
	}

	return storage.StoredFile{Path: note.FilePath, Name: note.FileName, Size: note.FileSize}, nil
}

// DeleteNote removes a note, its backing file, and every rating referencing it.
// Only the uploader or an admin may delete. Ratings and the note row go in one
// transaction so no dangling ledger entries survive.
func (s *Service) DeleteNote(ctx context.Context, noteID, callerID int64, callerRole users.Role) error {
	if callerID <= 0 {
		return newServiceError(opDeleteNote, "unauthenticated", ErrUnauthenticated)
	}

	var note Note
	err := s.db.WithContext(ctx).Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newServiceError(opDeleteNote, "note_not_found", ErrNoteNotFound)
	}
	if err != nil {
		s.logError(opDeleteNote, "note_select_failed", err, zap.Int64("note_id", noteID))
		return newServiceError(opDeleteNote, "note_select_failed", err)
	}

	if note.UploaderID != callerID && callerRole != users.RoleAdmin {
		return newServiceError(opDeleteNote, "forbidden", ErrForbidden)
	}

	if err := s.files.Remove(note.FilePath); err != nil {
		s.logError(opDeleteNote, "file_remove_failed", err,
			zap.Int64("note_id", noteID), zap.String("file_path", note.FilePath))
		return newServiceError(opDeleteNote, "file_remove_failed", err)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("note_id = ?", noteID).Delete(&Rating{}).Error; err != nil {
			s.logError(opDeleteNote, "rating_cascade_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opDeleteNote, "rating_cascade_failed", err)
		}
		if err := tx.Where("id = ?", noteID).Delete(&Note{}).Error; err != nil {
			s.logError(opDeleteNote, "note_delete_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opDeleteNote, "note_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.logger.Info("note deleted",
		zap.Int64("note_id", noteID),
		zap.Int64("caller_id", callerID),
		zap.String("caller_role", string(callerRole)))
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
