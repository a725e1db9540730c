package notes

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

const searchSelect = `notes.id, notes.title, notes.category, notes.subject, notes.description,
	notes.uploader_id, users.username AS uploader, notes.uploaded_at, notes.downloads, notes.tags,
	notes.file_name, notes.file_size, notes.rating_count,
	CASE WHEN notes.rating_count > 0
		THEN ROUND(notes.rating_sum * 1.0 / notes.rating_count, 1)
		ELSE 0 END AS average_rating`

// Search returns the catalog joined with uploader names and derived average
// ratings, filtered and ordered per the query. Text matching is substring and
// case-insensitive against title, subject, and the serialized tag text; a
// category other than the "All" sentinel filters exactly. The full result set
// is returned on every call.
func (s *Service) Search(ctx context.Context, queryText, category string, sort SortMode) ([]NoteView, error) {
	query := s.db.WithContext(ctx).
		Table("notes").
		Select(searchSelect).
		Joins("JOIN users ON users.id = notes.uploader_id")

	if trimmed := strings.TrimSpace(queryText); trimmed != "" {
		pattern := "%" + strings.ToLower(trimmed) + "%"
		query = query.Where(
			"LOWER(notes.title) LIKE ? OR LOWER(notes.subject) LIKE ? OR LOWER(notes.tags) LIKE ?",
			pattern, pattern, pattern)
	}
	if category != "" && category != CategoryAll {
		query = query.Where("notes.category = ?", category)
	}

	switch sort {
	case SortPopular:
		query = query.Order("notes.downloads DESC")
	case SortRating:
		query = query.Order("average_rating DESC, notes.downloads DESC, notes.id ASC")
	default:
		query = query.Order("notes.uploaded_at DESC")
	}

	var views []NoteView
	if err := query.Scan(&views).Error; err != nil {
		s.logError(opSearch, "query_failed", err,
			zap.String("query", queryText), zap.String("category", category))
		return nil, newServiceError(opSearch, "query_failed", err)
	}

	for i := range views {
		tags, err := DecodeTags(views[i].TagsJSON)
		if err != nil {
			s.logError(opSearch, "tag_decode_failed", err, zap.Int64("note_id", views[i].ID))
			return nil, newServiceError(opSearch, "tag_decode_failed", err)
		}
		views[i].Tags = tags
	}

	return views, nil
}

// ListCategories returns the distinct categories in bytewise ascending order,
// always prefixed with the "All" sentinel. An empty catalog yields ["All"].
func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	if err := s.db.WithContext(ctx).
		Table("notes").
		Distinct().
		Order("category ASC").
		Pluck("category", &categories).Error; err != nil {
		s.logError(opListCategories, "query_failed", err)
		return nil, newServiceError(opListCategories, "query_failed", err)
	}

	return append([]string{CategoryAll}, categories...), nil
}
