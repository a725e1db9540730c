package notes

import (
	"encoding/json"
	"strings"
	"time"
)

// SortMode enumerates the supported result orderings.
type SortMode string

const (
	// SortRecent orders by upload time, newest first. Default for unknown modes.
	SortRecent SortMode = "recent"
	// SortPopular orders by download count, highest first.
	SortPopular SortMode = "popular"
	// SortRating orders by average rating, downloads breaking ties.
	SortRating SortMode = "rating"
)

// ParseSortMode maps raw input onto a known sort mode, defaulting to recent.
func ParseSortMode(value string) SortMode {
	switch SortMode(strings.ToLower(strings.TrimSpace(value))) {
	case SortPopular:
		return SortPopular
	case SortRating:
		return SortRating
	default:
		return SortRecent
	}
}

// CategoryAll is the synthetic filter value meaning "no category restriction".
const CategoryAll = "All"

// Note models a catalog entry pairing stored-file metadata with descriptive
// fields and engagement counters. RatingSum and RatingCount are denormalized
// from the ratings table and recomputed on every rating mutation.
type Note struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title       string    `gorm:"column:title;size:320;not null"`
	Category    string    `gorm:"column:category;size:190;not null;index"`
	Subject     string    `gorm:"column:subject;size:190;not null"`
	Description string    `gorm:"column:description;type:text"`
	UploaderID  int64     `gorm:"column:uploader_id;not null;index"`
	UploadedAt  time.Time `gorm:"column:uploaded_at;not null;index"`
	Downloads   int64     `gorm:"column:downloads;not null;default:0"`
	TagsJSON    string    `gorm:"column:tags;type:text;not null;default:'[]'"`
	FilePath    string    `gorm:"column:file_path;size:512;not null"`
	FileName    string    `gorm:"column:file_name;size:320;not null"`
	FileSize    int64     `gorm:"column:file_size;not null;default:0"`
	RatingSum   int64     `gorm:"column:rating_sum;not null;default:0"`
	RatingCount int64     `gorm:"column:rating_count;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Rating holds one user's rating of one note. Re-rating replaces the row.
type Rating struct {
	NoteID int64  `gorm:"column:note_id;primaryKey"`
	UserID int64  `gorm:"column:user_id;primaryKey"`
	Value  int    `gorm:"column:rating;not null"`
	Review string `gorm:"column:review;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (Rating) TableName() string {
	return "ratings"
}

// NoteView is a catalog row joined with its uploader and derived average rating.
type NoteView struct {
	ID            int64     `gorm:"column:id" json:"id"`
	Title         string    `gorm:"column:title" json:"title"`
	Category      string    `gorm:"column:category" json:"category"`
	Subject       string    `gorm:"column:subject" json:"subject"`
	Description   string    `gorm:"column:description" json:"description"`
	UploaderID    int64     `gorm:"column:uploader_id" json:"uploader_id"`
	Uploader      string    `gorm:"column:uploader" json:"uploader"`
	UploadedAt    time.Time `gorm:"column:uploaded_at" json:"uploaded_at"`
	Downloads     int64     `gorm:"column:downloads" json:"downloads"`
	TagsJSON      string    `gorm:"column:tags" json:"-"`
	Tags          []string  `gorm:"-" json:"tags"`
	FileName      string    `gorm:"column:file_name" json:"file_name"`
	FileSize      int64     `gorm:"column:file_size" json:"file_size"`
	RatingCount   int64     `gorm:"column:rating_count" json:"rating_count"`
	AverageRating float64   `gorm:"column:average_rating" json:"average_rating"`
}

// NormalizeTags trims whitespace and drops empty entries, preserving order.
func NormalizeTags(raw []string) []string {
	normalized := make([]string, 0, len(raw))
	for _, tag := range raw {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

// EncodeTags serializes an ordered tag list. The encoding round-trips exactly.
func EncodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// DecodeTags restores the ordered tag list from its serialized form.
func DecodeTags(encoded string) ([]string, error) {
	if strings.TrimSpace(encoded) == "" {
		return []string{}, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, nil
}
