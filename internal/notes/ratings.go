package notes

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Rate upserts the caller's rating of a note and recomputes the note's
// denormalized aggregate inside the same transaction. The recompute reads the
// full ledger rather than applying a delta, so the aggregate self-heals even
// if prior state were inconsistent. Values are accepted as given; no range is
// enforced at this layer.
func (s *Service) Rate(ctx context.Context, noteID, callerID int64, value int, review string) error {
	if callerID <= 0 {
		return newServiceError(opRate, "unauthenticated", ErrUnauthenticated)
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists Note
		err := tx.Select("id").Where("id = ?", noteID).Take(&exists).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opRate, "note_not_found", ErrNoteNotFound)
		}
		if err != nil {
			s.logError(opRate, "note_select_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opRate, "note_select_failed", err)
		}

		entry := Rating{NoteID: noteID, UserID: callerID, Value: value, Review: review}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "note_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating", "review"}),
		}).Create(&entry).Error; err != nil {
			s.logError(opRate, "rating_upsert_failed", err,
				zap.Int64("note_id", noteID), zap.Int64("user_id", callerID))
			return newServiceError(opRate, "rating_upsert_failed", err)
		}

		if err := tx.Exec(`
			UPDATE notes SET
				rating_sum = (SELECT COALESCE(SUM(rating), 0) FROM ratings WHERE note_id = ?),
				rating_count = (SELECT COUNT(*) FROM ratings WHERE note_id = ?)
			WHERE id = ?`, noteID, noteID, noteID).Error; err != nil {
			s.logError(opRate, "aggregate_recompute_failed", err, zap.Int64("note_id", noteID))
			return newServiceError(opRate, "aggregate_recompute_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.logger.Debug("note rated",
		zap.Int64("note_id", noteID),
		zap.Int64("user_id", callerID),
		zap.Int("rating", value))
	return nil
}
