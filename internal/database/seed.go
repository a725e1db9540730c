package database

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cloudnotes/backend/internal/auth"
	"github.com/cloudnotes/backend/internal/notes"
	"github.com/cloudnotes/backend/internal/storage"
	"github.com/cloudnotes/backend/internal/users"
)

const (
	seedAdminUsername = "admin"
	seedAdminPassword = "admin123"
	seedAdminEmail    = "a@cloudnotes.pro"
	seedDemoFileName  = "demo.pdf"
	seedDemoFileBody  = "CloudNotes Pro - Demo File"
)

// Seed provisions the admin account and a demo note when the users table is
// empty, so a fresh install has something to show. Existing databases are
// left untouched.
func Seed(db *gorm.DB, files *storage.FileStore, hasher *auth.PasswordHasher, logger *zap.Logger) error {
	var userCount int64
	if err := db.Model(&users.User{}).Count(&userCount).Error; err != nil {
		return err
	}
	if userCount > 0 {
		return nil
	}

	digest, err := hasher.Hash(seedAdminPassword)
	if err != nil {
		return err
	}
	admin := users.User{
		Username:       seedAdminUsername,
		PasswordDigest: digest,
		Email:          seedAdminEmail,
		Role:           users.RoleAdmin,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	stored, err := files.Save(strings.NewReader(seedDemoFileBody), seedDemoFileName)
	if err != nil {
		return err
	}

	tagsJSON, err := notes.EncodeTags([]string{"python", "programming", "basics"})
	if err != nil {
		return err
	}
	demo := notes.Note{
		Title:       "Python Programming",
		Category:    "Computer Science",
		Subject:     "Programming",
		Description: "Complete beginner guide",
		UploaderID:  admin.ID,
		UploadedAt:  time.Now().UTC(),
		TagsJSON:    tagsJSON,
		FilePath:    stored.Path,
		FileName:    stored.Name,
		FileSize:    stored.Size,
	}
	if err := db.Create(&demo).Error; err != nil {
		return err
	}

	if logger != nil {
		logger.Info("seeded demo data",
			zap.Int64("admin_id", admin.ID),
			zap.Int64("demo_note_id", demo.ID))
	}
	return nil
}
