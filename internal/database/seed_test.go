package database

import (
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cloudnotes/backend/internal/auth"
	"github.com/cloudnotes/backend/internal/notes"
	"github.com/cloudnotes/backend/internal/storage"
	"github.com/cloudnotes/backend/internal/users"
)

func newSeedFixture(t *testing.T) (*gorm.DB, *storage.FileStore, *auth.PasswordHasher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:seed-"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &notes.Rating{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	files, err := storage.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to construct file store: %v", err)
	}
	return db, files, auth.NewPasswordHasher()
}

func TestSeedProvisionsAdminAndDemoNote(t *testing.T) {
	db, files, hasher := newSeedFixture(t)

	if err := Seed(db, files, hasher, nil); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}

	var admin users.User
	if err := db.Where("username = ?", "admin").Take(&admin).Error; err != nil {
		t.Fatalf("failed to load admin: %v", err)
	}
	if admin.Role != users.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}
	if !hasher.Compare(admin.PasswordDigest, "admin123") {
		t.Fatalf("expected seeded digest to match the default password")
	}

	var demo notes.Note
	if err := db.Where("uploader_id = ?", admin.ID).Take(&demo).Error; err != nil {
		t.Fatalf("failed to load demo note: %v", err)
	}
	if demo.Title != "Python Programming" {
		t.Fatalf("unexpected demo title %s", demo.Title)
	}

	tags, err := notes.DecodeTags(demo.TagsJSON)
	if err != nil {
		t.Fatalf("unexpected tag decode error: %v", err)
	}
	if len(tags) != 3 || tags[0] != "python" {
		t.Fatalf("unexpected demo tags %#v", tags)
	}
}

func TestSeedSkipsPopulatedDatabase(t *testing.T) {
	db, files, hasher := newSeedFixture(t)

	existing := users.User{Username: "resident", PasswordDigest: "digest", Email: "r@example.edu", Role: users.RoleStudent}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("failed to create existing user: %v", err)
	}

	if err := Seed(db, files, hasher, nil); err != nil {
		t.Fatalf("unexpected seed error: %v", err)
	}

	var count int64
	if err := db.Model(&users.User{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected seed to leave populated database alone, got %d users", count)
	}
}
