package notes

import (
	"context"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cloudnotes/backend/internal/storage"
	"github.com/cloudnotes/backend/internal/users"
)

type recordingFileRemover struct {
	removed []string
	err     error
}

func (r *recordingFileRemover) Remove(path string) error {
	if r.err != nil {
		return r.err
	}
	r.removed = append(r.removed, path)
	return nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *testClock, *recordingFileRemover) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:notes-%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &Note{}, &Rating{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := &testClock{now: time.Unix(1700000000, 0).UTC()}
	remover := &recordingFileRemover{}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    clock.Now,
		Files:    remover,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db, clock, remover
}

func seedUser(t *testing.T, db *gorm.DB, username string, role users.Role) users.User {
	t.Helper()
	account := users.User{
		Username:       username,
		PasswordDigest: "digest",
		Email:          username + "@example.edu",
		Role:           role,
	}
	if err := db.Create(&account).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	return account
}

func seedStoredFile(name string) storage.StoredFile {
	return storage.StoredFile{Path: "/files/" + name, Name: name + ".pdf", Size: 1234}
}

func seedNote(t *testing.T, service *Service, uploaderID int64, title string, tags []string) Note {
	t.Helper()
	note, err := service.AddNote(context.Background(), AddNoteInput{
		Title:      title,
		Category:   "Computer Science",
		Subject:    "Programming",
		Tags:       tags,
		UploaderID: uploaderID,
		Stored:     seedStoredFile(title),
	})
	if err != nil {
		t.Fatalf("failed to seed note %s: %v", title, err)
	}
	return note
}
