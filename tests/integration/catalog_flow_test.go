package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cloudnotes/backend/internal/auth"
	"github.com/cloudnotes/backend/internal/database"
	"github.com/cloudnotes/backend/internal/notes"
	"github.com/cloudnotes/backend/internal/server"
	"github.com/cloudnotes/backend/internal/storage"
	"github.com/cloudnotes/backend/internal/users"
)

const (
	signingSecret   = "integration-secret"
	jsonContentType = "application/json"
)

func newStack(t *testing.T) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(fmt.Sprintf("file:integration-%s?mode=memory&cache=shared", t.Name()), nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	fileStore, err := storage.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to construct file store: %v", err)
	}
	hasher := auth.NewPasswordHasher()

	if err := database.Seed(db, fileStore, hasher, nil); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db, Hasher: hasher})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	notesService, err := notes.NewService(notes.ServiceConfig{Database: db, Files: fileStore})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		UsersService: usersService,
		NotesService: notesService,
		Tokens: auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(signingSecret),
			Issuer:        "cloudnotes-auth",
			Audience:      "cloudnotes-api",
			TokenTTL:      time.Hour,
		}),
		Files: fileStore,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return handler
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func TestFullCatalogFlow(t *testing.T) {
	handler := newStack(t)

	// Register and log in a student.
	recorder := doJSON(t, handler, http.MethodPost, "/auth/register", "", map[string]string{
		"username": "student1",
		"password": "notes4life",
		"email":    "student1@example.edu",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("registration failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, handler, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "student1",
		"password": "notes4life",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &login); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}

	// The seeded demo note is already searchable.
	recorder = doJSON(t, handler, http.MethodGet, "/notes?q=python&sort=recent", login.AccessToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("search failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var search struct {
		Notes []struct {
			ID       int64  `json:"id"`
			Title    string `json:"title"`
			Uploader string `json:"uploader"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &search); err != nil {
		t.Fatalf("failed to decode search response: %v", err)
	}
	if len(search.Notes) != 1 || search.Notes[0].Title != "Python Programming" {
		t.Fatalf("expected the seeded demo note, got %#v", search.Notes)
	}
	if search.Notes[0].Uploader != "admin" {
		t.Fatalf("expected admin uploader, got %s", search.Notes[0].Uploader)
	}
	demoNoteID := search.Notes[0].ID

	// Upload a second note.
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	for field, value := range map[string]string{
		"title":    "Linear Algebra",
		"category": "Math",
		"subject":  "Vectors",
		"tags":     "matrices, vectors",
	} {
		if err := writer.WriteField(field, value); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", "linalg.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write([]byte("vectors all the way down")); err != nil {
		t.Fatalf("failed to write file part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	uploadRequest := httptest.NewRequest(http.MethodPost, "/notes", &buffer)
	uploadRequest.Header.Set("Content-Type", writer.FormDataContentType())
	uploadRequest.Header.Set("Authorization", "Bearer "+login.AccessToken)
	uploadRecorder := httptest.NewRecorder()
	handler.ServeHTTP(uploadRecorder, uploadRequest)
	if uploadRecorder.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d %s", uploadRecorder.Code, uploadRecorder.Body.String())
	}

	// Rate the demo note and confirm the categories list grew.
	recorder = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/notes/%d/rating", demoNoteID), login.AccessToken, map[string]interface{}{
		"rating": 5,
		"review": "excellent walkthrough",
	})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("rating failed: %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, handler, http.MethodGet, "/notes/categories", login.AccessToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("categories failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var categories struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &categories); err != nil {
		t.Fatalf("failed to decode categories: %v", err)
	}
	expected := []string{"All", "Computer Science", "Math"}
	if len(categories.Categories) != len(expected) {
		t.Fatalf("unexpected categories %#v", categories.Categories)
	}
	for i := range expected {
		if categories.Categories[i] != expected[i] {
			t.Fatalf("expected %s at %d, got %s", expected[i], i, categories.Categories[i])
		}
	}

	// Rating sort now places the rated demo note first.
	recorder = doJSON(t, handler, http.MethodGet, "/notes?sort=rating", login.AccessToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("rating-sorted search failed: %d %s", recorder.Code, recorder.Body.String())
	}
	var ranked struct {
		Notes []struct {
			ID            int64   `json:"id"`
			AverageRating float64 `json:"average_rating"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &ranked); err != nil {
		t.Fatalf("failed to decode ranked search: %v", err)
	}
	if len(ranked.Notes) != 2 {
		t.Fatalf("expected 2 notes, got %d", len(ranked.Notes))
	}
	if ranked.Notes[0].ID != demoNoteID || ranked.Notes[0].AverageRating != 5 {
		t.Fatalf("expected rated demo note first, got %#v", ranked.Notes[0])
	}

	// A student cannot delete the admin's note.
	recorder = doJSON(t, handler, http.MethodDelete, fmt.Sprintf("/notes/%d", demoNoteID), login.AccessToken, nil)
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden delete, got %d", recorder.Code)
	}
}
