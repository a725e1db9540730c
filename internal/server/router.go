package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudnotes/backend/internal/notes"
	"github.com/cloudnotes/backend/internal/storage"
	"github.com/cloudnotes/backend/internal/users"
)

const (
	userIDContextKey   = "cloudnotes_user_id"
	userRoleContextKey = "cloudnotes_user_role"

	defaultMaxUploadBytes = 32 << 20
)

var (
	errMissingUsersService  = errors.New("users service dependency required")
	errMissingNotesService  = errors.New("notes service dependency required")
	errMissingTokens        = errors.New("session token dependency required")
	errMissingFileStorage   = errors.New("file storage dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokens issues and validates bearer tokens for logged-in users.
type SessionTokens interface {
	IssueSessionToken(ctx context.Context, userID int64, role string) (string, int64, error)
	ValidateToken(token string) (int64, string, error)
}

// FileStorage is the byte-persistence collaborator consumed by the upload and
// download handlers.
type FileStorage interface {
	Save(reader io.Reader, originalName string) (storage.StoredFile, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// Dependencies wires the HTTP layer to its collaborators.
type Dependencies struct {
	UsersService   *users.Service
	NotesService   *notes.Service
	Tokens         SessionTokens
	Files          FileStorage
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router for the CloudNotes API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokens
	}
	if deps.Files == nil {
		return nil, errMissingFileStorage
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:     deps.UsersService,
		notes:     deps.NotesService,
		tokens:    deps.Tokens,
		files:     deps.Files,
		maxUpload: maxUpload,
		logger:    logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/notes", handler.handleSearch)
	protected.GET("/notes/categories", handler.handleCategories)
	protected.POST("/notes", handler.handleUpload)
	protected.GET("/notes/:id/download", handler.handleDownload)
	protected.POST("/notes/:id/rating", handler.handleRate)
	protected.DELETE("/notes/:id", handler.handleDelete)

	return router, nil
}

type httpHandler struct {
	users     *users.Service
	notes     *notes.Service
	tokens    SessionTokens
	files     FileStorage
	maxUpload int64
	logger    *zap.Logger
}

type registerRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type registerResponsePayload struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.users.Register(c.Request.Context(), request.Username, request.Password, request.Email)
	if errors.Is(err, users.ErrDuplicateUsername) {
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_username"})
		return
	}
	if errors.Is(err, users.ErrInvalidRegistration) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err != nil {
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	c.JSON(http.StatusCreated, registerResponsePayload{
		ID:       account.ID,
		Username: account.Username,
		Role:     string(account.Role),
	})
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	account, err := h.users.Authenticate(c.Request.Context(), request.Username, request.Password)
	if errors.Is(err, users.ErrAuthenticationFailed) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), account.ID, string(account.Role))
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	category := c.DefaultQuery("category", notes.CategoryAll)
	sort := notes.ParseSortMode(c.Query("sort"))

	views, err := h.notes.Search(c.Request.Context(), c.Query("q"), category, sort)
	if err != nil {
		h.logger.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notes": views})
}

func (h *httpHandler) handleCategories(c *gin.Context) {
	categories, err := h.notes.ListCategories(c.Request.Context())
	if err != nil {
		h.logger.Error("category listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "categories_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

type noteResponsePayload struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Subject  string   `json:"subject"`
	Tags     []string `json:"tags"`
	FileName string   `json:"file_name"`
	FileSize int64    `json:"file_size"`
}

func (h *httpHandler) handleUpload(c *gin.Context) {
	callerID := c.GetInt64(userIDContextKey)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_file"})
		return
	}
	if fileHeader.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}
	defer upload.Close()

	stored, err := h.files.Save(upload, fileHeader.Filename)
	if err != nil {
		h.logger.Error("failed to persist uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	note, err := h.notes.AddNote(c.Request.Context(), notes.AddNoteInput{
		Title:       c.PostForm("title"),
		Category:    c.PostForm("category"),
		Subject:     c.PostForm("subject"),
		Description: c.PostForm("description"),
		Tags:        strings.Split(c.PostForm("tags"), ","),
		UploaderID:  callerID,
		Stored:      stored,
	})
	if err != nil {
		// The catalog row was never created; drop the orphaned bytes.
		if removeErr := h.files.Remove(stored.Path); removeErr != nil {
			h.logger.Warn("failed to remove orphaned upload", zap.Error(removeErr))
		}
		h.respondServiceError(c, err, "upload_failed")
		return
	}

	tags, err := notes.DecodeTags(note.TagsJSON)
	if err != nil {
		h.logger.Error("failed to decode stored tags", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		return
	}

	c.JSON(http.StatusCreated, noteResponsePayload{
		ID:       note.ID,
		Title:    note.Title,
		Category: note.Category,
		Subject:  note.Subject,
		Tags:     tags,
		FileName: note.FileName,
		FileSize: note.FileSize,
	})
}

func (h *httpHandler) handleDownload(c *gin.Context) {
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}
	callerID := c.GetInt64(userIDContextKey)

	ref, err := h.notes.RecordDownload(c.Request.Context(), noteID, callerID)
	if err != nil {
		h.respondServiceError(c, err, "download_failed")
		return
	}

	reader, err := h.files.Open(ref.Path)
	if err != nil {
		h.logger.Error("failed to open stored file", zap.Error(err), zap.String("path", ref.Path))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "download_failed"})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, ref.Size, "application/octet-stream", reader, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", ref.Name),
	})
}

type rateRequestPayload struct {
	Rating *int   `json:"rating"`
	Review string `json:"review"`
}

func (h *httpHandler) handleRate(c *gin.Context) {
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}
	callerID := c.GetInt64(userIDContextKey)

	var request rateRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Rating == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.notes.Rate(c.Request.Context(), noteID, callerID, *request.Rating, request.Review); err != nil {
		h.respondServiceError(c, err, "rating_failed")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	noteID, ok := parseNoteID(c)
	if !ok {
		return
	}
	callerID := c.GetInt64(userIDContextKey)
	callerRole := users.ParseRole(c.GetString(userRoleContextKey))

	if err := h.notes.DeleteNote(c.Request.Context(), noteID, callerID, callerRole); err != nil {
		h.respondServiceError(c, err, "delete_failed")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	userID, role, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, userID)
	c.Set(userRoleContextKey, role)
	c.Next()
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, notes.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, notes.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, notes.ErrInvalidNote):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("notes operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func parseNoteID(c *gin.Context) (int64, bool) {
	noteID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || noteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return 0, false
	}
	return noteID, true
}
