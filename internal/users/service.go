package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cloudnotes/backend/internal/auth"
)

var (
	// ErrDuplicateUsername indicates a registration attempt with a taken username.
	ErrDuplicateUsername = errors.New("users: username already registered")
	// ErrAuthenticationFailed indicates an unknown username or a digest mismatch.
	ErrAuthenticationFailed = errors.New("users: authentication failed")
	// ErrInvalidRegistration indicates missing registration fields.
	ErrInvalidRegistration = errors.New("users: username, password, and email are required")

	errMissingDatabase = errors.New("users: database connection required")
	errMissingHasher   = errors.New("users: password hasher required")
)

// ServiceConfig describes the dependencies of the credential store.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   *auth.PasswordHasher
	Logger   *zap.Logger
}

// Service implements registration and credential verification.
type Service struct {
	db     *gorm.DB
	hasher *auth.PasswordHasher
	logger *zap.Logger
}

// NewService constructs the credential store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Hasher == nil {
		return nil, errMissingHasher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, hasher: cfg.Hasher, logger: logger}, nil
}

// Register creates a new account with the student role and a one-way password digest.
// The plaintext password is never stored.
func (s *Service) Register(ctx context.Context, username, password, email string) (User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" || email == "" {
		return User{}, ErrInvalidRegistration
	}

	digest, err := s.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("users: hashing password: %w", err)
	}

	account := User{
		Username:       username,
		PasswordDigest: digest,
		Email:          email,
		Role:           RoleStudent,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing User
		err := tx.Where("username = ?", username).Take(&existing).Error
		if err == nil {
			return ErrDuplicateUsername
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&account).Error
	})
	if txErr != nil {
		if !errors.Is(txErr, ErrDuplicateUsername) {
			s.logger.Error("user registration failed", zap.String("username", username), zap.Error(txErr))
		}
		return User{}, txErr
	}

	s.logger.Info("user registered", zap.Int64("user_id", account.ID), zap.String("username", username))
	return account, nil
}

// Authenticate verifies the supplied credentials and returns the full account record.
// Unknown usernames and digest mismatches are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	var account User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrAuthenticationFailed
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("username", username), zap.Error(err))
		return User{}, err
	}
	if !s.hasher.Compare(account.PasswordDigest, password) {
		return User{}, ErrAuthenticationFailed
	}
	return account, nil
}
