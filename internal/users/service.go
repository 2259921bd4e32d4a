package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studybuddy/backend/internal/auth"
	"github.com/studybuddy/backend/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates the email/password pair did not match.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrNotFound indicates no account exists for the identifier.
	ErrNotFound = errors.New("users: not found")

	errMissingDatabase = errors.New("users: database handle is required")
	errMissingProvider = errors.New("users: id provider is required")
)

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identity.Provider
	Logger     *zap.Logger
}

// Service manages account signup, login, and lookup.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identity.Provider
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingProvider
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Signup registers a new account and returns the created user.
func (s *Service) Signup(ctx context.Context, email, password, displayName string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return User{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("signup lookup failed", zap.String("email", email), zap.Error(err))
		return User{}, fmt.Errorf("users: signup lookup: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("users: %w", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return User{}, fmt.Errorf("users: generate id: %w", err)
	}

	user := User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		s.logger.Error("signup insert failed", zap.String("email", email), zap.Error(err))
		return User{}, fmt.Errorf("users: signup insert: %w", err)
	}

	return user, nil
}

// Login authenticates an email/password pair and returns the matching user.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logger.Error("login lookup failed", zap.String("email", email), zap.Error(err))
		return User{}, fmt.Errorf("users: login lookup: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return User{}, ErrInvalidCredentials
	}

	return user, nil
}

// GetByID fetches a single account by identifier.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: lookup: %w", err)
	}
	return user, nil
}
