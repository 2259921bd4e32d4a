// Package study manages the flashcard and resource collections and the
// dashboard aggregation over them.
package study

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studybuddy/backend/internal/identity"
	"github.com/studybuddy/backend/internal/rooms"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dashboardRecentLimit = 10

var (
	// ErrNotFound indicates the record does not exist.
	ErrNotFound = errors.New("study: not found")
	// ErrForbidden indicates the caller may not access the record.
	ErrForbidden = errors.New("study: forbidden")

	errMissingDatabase = errors.New("study: database handle is required")
	errMissingProvider = errors.New("study: id provider is required")
	errMissingRooms    = errors.New("study: room lister is required")
)

// RoomLister supplies the rooms shown on a user's dashboard.
type RoomLister interface {
	ListForUser(ctx context.Context, userID string) ([]rooms.Room, error)
}

// ServiceConfig describes the dependencies of the study service.
type ServiceConfig struct {
	Database   *gorm.DB
	Rooms      RoomLister
	Clock      func() time.Time
	IDProvider identity.Provider
	Logger     *zap.Logger
}

// Service implements flashcard and resource CRUD plus dashboard aggregation.
type Service struct {
	db         *gorm.DB
	rooms      RoomLister
	clock      func() time.Time
	idProvider identity.Provider
	logger     *zap.Logger
}

// NewService constructs the study service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.IDProvider == nil {
		return nil, errMissingProvider
	}
	if cfg.Rooms == nil {
		return nil, errMissingRooms
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         cfg.Database,
		rooms:      cfg.Rooms,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateFlashcard inserts a card owned by userID, shared with the given users.
func (s *Service) CreateFlashcard(ctx context.Context, userID, title, front, back string, sharedWith []string) (Flashcard, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		return Flashcard{}, fmt.Errorf("study: generate id: %w", err)
	}
	card := Flashcard{
		ID:        id,
		OwnerID:   userID,
		Title:     title,
		Front:     front,
		Back:      back,
		CreatedAt: s.clock().UTC(),
	}
	for _, shared := range sharedWith {
		card.SharedWith = append(card.SharedWith, FlashcardShare{FlashcardID: id, UserID: shared})
	}
	if err := s.db.WithContext(ctx).Create(&card).Error; err != nil {
		s.logger.Error("flashcard insert failed", zap.String("user_id", userID), zap.Error(err))
		return Flashcard{}, fmt.Errorf("study: create flashcard: %w", err)
	}
	return card, nil
}

// ListFlashcards returns cards the user owns or that are shared with them,
// newest first.
func (s *Service) ListFlashcards(ctx context.Context, userID string) ([]Flashcard, error) {
	var cards []Flashcard
	err := s.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)", userID,
			s.db.Model(&FlashcardShare{}).Select("flashcard_id").Where("user_id = ?", userID)).
		Order("created_at DESC").
		Find(&cards).Error
	if err != nil {
		return nil, fmt.Errorf("study: list flashcards: %w", err)
	}
	return cards, nil
}

// GetFlashcard fetches one card, enforcing owner-or-shared access.
func (s *Service) GetFlashcard(ctx context.Context, userID, cardID string) (Flashcard, error) {
	var card Flashcard
	err := s.db.WithContext(ctx).Preload("SharedWith").Where("id = ?", cardID).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Flashcard{}, ErrNotFound
	}
	if err != nil {
		return Flashcard{}, fmt.Errorf("study: get flashcard: %w", err)
	}
	if card.OwnerID != userID && !sharedWithUser(card.SharedWith, userID) {
		return Flashcard{}, ErrForbidden
	}
	return card, nil
}

// DeleteFlashcard removes a card; only its owner may do so.
func (s *Service) DeleteFlashcard(ctx context.Context, userID, cardID string) error {
	var card Flashcard
	err := s.db.WithContext(ctx).Where("id = ?", cardID).Take(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("study: delete lookup: %w", err)
	}
	if card.OwnerID != userID {
		return ErrForbidden
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flashcard_id = ?", cardID).Delete(&FlashcardShare{}).Error; err != nil {
			return err
		}
		return tx.Delete(&card).Error
	})
}

// CreateResource inserts a study resource owned by userID.
func (s *Service) CreateResource(ctx context.Context, userID, title, description, url string, tags []string) (Resource, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		return Resource{}, fmt.Errorf("study: generate id: %w", err)
	}
	resource := Resource{
		ID:          id,
		OwnerID:     userID,
		Title:       title,
		Description: description,
		URL:         url,
		Tags:        strings.Join(tags, ","),
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&resource).Error; err != nil {
		s.logger.Error("resource insert failed", zap.String("user_id", userID), zap.Error(err))
		return Resource{}, fmt.Errorf("study: create resource: %w", err)
	}
	return resource, nil
}

// ListResources returns all resources, newest first.
func (s *Service) ListResources(ctx context.Context) ([]Resource, error) {
	var resources []Resource
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&resources).Error; err != nil {
		return nil, fmt.Errorf("study: list resources: %w", err)
	}
	return resources, nil
}

// Dashboard is the aggregate payload behind the dashboard page.
type Dashboard struct {
	Rooms      []rooms.Room `json:"rooms"`
	Resources  []Resource   `json:"resources"`
	Flashcards []Flashcard  `json:"flashcards"`
}

// BuildDashboard aggregates the user's rooms and recent materials.
func (s *Service) BuildDashboard(ctx context.Context, userID string) (Dashboard, error) {
	userRooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return Dashboard{}, fmt.Errorf("study: dashboard rooms: %w", err)
	}

	var recentResources []Resource
	err = s.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Limit(dashboardRecentLimit).
		Find(&recentResources).Error
	if err != nil {
		return Dashboard{}, fmt.Errorf("study: dashboard resources: %w", err)
	}

	var recentCards []Flashcard
	err = s.db.WithContext(ctx).
		Where("owner_id = ?", userID).
		Order("created_at DESC").
		Limit(dashboardRecentLimit).
		Find(&recentCards).Error
	if err != nil {
		return Dashboard{}, fmt.Errorf("study: dashboard flashcards: %w", err)
	}

	return Dashboard{
		Rooms:      userRooms,
		Resources:  recentResources,
		Flashcards: recentCards,
	}, nil
}

func sharedWithUser(shares []FlashcardShare, userID string) bool {
	for _, share := range shares {
		if share.UserID == userID {
			return true
		}
	}
	return false
}
