package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studybuddy/backend/internal/identity"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// historyLimit bounds the chat history replayed to a joining client.
const historyLimit = 100

var (
	// ErrNotFound indicates no room exists for the identifier.
	ErrNotFound = errors.New("rooms: not found")

	errMissingDatabase = errors.New("rooms: database handle is required")
	errMissingProvider = errors.New("rooms: id provider is required")
)

// Reader is the read side of the store consumed by session hydration.
type Reader interface {
	Snapshot(ctx context.Context, roomID string) (Snapshot, bool, error)
}

// NotepadWriter persists notepad overwrites.
type NotepadWriter interface {
	SaveNotepad(ctx context.Context, roomID, content string) error
}

// MessageAppender persists chat messages.
type MessageAppender interface {
	AppendMessage(ctx context.Context, roomID string, message ChatMessage) error
}

// StoreConfig describes the dependencies required by the room store.
type StoreConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identity.Provider
	Logger     *zap.Logger
}

// Store is the gorm-backed durable record of rooms, membership, chat
// history, and shared files.
type Store struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identity.Provider
	logger     *zap.Logger
}

// NewStore constructs the room store.
func NewStore(cfg StoreConfig) (*Store, error) {
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
	return &Store{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// Create inserts a new room hosted by hostID, who becomes its first member.
func (s *Store) Create(ctx context.Context, name, description, hostID string) (Room, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		return Room{}, fmt.Errorf("rooms: generate id: %w", err)
	}
	now := s.clock().UTC()
	room := Room{
		ID:          id,
		Name:        name,
		Description: description,
		HostID:      hostID,
		CreatedAt:   now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		return tx.Create(&Membership{RoomID: id, UserID: hostID, JoinedAt: now}).Error
	})
	if err != nil {
		s.logger.Error("room create failed", zap.String("room_id", id), zap.Error(err))
		return Room{}, fmt.Errorf("rooms: create: %w", err)
	}
	return room, nil
}

// List returns all rooms, newest first.
func (s *Store) List(ctx context.Context) ([]Room, error) {
	var result []Room
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&result).Error; err != nil {
		return nil, fmt.Errorf("rooms: list: %w", err)
	}
	return result, nil
}

// ListForUser returns rooms the user hosts or belongs to, newest first.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]Room, error) {
	var result []Room
	err := s.db.WithContext(ctx).
		Where("host_id = ? OR id IN (?)", userID,
			s.db.Model(&Membership{}).Select("room_id").Where("user_id = ?", userID)).
		Order("created_at DESC").
		Find(&result).Error
	if err != nil {
		return nil, fmt.Errorf("rooms: list for user: %w", err)
	}
	return result, nil
}

// Get fetches a room with its members, recent chat history, and file
// entries.
func (s *Store) Get(ctx context.Context, roomID string) (Detail, error) {
	var room Room
	err := s.db.WithContext(ctx).Where("id = ?", roomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Detail{}, ErrNotFound
	}
	if err != nil {
		return Detail{}, fmt.Errorf("rooms: get: %w", err)
	}

	memberIDs, err := s.memberIDs(ctx, roomID)
	if err != nil {
		return Detail{}, err
	}

	messages, err := s.recentMessages(ctx, roomID)
	if err != nil {
		return Detail{}, err
	}

	var files []FileEntry
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at").Find(&files).Error; err != nil {
		return Detail{}, fmt.Errorf("rooms: get files: %w", err)
	}

	return Detail{Room: room, Members: memberIDs, Messages: messages, Files: files}, nil
}

// Join adds userID to the room's membership. Re-joining is a no-op.
func (s *Store) Join(ctx context.Context, roomID, userID string) (Detail, error) {
	if _, err := s.Get(ctx, roomID); err != nil {
		return Detail{}, err
	}
	membership := Membership{RoomID: roomID, UserID: userID, JoinedAt: s.clock().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&membership).Error
	if err != nil {
		s.logger.Error("room join failed", zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
		return Detail{}, fmt.Errorf("rooms: join: %w", err)
	}
	return s.Get(ctx, roomID)
}

// AddFile appends a file entry to the room.
func (s *Store) AddFile(ctx context.Context, roomID, title, url, ownerID string) (FileEntry, error) {
	if _, err := s.Get(ctx, roomID); err != nil {
		return FileEntry{}, err
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return FileEntry{}, fmt.Errorf("rooms: generate id: %w", err)
	}
	entry := FileEntry{
		ID:        id,
		RoomID:    roomID,
		Title:     title,
		URL:       url,
		OwnerID:   ownerID,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("room file insert failed", zap.String("room_id", roomID), zap.Error(err))
		return FileEntry{}, fmt.Errorf("rooms: add file: %w", err)
	}
	return entry, nil
}

// Snapshot reads the state used to activate a live session for the room:
// the notepad, the most recent chat history, and the member ids. The second
// return value is false when the room does not exist; that is an absence
// signal, not an error.
func (s *Store) Snapshot(ctx context.Context, roomID string) (Snapshot, bool, error) {
	var room Room
	err := s.db.WithContext(ctx).Where("id = ?", roomID).Take(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("rooms: snapshot: %w", err)
	}

	messages, err := s.recentMessages(ctx, roomID)
	if err != nil {
		return Snapshot{}, false, err
	}

	memberIDs, err := s.memberIDs(ctx, roomID)
	if err != nil {
		return Snapshot{}, false, err
	}

	return Snapshot{Notepad: room.Notepad, Messages: messages, MemberIDs: memberIDs}, true, nil
}

// recentMessages reads the last historyLimit chat messages, oldest-first.
func (s *Store) recentMessages(ctx context.Context, roomID string) ([]ChatMessage, error) {
	var stored []StoredMessage
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id DESC").
		Limit(historyLimit).
		Find(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("rooms: recent messages: %w", err)
	}

	// Rows were fetched newest-first to apply the limit; replay oldest-first.
	messages := make([]ChatMessage, 0, len(stored))
	for index := len(stored) - 1; index >= 0; index-- {
		messages = append(messages, ChatMessage{
			Sender: stored[index].Sender,
			Text:   stored[index].Text,
			Ts:     stored[index].SentAt,
		})
	}
	return messages, nil
}

// SaveNotepad overwrites the stored notepad for the room.
func (s *Store) SaveNotepad(ctx context.Context, roomID, content string) error {
	result := s.db.WithContext(ctx).Model(&Room{}).Where("id = ?", roomID).Update("notepad", content)
	if result.Error != nil {
		return fmt.Errorf("rooms: save notepad: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage appends a chat message to the room's stored history.
func (s *Store) AppendMessage(ctx context.Context, roomID string, message ChatMessage) error {
	row := StoredMessage{
		RoomID: roomID,
		Sender: message.Sender,
		Text:   message.Text,
		SentAt: message.Ts,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("rooms: append message: %w", err)
	}
	return nil
}

func (s *Store) memberIDs(ctx context.Context, roomID string) ([]string, error) {
	var memberships []Membership
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("joined_at").Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("rooms: get members: %w", err)
	}
	ids := make([]string, 0, len(memberships))
	for _, membership := range memberships {
		ids = append(ids, membership.UserID)
	}
	return ids, nil
}
