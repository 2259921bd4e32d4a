package rooms

import "time"

// Room is the durable record of a study room.
type Room struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	HostID      string    `gorm:"index" json:"host"`
	Notepad     string    `json:"notepad"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (Room) TableName() string {
	return "rooms"
}

// Membership links a user to a room.
type Membership struct {
	RoomID   string `gorm:"primaryKey"`
	UserID   string `gorm:"primaryKey"`
	JoinedAt time.Time
}

// TableName pins the table name independent of gorm pluralization rules.
func (Membership) TableName() string {
	return "room_members"
}

// StoredMessage is one row of a room's persisted chat history.
type StoredMessage struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	RoomID string `gorm:"index"`
	Sender string
	Text   string
	SentAt time.Time
}

// TableName pins the table name independent of gorm pluralization rules.
func (StoredMessage) TableName() string {
	return "room_messages"
}

// FileEntry is a shared file reference attached to a room.
type FileEntry struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"index" json:"roomId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	OwnerID   string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName pins the table name independent of gorm pluralization rules.
func (FileEntry) TableName() string {
	return "room_files"
}

// ChatMessage is the wire form of a chat entry, shared by the gateway,
// the store, and join-time history replay.
type ChatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Ts     time.Time `json:"ts"`
}

// Snapshot is the state read from the store when a room session is activated.
type Snapshot struct {
	Notepad   string
	Messages  []ChatMessage
	MemberIDs []string
}

// Detail is a room together with its membership, recent chat history, and
// file list, as served by the REST API. A client may seed its local room
// view from this payload before the socket join reply arrives.
type Detail struct {
	Room
	Members  []string      `json:"members"`
	Messages []ChatMessage `json:"messages"`
	Files    []FileEntry   `json:"files"`
}
