package store

import "time"

// ChatType is the normalized kind of a chat.
type ChatType string

const (
	ChatUser       ChatType = "user"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// Valid reports whether t is one of the known chat types.
func (t ChatType) Valid() bool {
	switch t {
	case ChatUser, ChatGroup, ChatSupergroup, ChatChannel:
		return true
	}
	return false
}

// Chat represents a synced chat.
type Chat struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Username        *string    `json:"username,omitempty"`
	Type            ChatType   `json:"type"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
}

// Contact is a chat of type user seen as an address book entry.
type Contact struct {
	ID       int64   `json:"id"`
	Username *string `json:"username,omitempty"`
	Name     string  `json:"name"`
}

// Message represents a synced message. ChatTitle is filled on reads only.
type Message struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chat_id"`
	ChatTitle  string    `json:"chat_title,omitempty"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsFromMe   bool      `json:"is_from_me"`
}

// MessageFilter selects messages for ListMessages. Zero values disable a filter.
type MessageFilter struct {
	ChatID   int64
	SenderID int64
	Query    string
	After    *time.Time
	Before   *time.Time
	Limit    int
	Offset   int
}

// ChatSort orders ListChats results.
type ChatSort string

const (
	SortLastActive ChatSort = "last_active"
	SortTitle      ChatSort = "title"
)

// ChatFilter selects chats for ListChats.
type ChatFilter struct {
	Query  string
	Type   ChatType
	Limit  int
	Offset int
	SortBy ChatSort
}
