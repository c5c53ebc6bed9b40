package entity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/tgbridge/internal/store"
)

// ErrUnknownEntityType is matched by every *UnknownTypeError.
var ErrUnknownEntityType = errors.New("unknown entity type")

// Entity is a chat-capable peer as seen by the network client.
// The set of variants is closed: Person, Group, Channel, Other.
type Entity interface {
	EntityID() int64
	isEntity()
}

// Person is a user account, bot accounts included.
type Person struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// Group is a basic (small) group chat.
type Group struct {
	ID    int64
	Title string
}

// Channel is a broadcast channel, or a supergroup when Broadcast is false.
type Channel struct {
	ID        int64
	Title     string
	Username  string
	Broadcast bool
}

// Other is any peer kind the classifier does not understand.
type Other struct {
	ID   int64
	Kind string
}

func (p Person) EntityID() int64  { return p.ID }
func (g Group) EntityID() int64   { return g.ID }
func (c Channel) EntityID() int64 { return c.ID }
func (o Other) EntityID() int64   { return o.ID }

func (Person) isEntity()  {}
func (Group) isEntity()   {}
func (Channel) isEntity() {}
func (Other) isEntity()   {}

// Classification is the normalized view of an entity stored as a chat row.
type Classification struct {
	Type     store.ChatType
	Title    string
	Username *string
}

// UnknownTypeError reports an entity variant that cannot be stored as a chat.
type UnknownTypeError struct {
	Kind string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown entity type %q", e.Kind)
}

func (e *UnknownTypeError) Is(target error) bool {
	return target == ErrUnknownEntityType
}

// Classify maps an entity onto its chat type, title and username.
func Classify(e Entity) (Classification, error) {
	switch v := e.(type) {
	case Person:
		return Classification{Type: store.ChatUser, Title: DisplayName(v), Username: optional(v.Username)}, nil
	case Group:
		return Classification{Type: store.ChatGroup, Title: v.Title}, nil
	case Channel:
		t := store.ChatSupergroup
		if v.Broadcast {
			t = store.ChatChannel
		}
		return Classification{Type: t, Title: v.Title, Username: optional(v.Username)}, nil
	case Other:
		return Classification{}, &UnknownTypeError{Kind: v.Kind}
	case nil:
		return Classification{}, &UnknownTypeError{Kind: "nil"}
	default:
		return Classification{}, &UnknownTypeError{Kind: fmt.Sprintf("%T", e)}
	}
}

// DisplayName returns the name shown for an entity as a message sender.
func DisplayName(e Entity) string {
	switch v := e.(type) {
	case Person:
		name := strings.TrimSpace(v.FirstName + " " + v.LastName)
		if name != "" {
			return name
		}
		if v.Username != "" {
			return v.Username
		}
		return "Unknown"
	case Group:
		return v.Title
	case Channel:
		return v.Title
	default:
		return "Unknown"
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
