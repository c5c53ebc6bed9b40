package tgclient

import "github.com/gotd/td/tg"

// Marked IDs give every peer a single int64 namespace: users keep their ID,
// basic groups are negated and channels are shifted below -1e12.
const channelShift = 1_000_000_000_000

// PeerKind is the kind of peer a marked ID refers to.
type PeerKind int

const (
	KindUser PeerKind = iota
	KindChat
	KindChannel
)

func (k PeerKind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindChannel:
		return "channel"
	default:
		return "user"
	}
}

// ChatID returns the marked ID of a basic group.
func ChatID(id int64) int64 { return -id }

// ChannelID returns the marked ID of a channel or supergroup.
func ChannelID(id int64) int64 { return -(channelShift + id) }

// Unmark splits a marked ID into its kind and raw provider ID.
func Unmark(marked int64) (PeerKind, int64) {
	switch {
	case marked > 0:
		return KindUser, marked
	case marked <= -channelShift:
		return KindChannel, -marked - channelShift
	default:
		return KindChat, -marked
	}
}

// PeerID returns the marked ID of p, or 0 for an unknown peer type.
func PeerID(p tg.PeerClass) int64 {
	switch p := p.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return ChatID(p.ChatID)
	case *tg.PeerChannel:
		return ChannelID(p.ChannelID)
	default:
		return 0
	}
}
