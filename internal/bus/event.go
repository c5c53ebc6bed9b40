package bus

import "time"

// Event kinds published by the daemon. Subscribers match on prefixes such as
// "message." or "sync.".
const (
	KindMessageUpserted = "message.upserted"
	KindDialogSynced    = "sync.dialog_synced"
	KindSyncCompleted   = "sync.completed"
	KindStatusChanged   = "session.status_changed"
	KindSendCompleted   = "message.send_ack"
	KindSendFailed      = "message.send_failed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies a stored message in a KindMessageUpserted payload.
type MessageRef struct {
	ChatID    int64
	MessageID int64
	Live      bool
}

// DialogSynced is the payload of KindDialogSynced.
type DialogSynced struct {
	ChatID int64
	Title  string
	Stored int
}
