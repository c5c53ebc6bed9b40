package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func mustChat(t *testing.T, db *DB, c Chat) {
	t.Helper()
	if err := db.UpsertChat(context.Background(), &c); err != nil {
		t.Fatal(err)
	}
}

func mustMessage(t *testing.T, db *DB, m Message) {
	t.Helper()
	if err := db.UpsertMessage(context.Background(), &m); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate; a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}

	version, dirty, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != 2 || dirty {
		t.Errorf("SchemaVersion() = %d, %v, want 2, false", version, dirty)
	}
}

func TestMigrateCreatesIndexes(t *testing.T) {
	db := testDB(t)

	for _, name := range []string{"idx_messages_chat_id", "idx_messages_timestamp", "idx_messages_content", "idx_messages_sender_id"} {
		var got string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, name).Scan(&got)
		if err != nil {
			t.Errorf("index %s missing: %v", name, err)
		}
	}
}

func TestChatUpsertIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	chat := Chat{ID: 42, Title: "Alice", Username: ptr("alice"), Type: ChatUser, LastMessageTime: ptr(at(0))}
	mustChat(t, db, chat)
	mustChat(t, db, chat)

	got, err := db.GetChat(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Title != "Alice" || *got.Username != "alice" || got.Type != ChatUser {
		t.Fatalf("got %+v, want Alice/alice/user", got)
	}
	if !got.LastMessageTime.Equal(at(0)) {
		t.Errorf("last_message_time = %v, want %v", got.LastMessageTime, at(0))
	}
	if n, _ := db.ChatCount(); n != 1 {
		t.Errorf("chat count = %d, want 1", n)
	}
}

// Regression guard: the upsert is last-writer-wins, a stale dialog scan may
// move last_message_time backwards.
func TestChatUpsertLastWriterWins(t *testing.T) {
	db := testDB(t)

	mustChat(t, db, Chat{ID: 1, Title: "G", Type: ChatGroup, LastMessageTime: ptr(at(10))})
	mustChat(t, db, Chat{ID: 1, Title: "G renamed", Type: ChatGroup, LastMessageTime: ptr(at(5))})

	got, err := db.GetChat(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "G renamed" {
		t.Errorf("title = %q, want G renamed", got.Title)
	}
	if !got.LastMessageTime.Equal(at(5)) {
		t.Errorf("last_message_time = %v, want %v (last writer wins)", got.LastMessageTime, at(5))
	}
}

func TestChatUpsertUnknownTime(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	mustChat(t, db, Chat{ID: 2, Title: "Quiet", Type: ChatUser})
	got, err := db.GetChat(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageTime != nil {
		t.Errorf("last_message_time = %v, want nil", *got.LastMessageTime)
	}

	mustChat(t, db, Chat{ID: 1, Title: "G", Type: ChatGroup, LastMessageTime: ptr(at(10))})
	mustChat(t, db, Chat{ID: 1, Title: "G", Type: ChatGroup})
	got, err = db.GetChat(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessageTime == nil || !got.LastMessageTime.Equal(at(10)) {
		t.Errorf("last_message_time = %v, want %v kept", got.LastMessageTime, at(10))
	}
}

func TestUpsertChatRejectsUnknownType(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(context.Background(), &Chat{ID: 1, Type: "bot"}); err == nil {
		t.Error("expected error for unknown chat type")
	}
}

func TestGetChatMissing(t *testing.T) {
	db := testDB(t)
	c, err := db.GetChat(context.Background(), 999)
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat, got %+v", c)
	}
}

func TestGetDirectChatRequiresUser(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 1, Title: "Bob", Type: ChatUser})
	mustChat(t, db, Chat{ID: -2, Title: "Team", Type: ChatGroup})

	if c, err := db.GetDirectChat(ctx, 1); err != nil || c == nil {
		t.Errorf("GetDirectChat(1) = %v, %v; want Bob", c, err)
	}
	if c, err := db.GetDirectChat(ctx, -2); err != nil || c != nil {
		t.Errorf("GetDirectChat(-2) = %v, %v; want nil for group", c, err)
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 7, Title: "Chat", Type: ChatGroup})

	msg := Message{ID: 1, ChatID: 7, SenderID: 3, SenderName: "Carol", Content: "hello", Timestamp: at(0)}
	mustMessage(t, db, msg)
	mustMessage(t, db, msg)

	msgs, err := db.ListMessages(ctx, MessageFilter{ChatID: 7})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	got := msgs[0]
	if got.Content != "hello" || got.SenderName != "Carol" || got.ChatTitle != "Chat" || !got.Timestamp.Equal(at(0)) {
		t.Errorf("got %+v", got)
	}

	// Re-ingestion overwrites.
	msg.Content = "hello edited"
	mustMessage(t, db, msg)
	msgs, _ = db.ListMessages(ctx, MessageFilter{ChatID: 7})
	if len(msgs) != 1 || msgs[0].Content != "hello edited" {
		t.Errorf("got %+v, want single overwritten message", msgs)
	}
}

func TestMessageIDsAreScopedPerChat(t *testing.T) {
	db := testDB(t)
	mustChat(t, db, Chat{ID: 1, Title: "A", Type: ChatUser})
	mustChat(t, db, Chat{ID: 2, Title: "B", Type: ChatUser})
	mustMessage(t, db, Message{ID: 10, ChatID: 1, Content: "in a", Timestamp: at(0)})
	mustMessage(t, db, Message{ID: 10, ChatID: 2, Content: "in b", Timestamp: at(1)})

	if n, _ := db.MessageCount(); n != 2 {
		t.Errorf("message count = %d, want 2", n)
	}
}

func TestUpsertMessageEmptyContentIsNoop(t *testing.T) {
	db := testDB(t)
	mustChat(t, db, Chat{ID: 1, Title: "A", Type: ChatUser})

	if err := db.UpsertMessage(context.Background(), &Message{ID: 1, ChatID: 1, Content: "", Timestamp: at(0)}); err != nil {
		t.Fatalf("UpsertMessage(empty) error = %v", err)
	}
	// The no-op holds even when the chat is missing.
	if err := db.UpsertMessage(context.Background(), &Message{ID: 1, ChatID: 404, Timestamp: at(0)}); err != nil {
		t.Fatalf("UpsertMessage(empty, no chat) error = %v", err)
	}
	if n, _ := db.MessageCount(); n != 0 {
		t.Errorf("message count = %d, want 0", n)
	}
}

func TestUpsertMessageWithoutChatIsConstraintError(t *testing.T) {
	db := testDB(t)

	err := db.UpsertMessage(context.Background(), &Message{ID: 1, ChatID: 404, Content: "orphan", Timestamp: at(0)})
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("err = %v, want ErrConstraint", err)
	}
}

func TestListMessagesFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 1, Title: "Alice", Type: ChatUser})
	mustChat(t, db, Chat{ID: -5, Title: "Team", Type: ChatGroup})
	mustMessage(t, db, Message{ID: 1, ChatID: 1, SenderID: 1, Content: "Lunch tomorrow?", Timestamp: at(0)})
	mustMessage(t, db, Message{ID: 2, ChatID: 1, SenderID: 99, Content: "sure, LUNCH at noon", Timestamp: at(1), IsFromMe: true})
	mustMessage(t, db, Message{ID: 1, ChatID: -5, SenderID: 1, Content: "standup in 5", Timestamp: at(2)})
	mustMessage(t, db, Message{ID: 2, ChatID: -5, SenderID: 7, Content: "100% done_", Timestamp: at(3)})

	tests := []struct {
		name   string
		filter MessageFilter
		want   []string
	}{
		{"all newest first", MessageFilter{}, []string{"100% done_", "standup in 5", "sure, LUNCH at noon", "Lunch tomorrow?"}},
		{"chat", MessageFilter{ChatID: 1}, []string{"sure, LUNCH at noon", "Lunch tomorrow?"}},
		{"case-insensitive query", MessageFilter{Query: "lunch"}, []string{"sure, LUNCH at noon", "Lunch tomorrow?"}},
		{"query with wildcard chars", MessageFilter{Query: "0% d"}, []string{"100% done_"}},
		{"underscore is literal", MessageFilter{Query: "_"}, []string{"100% done_"}},
		{"sender", MessageFilter{SenderID: 1}, []string{"standup in 5", "Lunch tomorrow?"}},
		{"date range", MessageFilter{After: ptr(at(1)), Before: ptr(at(2))}, []string{"standup in 5", "sure, LUNCH at noon"}},
		{"limit offset", MessageFilter{Limit: 2, Offset: 1}, []string{"standup in 5", "sure, LUNCH at noon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := db.ListMessages(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var got []string
			for _, m := range msgs {
				got = append(got, m.Content)
			}
			if !equal(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessagesBeforeAfter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 1, Title: "A", Type: ChatUser})
	mustChat(t, db, Chat{ID: 2, Title: "B", Type: ChatUser})
	for i := 1; i <= 5; i++ {
		mustMessage(t, db, Message{ID: int64(i), ChatID: 1, Content: "t" + string(rune('0'+i)), Timestamp: at(i)})
	}
	mustMessage(t, db, Message{ID: 1, ChatID: 2, Content: "other chat", Timestamp: at(2)})

	before, err := db.MessagesBefore(ctx, 1, at(3), 2)
	if err != nil {
		t.Fatal(err)
	}
	after, err := db.MessagesAfter(ctx, 1, at(3), 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(before); !equal(got, []string{"t2", "t1"}) {
		t.Errorf("before = %q, want [t2 t1]", got)
	}
	if got := contents(after); !equal(got, []string{"t4", "t5"}) {
		t.Errorf("after = %q, want [t4 t5]", got)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.GetMessage(context.Background(), 1, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListChatsSortAndFilter(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 1, Title: "Zed", Username: ptr("zed"), Type: ChatUser, LastMessageTime: ptr(at(1))})
	mustChat(t, db, Chat{ID: 2, Title: "Anna", Username: ptr("annab"), Type: ChatUser, LastMessageTime: ptr(at(3))})
	mustChat(t, db, Chat{ID: -3, Title: "Book Club", Type: ChatGroup})
	mustChat(t, db, Chat{ID: -1000000000004, Title: "News", Username: ptr("dailynews"), Type: ChatChannel, LastMessageTime: ptr(at(2))})

	tests := []struct {
		name   string
		filter ChatFilter
		want   []int64
	}{
		{"last active nulls last", ChatFilter{}, []int64{2, -1000000000004, 1, -3}},
		{"title", ChatFilter{SortBy: SortTitle}, []int64{2, -3, -1000000000004, 1}},
		{"type", ChatFilter{Type: ChatUser}, []int64{2, 1}},
		{"query title", ChatFilter{Query: "CLUB"}, []int64{-3}},
		{"query username", ChatFilter{Query: "news"}, []int64{-1000000000004}},
		{"page 0", ChatFilter{Limit: 2}, []int64{2, -1000000000004}},
		{"page 1", ChatFilter{Limit: 2, Offset: 2}, []int64{1, -3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chats, err := db.ListChats(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var got []int64
			for _, c := range chats {
				got = append(got, c.ID)
			}
			if !equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearchContacts(t *testing.T) {
	db := testDB(t)
	mustChat(t, db, Chat{ID: 1, Title: "Maria", Username: ptr("mari"), Type: ChatUser})
	mustChat(t, db, Chat{ID: 2, Title: "Amarildo", Type: ChatUser})
	mustChat(t, db, Chat{ID: -3, Title: "Mariachi band", Type: ChatGroup})

	contacts, err := db.SearchContacts(context.Background(), "mar", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2 (users only)", len(contacts))
	}
	if contacts[0].Name != "Amarildo" || contacts[1].Name != "Maria" {
		t.Errorf("got %+v, want ordered by title", contacts)
	}
	if contacts[0].Username != nil || *contacts[1].Username != "mari" {
		t.Errorf("usernames = %v, %v", contacts[0].Username, contacts[1].Username)
	}
}

func TestContactChatsAndLastInteraction(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 5, Title: "Dana", Type: ChatUser, LastMessageTime: ptr(at(1))})
	mustChat(t, db, Chat{ID: -10, Title: "Hiking", Type: ChatGroup, LastMessageTime: ptr(at(4))})
	mustChat(t, db, Chat{ID: -11, Title: "Work", Type: ChatGroup, LastMessageTime: ptr(at(9))})
	mustMessage(t, db, Message{ID: 1, ChatID: 5, SenderID: 5, Content: "hey", Timestamp: at(1)})
	mustMessage(t, db, Message{ID: 1, ChatID: -10, SenderID: 5, Content: "trail?", Timestamp: at(3)})
	mustMessage(t, db, Message{ID: 2, ChatID: -10, SenderID: 5, Content: "saturday", Timestamp: at(4)})
	mustMessage(t, db, Message{ID: 1, ChatID: -11, SenderID: 8, Content: "unrelated", Timestamp: at(9)})

	chats, err := db.ContactChats(ctx, 5, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	if !equal(ids, []int64{-10, 5}) {
		t.Errorf("contact chats = %v, want [-10 5] (distinct, by recency)", ids)
	}

	last, err := db.LastInteraction(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.Content != "saturday" {
		t.Errorf("last interaction = %+v, want saturday", last)
	}

	none, err := db.LastInteraction(ctx, 12345)
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Errorf("expected nil last interaction, got %+v", none)
	}
}

func TestFindRecipient(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustChat(t, db, Chat{ID: 1, Title: "Project Phoenix", Type: ChatSupergroup})
	mustChat(t, db, Chat{ID: 2, Title: "Bob", Username: ptr("bobby"), Type: ChatUser})

	c, err := db.FindRecipient(ctx, "phoenix")
	if err != nil || c == nil || c.ID != 1 {
		t.Errorf("FindRecipient(phoenix) = %+v, %v; want chat 1", c, err)
	}
	c, err = db.FindRecipient(ctx, "bobby")
	if err != nil || c == nil || c.ID != 2 {
		t.Errorf("FindRecipient(bobby) = %+v, %v; want chat 2", c, err)
	}
	c, err = db.FindRecipient(ctx, "nobody")
	if err != nil || c != nil {
		t.Errorf("FindRecipient(nobody) = %+v, %v; want nil", c, err)
	}
}

func TestOpenReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ro.db")
	rw, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Migrate(); err != nil {
		t.Fatal(err)
	}
	_ = rw.Close()

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ro.Close() }()

	if err := ro.UpsertChat(context.Background(), &Chat{ID: 1, Title: "x", Type: ChatUser}); err == nil {
		t.Error("expected write to fail on read-only connection")
	}
	if _, err := ro.ListChats(context.Background(), ChatFilter{}); err != nil {
		t.Errorf("read on read-only connection failed: %v", err)
	}
}

func contents(msgs []Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func equal[T comparable](a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCheckpoints(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := db.GetCheckpoint(ctx, "last_sweep")
	if err != nil || v != "" {
		t.Fatalf("GetCheckpoint(unset) = %q, %v", v, err)
	}
	if err := db.SetCheckpoint(ctx, "last_sweep", "a"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetCheckpoint(ctx, "last_sweep", "b"); err != nil {
		t.Fatal(err)
	}
	v, err = db.GetCheckpoint(ctx, "last_sweep")
	if err != nil || v != "b" {
		t.Errorf("GetCheckpoint = %q, %v; want b", v, err)
	}
}
