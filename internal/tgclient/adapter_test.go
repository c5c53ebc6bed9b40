package tgclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/matheus3301/tgbridge/internal/entity"
	"go.uber.org/zap"
)

func testAdapter(selfID int64) *Adapter {
	a := &Adapter{cache: newPeerCache(), logger: zap.NewNop()}
	self := &tg.User{ID: selfID, FirstName: "Me", Self: true}
	a.self.Store(self)
	a.cache.applyUser(self)
	return a
}

func TestConvertSenderResolution(t *testing.T) {
	a := testAdapter(100)
	a.cache.applyUsers([]tg.UserClass{&tg.User{ID: 7, FirstName: "Eve"}})
	a.cache.applyChats([]tg.ChatClass{&tg.Chat{ID: 5, Title: "Team"}})

	date := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name       string
		msg        *tg.Message
		wantChat   int64
		wantSender int64
	}{
		{
			name:       "incoming private",
			msg:        &tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 7}, Message: "hi", Date: int(date.Unix())},
			wantChat:   7,
			wantSender: 7,
		},
		{
			name:       "outgoing private",
			msg:        &tg.Message{ID: 2, PeerID: &tg.PeerUser{UserID: 7}, Message: "yo", Out: true, Date: int(date.Unix())},
			wantChat:   7,
			wantSender: 100,
		},
		{
			name: "group with from",
			msg: func() *tg.Message {
				m := &tg.Message{ID: 3, PeerID: &tg.PeerChat{ChatID: 5}, Message: "ping", Date: int(date.Unix())}
				m.SetFromID(&tg.PeerUser{UserID: 7})
				return m
			}(),
			wantChat:   -5,
			wantSender: 7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.convert(tt.msg)
			if got.ChatID != tt.wantChat || got.SenderID != tt.wantSender {
				t.Errorf("chat/sender = %d/%d, want %d/%d", got.ChatID, got.SenderID, tt.wantChat, tt.wantSender)
			}
			if got.Chat == nil {
				t.Error("chat entity not resolved from cache")
			}
			if !got.Date.Equal(date) {
				t.Errorf("date = %v, want %v", got.Date, date)
			}
		})
	}
}

func TestSender(t *testing.T) {
	a := testAdapter(100)
	a.cache.applyUsers([]tg.UserClass{&tg.User{ID: 7, FirstName: "Eve"}})

	e, err := a.Sender(context.Background(), Message{ID: 1, SenderID: 7})
	if err != nil {
		t.Fatal(err)
	}
	if entity.DisplayName(e) != "Eve" {
		t.Errorf("sender = %v", e)
	}

	if _, err := a.Sender(context.Background(), Message{ID: 2, SenderID: 8}); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("err = %v, want ErrUnknownPeer", err)
	}
}

func TestHandleUpdate(t *testing.T) {
	a := testAdapter(100)

	// No handler registered yet: dropped without panicking.
	a.handleUpdate(context.Background(), tg.Entities{}, &tg.Message{ID: 1, PeerID: &tg.PeerUser{UserID: 9}, Message: "early"})

	var got []Message
	a.RegisterMessageHandler(func(_ context.Context, m Message) { got = append(got, m) })

	ents := tg.Entities{Channels: map[int64]*tg.Channel{3: {ID: 3, Title: "Ops", Megagroup: true}}}
	a.handleUpdate(context.Background(), ents, &tg.Message{ID: 10, PeerID: &tg.PeerChannel{ChannelID: 3}, Message: "deploy"})
	a.handleUpdate(context.Background(), ents, &tg.MessageService{ID: 11, PeerID: &tg.PeerChannel{ChannelID: 3}})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].ChatID != ChannelID(3) || got[0].Chat == nil {
		t.Errorf("got %+v", got[0])
	}
}

func TestCallsRequireConnection(t *testing.T) {
	a := testAdapter(100)
	if _, err := a.Dialogs(context.Background(), 10); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Dialogs err = %v, want ErrNotConnected", err)
	}
	if err := a.SendMessage(context.Background(), entity.Person{ID: 100}, "x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage err = %v, want ErrNotConnected", err)
	}
	if e, err := a.Entity(context.Background(), 100); err != nil || e == nil {
		t.Errorf("cached Entity lookup should work offline: %v, %v", e, err)
	}
}
