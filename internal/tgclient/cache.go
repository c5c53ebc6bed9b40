package tgclient

import (
	"sync"

	"github.com/gotd/td/tg"
	"github.com/matheus3301/tgbridge/internal/entity"
)

type cachedPeer struct {
	entity entity.Entity
	input  tg.InputPeerClass
}

// peerCache remembers every entity seen in responses and updates, keyed by
// marked ID. Access hashes are only handed out by the server alongside the
// entity, so a peer that was never seen cannot be addressed.
type peerCache struct {
	mu    sync.RWMutex
	peers map[int64]cachedPeer
}

func newPeerCache() *peerCache {
	return &peerCache{peers: make(map[int64]cachedPeer)}
}

func (c *peerCache) get(id int64) (cachedPeer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.peers[id]
	return p, ok
}

func (c *peerCache) put(id int64, p cachedPeer) {
	c.mu.Lock()
	c.peers[id] = p
	c.mu.Unlock()
}

// putMin stores a peer seen with the min flag. Its access hash only works in
// the context it arrived in, so an already cached peer keeps its input peer
// and only takes the fresh names.
func (c *peerCache) putMin(id int64, p cachedPeer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.peers[id]; ok {
		p.input = old.input
	}
	c.peers[id] = p
}

func (c *peerCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers)
}

func (c *peerCache) applyUsers(users []tg.UserClass) {
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			c.applyUser(user)
		}
	}
}

func (c *peerCache) applyUser(u *tg.User) {
	p := cachedPeer{
		entity: personFromUser(u),
		input:  &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash},
	}
	if u.Min {
		c.putMin(u.ID, p)
		return
	}
	c.put(u.ID, p)
}

func (c *peerCache) applyChats(chats []tg.ChatClass) {
	for _, ch := range chats {
		switch ch := ch.(type) {
		case *tg.Chat:
			c.applyChat(ch)
		case *tg.ChatForbidden:
			c.put(ChatID(ch.ID), cachedPeer{
				entity: entity.Group{ID: ChatID(ch.ID), Title: ch.Title},
				input:  &tg.InputPeerChat{ChatID: ch.ID},
			})
		case *tg.Channel:
			c.applyChannel(ch)
		case *tg.ChannelForbidden:
			c.put(ChannelID(ch.ID), cachedPeer{
				entity: entity.Channel{ID: ChannelID(ch.ID), Title: ch.Title, Broadcast: ch.Broadcast},
				input:  &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
			})
		}
	}
}

func (c *peerCache) applyChat(ch *tg.Chat) {
	c.put(ChatID(ch.ID), cachedPeer{
		entity: entity.Group{ID: ChatID(ch.ID), Title: ch.Title},
		input:  &tg.InputPeerChat{ChatID: ch.ID},
	})
}

func (c *peerCache) applyChannel(ch *tg.Channel) {
	p := cachedPeer{
		entity: entity.Channel{ID: ChannelID(ch.ID), Title: ch.Title, Username: ch.Username, Broadcast: ch.Broadcast},
		input:  &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash},
	}
	if ch.Min {
		c.putMin(ChannelID(ch.ID), p)
		return
	}
	c.put(ChannelID(ch.ID), p)
}

func (c *peerCache) applyDialogsResult(res tg.MessagesDialogsClass) {
	switch res := res.(type) {
	case *tg.MessagesDialogs:
		c.applyUsers(res.Users)
		c.applyChats(res.Chats)
	case *tg.MessagesDialogsSlice:
		c.applyUsers(res.Users)
		c.applyChats(res.Chats)
	}
}

func (c *peerCache) applyMessagesResult(res tg.MessagesMessagesClass) {
	switch res := res.(type) {
	case *tg.MessagesMessages:
		c.applyUsers(res.Users)
		c.applyChats(res.Chats)
	case *tg.MessagesMessagesSlice:
		c.applyUsers(res.Users)
		c.applyChats(res.Chats)
	case *tg.MessagesChannelMessages:
		c.applyUsers(res.Users)
		c.applyChats(res.Chats)
	}
}

// applyEntities feeds the entities attached to an update.
func (c *peerCache) applyEntities(e tg.Entities) {
	for _, u := range e.Users {
		c.applyUser(u)
	}
	for _, ch := range e.Chats {
		c.applyChat(ch)
	}
	for _, ch := range e.Channels {
		c.applyChannel(ch)
	}
}

func personFromUser(u *tg.User) entity.Person {
	return entity.Person{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}
