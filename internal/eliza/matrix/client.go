// Package matrix connects Eliza to a Matrix homeserver as a chat bot.
package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Eliza/common/retry"
)

// Config holds Matrix client configuration
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms restricts the bot to these room IDs or aliases, which are
	// joined on start. Empty means every room the bot is in.
	Rooms []string
	// AutoJoin accepts invites. With Rooms set only invites to those rooms
	// are accepted.
	AutoJoin bool
	// DB is an optional SQLite connection used to persist the Matrix sync
	// token (next_batch) across restarts. When nil, an in-memory store is
	// used and all room history will be replayed on every restart.
	DB *sql.DB
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Message is an incoming text message.
type Message struct {
	RoomID  string
	Sender  string
	EventID string
	Text    string
}

// MessageHandler processes incoming Matrix messages
type MessageHandler func(ctx context.Context, msg Message)

// Client wraps the Matrix client
type Client struct {
	client    *mautrix.Client
	config    Config
	logger    *slog.Logger
	userID    id.UserID
	startedAt time.Time

	mu      sync.RWMutex
	rooms   map[id.RoomID]bool
	handler MessageHandler
}

// New creates a new Matrix client. It does not contact the homeserver.
func New(config Config) (*Client, error) {
	userID := id.UserID(config.UserID)
	client, err := mautrix.NewClient(config.Homeserver, userID, config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Matrix client: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		client: client,
		config: config,
		logger: logger.With("component", "matrix"),
		userID: userID,
		rooms:  make(map[id.RoomID]bool),
	}

	if config.DB != nil {
		client.Store = NewDBSyncStore(config.DB)
		c.logger.Info("Matrix sync store: using persistent SQLite store")
	} else {
		c.logger.Warn("Matrix sync store: no DB configured, using in-memory store (history will replay on restart)")
	}

	syncer := client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)
	syncer.OnEventType(event.StateMember, c.handleMember)
	return c, nil
}

// UserID returns the bot's user ID.
func (c *Client) UserID() string { return c.userID.String() }

// Run joins the configured rooms and syncs until ctx is done, reconnecting
// with exponential back-off after errors. Messages are passed to handler
// one at a time in arrival order.
func (c *Client) Run(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.startedAt = time.Now()
	c.mu.Unlock()

	for _, room := range c.config.Rooms {
		roomID, err := c.joinRoom(ctx, room)
		if err != nil {
			return fmt.Errorf("failed to join room %s: %w", room, err)
		}
		c.mu.Lock()
		c.rooms[roomID] = true
		c.mu.Unlock()
	}

	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// A clean return only happens after StopSync.
			return nil
		}
		c.logger.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// Stop interrupts a running sync.
func (c *Client) Stop() {
	c.client.StopSync()
}

// SendText sends a plain text message, retrying transient failures.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	err := retry.Do(ctx, retry.Default, func(ctx context.Context) error {
		_, err := c.client.SendText(ctx, id.RoomID(roomID), text)
		if errors.Is(err, mautrix.MForbidden) || errors.Is(err, mautrix.MUnknownToken) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendNotice sends a notice message (less intrusive than normal messages)
func (c *Client) SendNotice(ctx context.Context, roomID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgNotice,
		Body:    text,
	}
	_, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content)
	if err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// Allowed reports whether the bot talks in roomID.
func (c *Client) Allowed(roomID string) bool {
	if len(c.config.Rooms) == 0 {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[id.RoomID(roomID)]
}

// parseMessage returns the text message carried by evt when the bot should
// answer it.
func (c *Client) parseMessage(evt *event.Event) (Message, bool) {
	if evt.Sender == c.userID {
		return Message{}, false
	}

	// Only text; notices are what other bots send.
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Message{}, false
	}
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return Message{}, false
	}
	text := strings.TrimSpace(content.Body)
	if text == "" {
		return Message{}, false
	}

	c.mu.RLock()
	startedAt := c.startedAt
	c.mu.RUnlock()
	// Without a persistent sync token the first sync replays history.
	if !startedAt.IsZero() && evt.Timestamp < startedAt.UnixMilli() {
		return Message{}, false
	}
	if !c.Allowed(evt.RoomID.String()) {
		return Message{}, false
	}
	return Message{
		RoomID:  evt.RoomID.String(),
		Sender:  evt.Sender.String(),
		EventID: evt.ID.String(),
		Text:    text,
	}, true
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	msg, ok := c.parseMessage(evt)
	if !ok {
		return
	}
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler != nil {
		handler(ctx, msg)
	}
}

func (c *Client) handleMember(ctx context.Context, evt *event.Event) {
	if !c.config.AutoJoin || evt.GetStateKey() != c.userID.String() {
		return
	}
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite {
		return
	}
	if len(c.config.Rooms) > 0 && !c.Allowed(evt.RoomID.String()) {
		c.logger.Info("ignoring invite to unlisted room", "room", evt.RoomID, "inviter", evt.Sender)
		return
	}
	if _, err := c.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		c.logger.Warn("failed to accept invite", "room", evt.RoomID, "err", err)
		return
	}
	c.logger.Info("joined room on invite", "room", evt.RoomID, "inviter", evt.Sender)
}

// joinRoom joins a room by ID or alias and returns its ID.
func (c *Client) joinRoom(ctx context.Context, room string) (id.RoomID, error) {
	roomID := id.RoomID(room)
	if strings.HasPrefix(room, "#") {
		resp, err := c.client.ResolveAlias(ctx, id.RoomAlias(room))
		if err != nil {
			return "", fmt.Errorf("resolve alias: %w", err)
		}
		roomID = resp.RoomID
	}
	if _, err := c.client.JoinRoomByID(ctx, roomID); err != nil {
		// M_FORBIDDEN is returned by homeservers when the bot is already a member
		// of the room. Use mautrix's typed error check instead of string matching.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
			return roomID, nil
		}
		return "", err
	}
	return roomID, nil
}
