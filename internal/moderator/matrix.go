// ABOUTME: Matrix moderator channel: syncs one room for commands and posts relay notices
// ABOUTME: Notices carry per-message persona profiles so A, B and the relay look distinct

package moderator

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"strings"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/stranger-relay/internal/dedupe"
	"github.com/2389/stranger-relay/internal/relay"
)

// networkTimeout bounds a single Matrix API call.
const networkTimeout = 10 * time.Second

// Profile is the display identity of one persona.
type Profile struct {
	Name      string
	AvatarURL string
}

// Personas maps relay personas to profiles.
type Personas struct {
	Relay Profile
	A     Profile
	B     Profile
}

// DefaultPersonas are used for profiles left empty.
var DefaultPersonas = Personas{
	Relay: Profile{Name: "Relay"},
	A:     Profile{Name: "Person A"},
	B:     Profile{Name: "Person B"},
}

// For returns the profile of p, falling back to the default name.
func (ps Personas) For(p relay.Persona) Profile {
	var got, def Profile
	switch p {
	case relay.PersonaA:
		got, def = ps.A, DefaultPersonas.A
	case relay.PersonaB:
		got, def = ps.B, DefaultPersonas.B
	default:
		got, def = ps.Relay, DefaultPersonas.Relay
	}
	if got.Name == "" {
		got.Name = def.Name
	}
	return got
}

// MatrixOptions configures a Matrix channel.
type MatrixOptions struct {
	Homeserver   string
	UserID       string
	AccessToken  string
	RoomID       string
	Prefix       string
	// AllowedUsers limits who may issue commands. Empty allows everyone in
	// the room.
	AllowedUsers []string
	Personas     Personas
	// RoomTopic mirrors the joint session state into the room topic.
	RoomTopic bool
	Logger    *slog.Logger
}

// Matrix is the moderator channel backed by one Matrix room. It implements
// relay.Notifier and relay.Observer.
type Matrix struct {
	opts    MatrixOptions
	client  *mautrix.Client
	room    id.RoomID
	self    id.UserID
	seen    *dedupe.Cache
	logger  *slog.Logger
	handler Handler
	// since drops history replayed by the first sync.
	since time.Time
}

// NewMatrix creates the channel. It does not contact the homeserver.
func NewMatrix(opts MatrixOptions) (*Matrix, error) {
	if opts.RoomID == "" {
		return nil, errors.New("matrix room_id is required")
	}
	client, err := mautrix.NewClient(opts.Homeserver, id.UserID(opts.UserID), opts.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Matrix{
		opts:   opts,
		client: client,
		room:   id.RoomID(opts.RoomID),
		self:   id.UserID(opts.UserID),
		seen:   dedupe.New(dedupe.DefaultTTL, dedupe.DefaultCapacity),
		logger: logger.With("component", "matrix", "room", opts.RoomID),
		since:  time.Now(),
	}, nil
}

// Run syncs the room and dispatches commands to h until ctx is cancelled.
func (m *Matrix) Run(ctx context.Context, h Handler) error {
	defer m.seen.Close()
	m.handler = h

	syncer, ok := m.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", m.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, m.handleMessage)

	m.logger.Info("starting matrix sync", "homeserver", m.opts.Homeserver, "user_id", m.opts.UserID)
	err := m.client.SyncWithContext(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("matrix sync failed: %w", err)
}

func (m *Matrix) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == m.self || evt.RoomID != m.room {
		return
	}
	if evt.Timestamp > 0 && evt.Timestamp < m.since.UnixMilli() {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}
	if m.seen.Seen(evt.ID.String()) {
		m.logger.Debug("dropping redelivered event", "event_id", evt.ID.String())
		return
	}

	cmd, ok := Parse(m.opts.Prefix, content.Body)
	if !ok || m.handler == nil {
		return
	}
	if len(m.opts.AllowedUsers) > 0 && !slices.Contains(m.opts.AllowedUsers, evt.Sender.String()) {
		m.logger.Warn("ignoring command from user not in allowed_users", "sender", evt.Sender.String())
		return
	}
	m.logger.Info("moderator command", "sender", evt.Sender.String(), "command", fmt.Sprintf("%T", cmd))
	if err := m.handler.Submit(ctx, cmd); err != nil {
		m.logger.Error("submitting command", "error", err)
	}
}

// Post sends a notice to the room as its persona. Relay notices are sent as
// m.notice, persona messages as m.text.
func (m *Matrix) Post(ctx context.Context, n relay.Notice) error {
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	profile := m.opts.Personas.For(n.Persona)
	msgType := event.MsgText
	if n.Persona == relay.PersonaRelay {
		msgType = event.MsgNotice
	}

	content := map[string]any{
		"msgtype": string(msgType),
		"body":    profile.Name + ": " + n.Markdown,
		"com.beeper.per_message_profile": map[string]any{
			"id":          n.Persona.String(),
			"displayname": profile.Name,
			"avatar_url":  profile.AvatarURL,
		},
	}
	rendered, err := RenderHTML(n.Markdown)
	if err != nil {
		m.logger.Warn("rendering notice markdown", "error", err)
	} else {
		content["format"] = string(event.FormatHTML)
		content["formatted_body"] = "<strong>" + html.EscapeString(profile.Name) + "</strong>: " + rendered
	}

	if _, err := m.client.SendMessageEvent(ctx, m.room, event.EventMessage, content); err != nil {
		return fmt.Errorf("sending notice: %w", err)
	}
	return nil
}

// SessionStarted implements relay.Observer.
func (m *Matrix) SessionStarted(ctx context.Context, _ string, topics []string) {
	if len(topics) == 0 {
		m.setTopic(ctx, "Chatting with two strangers")
		return
	}
	m.setTopic(ctx, "Chatting with two strangers about "+strings.Join(topics, ", "))
}

// SessionEnded implements relay.Observer.
func (m *Matrix) SessionEnded(ctx context.Context, _ string, _ relay.EndReason, _ relay.Side) {
	m.setTopic(ctx, "Looking for new chat partners")
}

// TopicsChanged implements relay.Observer.
func (m *Matrix) TopicsChanged(context.Context, []string) {}

func (m *Matrix) setTopic(ctx context.Context, topic string) {
	if !m.opts.RoomTopic {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	_, err := m.client.SendStateEvent(ctx, m.room, event.StateTopic, "", &event.TopicEventContent{Topic: topic})
	if err != nil {
		m.logger.Warn("updating room topic", "error", err)
	}
}
