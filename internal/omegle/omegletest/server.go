// ABOUTME: In-memory fake of the chat service's HTTP protocol for tests and local runs
// ABOUTME: Scripted mode queues records by hand; bot mode answers with canned strangers

package omegletest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
)

// Bot scripts a stranger for every session. Nil fields fall back to defaults.
type Bot struct {
	// Greeting is sent right after the stranger connects. Empty skips it.
	Greeting string
	// Likes are intersected with the session topics for commonLikes.
	Likes []string
	// MaxReplies ends the conversation with strangerDisconnected once the
	// stranger has received this many messages. Zero never disconnects.
	MaxReplies int
	// Reply builds the stranger's answer to a message.
	Reply func(msg string) string
}

// Session is a snapshot of one fake session.
type Session struct {
	ClientID      string
	RandID        string
	Topics        []string
	Sent          []string
	Typing        int
	StoppedTyping int
	Disconnected  bool
	Recaptchas    []string
}

type session struct {
	Session
	queue []json.RawMessage
}

// Server implements the chat service endpoints.
type Server struct {
	mu           sync.Mutex
	bot          *Bot
	sessions     map[string]*session
	order        []string
	nextID       int
	startStatus  int
	eventsStatus int
	omitClientID bool
	polls        int
}

// NewServer creates a scripted server. Records are queued with Push.
func NewServer() *Server {
	return &Server{sessions: make(map[string]*session)}
}

// NewBotServer creates a server whose strangers are played by bot.
func NewBotServer(bot Bot) *Server {
	s := NewServer()
	s.bot = &bot
	return s
}

// FailStarts makes /start answer with the given status. Zero restores normal behavior.
func (s *Server) FailStarts(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startStatus = status
}

// OmitClientID makes /start succeed without a clientID.
func (s *Server) OmitClientID(omit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitClientID = omit
}

// FailEvents makes /events answer with the given status. Zero restores normal behavior.
func (s *Server) FailEvents(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventsStatus = status
}

// Push queues records for a session. Each record is a tag followed by args,
// e.g. Push(id, "gotMessage", "hi").
func (s *Server) Push(clientID string, tag string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[clientID]; ok {
		sess.queue = append(sess.queue, record(tag, args...))
	}
}

// Sessions returns snapshots of every session in start order.
func (s *Server) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].snapshot())
	}
	return out
}

// Session returns a snapshot of one session.
func (s *Server) Session(clientID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[clientID]
	if !ok {
		return Session{}, false
	}
	return sess.snapshot(), true
}

// Polls returns how many /events requests have been served.
func (s *Server) Polls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

func (s *session) snapshot() Session {
	out := s.Session
	out.Topics = slices.Clone(s.Topics)
	out.Sent = slices.Clone(s.Sent)
	out.Recaptchas = slices.Clone(s.Recaptchas)
	return out
}

// ServeHTTP routes the service endpoints.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch r.URL.Path {
	case "/start":
		s.handleStart(w, r)
	case "/events":
		s.handleEvents(w, r)
	case "/send":
		s.handleAction(w, r, func(sess *session) {
			msg := r.PostForm.Get("msg")
			sess.Sent = append(sess.Sent, msg)
			s.botAnswer(sess, msg)
		})
	case "/typing":
		s.handleAction(w, r, func(sess *session) { sess.Typing++ })
	case "/stoppedtyping":
		s.handleAction(w, r, func(sess *session) { sess.StoppedTyping++ })
	case "/disconnect":
		s.handleAction(w, r, func(sess *session) { sess.Disconnected = true })
	case "/recaptcha":
		s.handleAction(w, r, func(sess *session) {
			sess.Recaptchas = append(sess.Recaptchas, r.PostForm.Get("response"))
		})
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startStatus != 0 {
		http.Error(w, "start failed", s.startStatus)
		return
	}

	var topics []string
	if raw := r.URL.Query().Get("topics"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			http.Error(w, "bad topics", http.StatusBadRequest)
			return
		}
	}

	s.nextID++
	id := fmt.Sprintf("central%d:%04d", s.nextID%3+1, s.nextID)
	sess := &session{Session: Session{
		ClientID: id,
		RandID:   r.URL.Query().Get("randid"),
		Topics:   topics,
	}}
	s.sessions[id] = sess
	s.order = append(s.order, id)

	if s.bot != nil {
		s.botConnect(sess)
	}

	resp := map[string]any{}
	if !s.omitClientID {
		resp["clientID"] = id
	}
	if r.URL.Query().Get("firstevents") == "1" && len(sess.queue) > 0 {
		resp["events"] = sess.queue
		sess.queue = nil
	}
	writeJSON(w, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls++
	if s.eventsStatus != 0 {
		http.Error(w, "events failed", s.eventsStatus)
		return
	}

	sess, ok := s.sessions[r.PostForm.Get("id")]
	if !ok || len(sess.queue) == 0 {
		writeJSON(w, nil)
		return
	}
	out := sess.queue
	sess.queue = nil
	writeJSON(w, out)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, apply func(*session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[r.PostForm.Get("id")]
	if !ok {
		http.Error(w, "unknown id", http.StatusNotFound)
		return
	}
	apply(sess)
	_, _ = w.Write([]byte("win"))
}

func (s *Server) botConnect(sess *session) {
	sess.queue = append(sess.queue, record("waiting"), record("connected"))
	if shared := intersect(sess.Topics, s.bot.Likes); len(shared) > 0 {
		sess.queue = append(sess.queue, record("commonLikes", shared))
	}
	if s.bot.Greeting != "" {
		sess.queue = append(sess.queue, record("gotMessage", s.bot.Greeting))
	}
}

func (s *Server) botAnswer(sess *session, msg string) {
	if s.bot == nil || sess.Disconnected {
		return
	}
	if s.bot.MaxReplies > 0 && len(sess.Sent) >= s.bot.MaxReplies {
		sess.queue = append(sess.queue, record("strangerDisconnected"))
		return
	}
	reply := s.bot.Reply
	if reply == nil {
		reply = func(m string) string { return "you said: " + strings.ToLower(m) }
	}
	sess.queue = append(sess.queue, record("typing"), record("gotMessage", reply(msg)))
}

func record(tag string, args ...any) json.RawMessage {
	parts := append([]any{tag}, args...)
	data, err := json.Marshal(parts)
	if err != nil {
		panic(err)
	}
	return data
}

func intersect(a, b []string) []string {
	var out []string
	for _, x := range a {
		if slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
