// Package voiceagent keeps a push channel open to the ElevenLabs
// conversational agent for each live conversation.
package voiceagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/dental-voice-booking/internal/directory"
	"github.com/wolfman30/dental-voice-booking/pkg/logging"
)

// ErrNotRunning is returned when sending to a conversation without a channel.
var ErrNotRunning = errors.New("voiceagent: channel not running")

const defaultURL = "wss://api.elevenlabs.io/v1/convai/conversation"

// PractitionerLister supplies the names pushed when a conversation starts.
type PractitionerLister interface {
	ActivePractitioners(ctx context.Context) []directory.Practitioner
}

// Dialer opens websocket connections; *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config tunes channel lifetime.
type Config struct {
	URL     string
	AgentID string
	APIKey  string
	// ReconnectDelay is the first backoff; it doubles up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// IdleTimeout closes a channel with no traffic.
	IdleTimeout time.Duration
	QueueSize   int
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = time.Minute
		if c.MaxReconnectDelay < c.ReconnectDelay {
			c.MaxReconnectDelay = c.ReconnectDelay
		}
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	return c
}

// Endpoint returns the websocket URL with the agent id query parameter.
func (c Config) Endpoint() string {
	c = c.withDefaults()
	if c.AgentID == "" {
		return c.URL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}
	q := u.Query()
	if q.Get("agent_id") == "" {
		q.Set("agent_id", c.AgentID)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

type channel struct {
	id         string
	out        chan []byte
	ctx        context.Context
	cancel     context.CancelFunc
	lastActive atomic.Int64
}

func (c *channel) touch(now time.Time) { c.lastActive.Store(now.UnixNano()) }

// Manager owns one channel per conversation id.
type Manager struct {
	cfg           Config
	dialer        Dialer
	practitioners PractitionerLister
	logger        *logging.Logger
	now           func() time.Time

	mu       sync.Mutex
	channels map[string]*channel
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewManager builds a Manager. practitioners may be nil.
func NewManager(cfg Config, practitioners PractitionerLister, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:           cfg.withDefaults(),
		dialer:        &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		practitioners: practitioners,
		logger:        logger,
		now:           time.Now,
		channels:      make(map[string]*channel),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// WithDialer overrides the websocket dialer.
func (m *Manager) WithDialer(d Dialer) *Manager {
	if d != nil {
		m.dialer = d
	}
	return m
}

// Start opens a channel for conversationID. It is a no-op if one is running.
func (m *Manager) Start(conversationID string) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	if _, ok := m.channels[conversationID]; ok {
		m.logger.Debug("voiceagent: channel already running", "conversation_id", conversationID)
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	ch := &channel{id: conversationID, out: make(chan []byte, m.cfg.QueueSize), ctx: ctx, cancel: cancel}
	ch.touch(m.now())
	m.channels[conversationID] = ch
	m.wg.Add(1)
	go m.run(ch)
}

// Send queues msg for delivery once the channel is connected.
func (m *Manager) Send(ctx context.Context, conversationID string, msg any) error {
	m.mu.Lock()
	ch, ok := m.channels[conversationID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRunning, conversationID)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("voiceagent: encode message: %w", err)
	}
	ch.touch(m.now())
	select {
	case ch.out <- payload:
		return nil
	case <-ch.ctx.Done():
		return fmt.Errorf("%w: %s", ErrNotRunning, conversationID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the channel for conversationID.
func (m *Manager) Stop(conversationID string) {
	m.mu.Lock()
	ch, ok := m.channels[conversationID]
	if ok {
		delete(m.channels, conversationID)
	}
	m.mu.Unlock()
	if ok {
		ch.cancel()
		m.logger.Info("voiceagent: channel stopped", "conversation_id", conversationID)
	}
}

// Running reports whether a channel exists for conversationID.
func (m *Manager) Running(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[conversationID]
	return ok
}

// Len returns the number of open channels.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.channels)
}

// Close stops every channel and waits for their goroutines.
func (m *Manager) Close() {
	m.mu.Lock()
	m.cancel()
	m.channels = make(map[string]*channel)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) remove(ch *channel) {
	m.mu.Lock()
	if cur, ok := m.channels[ch.id]; ok && cur == ch {
		delete(m.channels, ch.id)
	}
	m.mu.Unlock()
	ch.cancel()
}

func (m *Manager) run(ch *channel) {
	defer m.wg.Done()
	defer m.remove(ch)

	log := m.logger.With("conversation_id", ch.id)
	delay := m.cfg.ReconnectDelay
	for {
		if m.idleFor(ch) <= 0 {
			log.Info("voiceagent: channel idle, closing")
			return
		}
		conn, _, err := m.dialer.DialContext(ch.ctx, m.cfg.Endpoint(), m.header())
		if err == nil {
			log.Info("voiceagent: connected")
			delay = m.cfg.ReconnectDelay
			if idle := m.serve(ch, conn, log); idle {
				log.Info("voiceagent: channel idle, closing")
				return
			}
		} else if ch.ctx.Err() == nil {
			log.Warn("voiceagent: dial failed", "error", err, "retry_in", delay.String())
		}
		if ch.ctx.Err() != nil {
			return
		}
		// Never sleep past the idle deadline, even while dials keep failing.
		wait := delay
		if left := m.idleFor(ch); left < wait {
			wait = max(left, 0)
		}
		select {
		case <-ch.ctx.Done():
			return
		case <-time.After(wait):
		}
		if err != nil {
			delay *= 2
			if delay > m.cfg.MaxReconnectDelay {
				delay = m.cfg.MaxReconnectDelay
			}
		}
	}
}

// idleFor is the time left before ch reaches the idle timeout.
func (m *Manager) idleFor(ch *channel) time.Duration {
	last := time.Unix(0, ch.lastActive.Load())
	return m.cfg.IdleTimeout - m.now().Sub(last)
}

func (m *Manager) header() http.Header {
	if m.cfg.APIKey == "" {
		return nil
	}
	return http.Header{"xi-api-key": []string{m.cfg.APIKey}}
}

// serve pumps one connection until it drops, the channel stops or it idles
// out. It reports whether the idle timeout ended it.
func (m *Manager) serve(ch *channel, conn *websocket.Conn, log *logging.Logger) bool {
	defer conn.Close()

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			ch.touch(m.now())
			m.handleInbound(ch, data, log)
		}
	}()

	check := m.cfg.IdleTimeout / 4
	if check <= 0 {
		check = time.Second
	}
	ticker := time.NewTicker(check)
	defer ticker.Stop()

	for {
		select {
		case <-ch.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return false
		case err := <-readErr:
			if ch.ctx.Err() == nil {
				log.Info("voiceagent: connection closed", "error", err)
			}
			return false
		case payload := <-ch.out:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("voiceagent: write failed", "error", err)
				return false
			}
			log.Info("voiceagent: message sent", "bytes", len(payload))
		case <-ticker.C:
			if m.idleFor(ch) <= 0 {
				return true
			}
		}
	}
}

type inbound struct {
	Type string `json:"type"`
}

func (m *Manager) handleInbound(ch *channel, data []byte, log *logging.Logger) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug("voiceagent: ignoring non-json message", "error", err)
		return
	}
	if msg.Type != TypeInitiationMetadata || m.practitioners == nil {
		return
	}
	payload, err := json.Marshal(PractitionerListMessage(ch.id, m.practitioners.ActivePractitioners(ch.ctx)))
	if err != nil {
		return
	}
	select {
	case ch.out <- payload:
	case <-ch.ctx.Done():
	}
}
