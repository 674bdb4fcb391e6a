package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tringuyenminh209/mimamori/backend/pkg/feed"
	"github.com/tringuyenminh209/mimamori/backend/pkg/utils"
)

const (
	DefaultConnectTimeout       = 10 * time.Second
	DefaultKeepAlive            = 60 * time.Second
	DefaultMaxReconnectInterval = 30 * time.Second
	DefaultClientIDPrefix       = "mimamori"

	subscribeTimeout  = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// SessionOptions holds the connection parameters that do not change when the user
// edits broker or topic settings.
type SessionOptions struct {
	ClientIDPrefix       string
	Username             string
	Password             string
	ConnectTimeout       time.Duration
	KeepAlive            time.Duration
	MaxReconnectInterval time.Duration
	// RetryInitialConnect keeps retrying the first connection instead of reporting
	// Disconnected after one failed attempt.
	RetryInitialConnect bool
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.ClientIDPrefix == "" {
		o.ClientIDPrefix = DefaultClientIDPrefix
	}

	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}

	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}

	if o.MaxReconnectInterval <= 0 {
		o.MaxReconnectInterval = DefaultMaxReconnectInterval
	}

	return o
}

// Session owns a single logical broker connection. All network I/O happens on
// background goroutines; callers only ever observe the outcome through
// Connectivity and Messages.
type Session struct {
	l    *slog.Logger
	opts SessionOptions

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	client  paho.Client
	cfg     SessionConfig
	state   ConnState
	lastErr error

	messages     *feed.Feed[Message]
	connectivity *feed.Feed[ConnState]
	wg           sync.WaitGroup
}

func NewSession(l *slog.Logger, opts SessionOptions) *Session {
	s := &Session{
		l:            l.With(slog.String("component", "mqtt-session")),
		opts:         opts.withDefaults(),
		state:        Disconnected,
		messages:     feed.New[Message](),
		connectivity: feed.NewLatest[ConnState](),
	}
	s.connectivity.Send(Disconnected)

	return s
}

// Messages subscribes to every inbound message. When the subscriber falls more than
// buffer messages behind, the oldest are discarded.
func (s *Session) Messages(buffer int) *feed.Subscription[Message] {
	return s.messages.Subscribe(buffer)
}

// Connectivity subscribes to state transitions. The current state is delivered first.
func (s *Session) Connectivity(buffer int) *feed.Subscription[ConnState] {
	return s.connectivity.Subscribe(buffer)
}

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Config returns the configuration of the most recent Connect call.
func (s *Session) Config() SessionConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cfg
}

// LastError returns the most recent connection failure, or nil.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastErr
}

// Connect starts a session with cfg and returns immediately. Calling it again with the
// same cfg while connecting or connected does nothing; a different cfg replaces the
// current session.
func (s *Session) Connect(cfg SessionConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.cfg == cfg && s.state != Disconnected {
		s.l.Debug("already connected to broker", slog.String("broker", cfg.Broker))
		return
	}

	s.teardownLocked()

	s.gen++
	gen := s.gen
	s.cfg = cfg
	s.lastErr = nil
	s.setStateLocked(Connecting)

	if err := cfg.Validate(); err != nil {
		s.l.Error("invalid session configuration", slog.String("broker", cfg.Broker), utils.ErrAttr(err))
		s.lastErr = err
		s.setStateLocked(Disconnected)

		return
	}

	u, _ := parseBrokerURL(cfg.Broker)

	clientID := fmt.Sprintf("%s-%s", s.opts.ClientIDPrefix, uuid.NewString()[:8])

	clientOpts := paho.NewClientOptions()
	clientOpts.AddBroker(cfg.Broker)
	clientOpts.SetClientID(clientID)

	if s.opts.Username != "" {
		clientOpts.SetUsername(s.opts.Username)
	}

	if s.opts.Password != "" {
		clientOpts.SetPassword(s.opts.Password)
	}

	if tlsCfg := tlsConfigFor(u); tlsCfg != nil {
		clientOpts.SetTLSConfig(tlsCfg)
	}

	clientOpts.SetCleanSession(true)
	clientOpts.SetOrderMatters(true)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(s.opts.RetryInitialConnect)
	clientOpts.SetConnectRetryInterval(time.Second)
	clientOpts.SetConnectTimeout(s.opts.ConnectTimeout)
	clientOpts.SetMaxReconnectInterval(s.opts.MaxReconnectInterval)
	clientOpts.SetKeepAlive(s.opts.KeepAlive)

	clientOpts.SetOnConnectHandler(func(c paho.Client) { s.onConnect(gen, c, cfg) })
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) { s.onConnectionLost(gen, err) })
	clientOpts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) { s.onReconnecting(gen) })

	client := paho.NewClient(clientOpts)

	ctx, cancel := context.WithCancel(context.Background())
	s.client = client
	s.cancel = cancel

	s.l.Info("connecting to broker",
		slog.String("broker", cfg.Broker),
		slog.String("clientID", clientID),
		slog.String("dataTopic", cfg.DataTopic),
		slog.String("controlTopic", cfg.ControlTopic),
	)

	s.wg.Add(1)
	go s.awaitConnect(ctx, gen, client)
}

// awaitConnect waits for the initial connect token. A Disconnect or a newer Connect
// cancels ctx; the client is then torn down without reporting anything.
func (s *Session) awaitConnect(ctx context.Context, gen uint64, client paho.Client) {
	defer s.wg.Done()

	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(disconnectQuiesce)
		return
	}

	if ctx.Err() != nil {
		client.Disconnect(disconnectQuiesce)
		return
	}

	if err := token.Error(); err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.gen != gen {
			return
		}

		s.l.Error("failed to connect to broker", utils.ErrAttr(err))
		s.lastErr = err
		s.setStateLocked(Disconnected)
	}
}

func (s *Session) onConnect(gen uint64, c paho.Client, cfg SessionConfig) {
	if !s.isCurrent(gen) {
		return
	}

	handler := func(_ paho.Client, m paho.Message) { s.onMessage(gen, m) }

	for _, topic := range []string{cfg.DataTopic, cfg.ControlTopic} {
		token := c.Subscribe(topic, byte(QoSAtMostOnce), handler)
		if !token.WaitTimeout(subscribeTimeout) {
			s.l.Error("subscribe timed out", slog.String("topic", topic))
			continue
		}

		if err := token.Error(); err != nil {
			s.l.Error("failed to subscribe", slog.String("topic", topic), utils.ErrAttr(err))
			continue
		}

		s.l.Info("subscribed", slog.String("topic", topic))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}

	s.lastErr = nil
	s.setStateLocked(Connected)
}

func (s *Session) onConnectionLost(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}

	s.l.Warn("connection to broker lost", utils.ErrAttr(err))
	s.lastErr = err
	s.setStateLocked(Disconnected)
}

func (s *Session) onReconnecting(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen {
		return
	}

	s.l.Info("reconnecting to broker", slog.String("broker", s.cfg.Broker))
	s.setStateLocked(Connecting)
}

func (s *Session) onMessage(gen uint64, m paho.Message) {
	if !s.isCurrent(gen) {
		return
	}

	payload := make([]byte, len(m.Payload()))
	copy(payload, m.Payload())

	if dropped := s.messages.Send(Message{Topic: m.Topic(), Payload: payload, ReceivedAt: time.Now()}); dropped > 0 {
		s.l.Warn("message subscriber lagging, dropped oldest", slog.Int("dropped", dropped))
	}
}

// Publish sends payload on topic at QoS 0 without retain. It never blocks on the
// network; when the session is not connected the message is dropped and Publish
// returns false.
func (s *Session) Publish(topic string, payload []byte) bool {
	s.mu.Lock()
	client, state := s.client, s.state
	s.mu.Unlock()

	if client == nil || state != Connected {
		s.l.Warn("not connected, dropping publish", slog.String("topic", topic), slog.String("state", state.String()))
		return false
	}

	token := client.Publish(topic, byte(QoSAtMostOnce), false, payload)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if !token.WaitTimeout(publishTimeout) {
			s.l.Warn("publish timed out", slog.String("topic", topic))
			return
		}

		if err := token.Error(); err != nil {
			s.l.Error("failed to publish", slog.String("topic", topic), utils.ErrAttr(err))
			return
		}

		s.l.Debug("published", slog.String("topic", topic), slog.Int("bytes", len(payload)))
	}()

	return true
}

// Disconnect tears the session down and always reports Disconnected. A connect
// still in flight is cancelled and will not bring the connection back.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	s.teardownLocked()
	s.setStateLocked(Disconnected)
}

// Close disconnects and waits for background work to finish.
func (s *Session) Close() {
	s.Disconnect()
	s.wg.Wait()
	s.messages.Close()
	s.connectivity.Close()
}

func (s *Session) teardownLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	client := s.client
	s.client = nil

	if client == nil {
		return
	}

	s.l.Info("disconnecting from broker", slog.String("broker", s.cfg.Broker))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		client.Disconnect(disconnectQuiesce)
	}()
}

func (s *Session) setStateLocked(state ConnState) {
	if s.state == state {
		return
	}

	s.l.Debug("connectivity changed", slog.String("from", s.state.String()), slog.String("to", state.String()))
	s.state = state
	s.connectivity.Send(state)
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen == gen
}
