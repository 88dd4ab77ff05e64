// Package mqtt maintains the broker subscription that feeds the pipeline:
// one background goroutine owns the connection, reconnects with exponential
// backoff, and delivers messages to a single handler, one at a time.
package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// State is the connection manager's lifecycle state. Stopped is terminal and
// reachable only via Stop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

// String names the state for logs and the status surface.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Message is one raw bus message, consumed exactly once by the handler.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Handler consumes messages. It is invoked synchronously and sequentially:
// the next message is not delivered until the handler returns.
type Handler func(Message)

// Options configures the connection manager.
type Options struct {
	// BrokerURL is the full broker address, e.g. tcp://mqtt.bayme.sh:1883.
	BrokerURL string
	Username  string
	Password  string
	// Topic is the subscription filter (default "#").
	Topic string
	// InitialBackoff is the delay after the first failure; it doubles per
	// consecutive failure up to MaxBackoff and resets after a successful
	// connect.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// ConnectTimeout bounds a single connect or subscribe attempt.
	ConnectTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Topic == "" {
		out.Topic = "#"
	}
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = 5 * time.Second
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = 5 * time.Minute
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 30 * time.Second
	}
	return out
}

// Stats is a point-in-time snapshot for the status surface.
type Stats struct {
	State     string `json:"state"`
	Connected bool   `json:"connected"`
	Connects  uint64 `json:"connects"`
	Drops     uint64 `json:"drops"`
	Messages  uint64 `json:"messages"`
	BrokerURL string `json:"broker_url"`
	Topic     string `json:"topic"`
}

// client is the slice of the paho API the manager uses; tests substitute a
// fake through newClient.
type client interface {
	Connect() paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesceMillis uint)
}

// ConnManager owns the bus connection. Create with New, then Start; Stop is
// idempotent and joins the background goroutine with a bounded wait.
type ConnManager struct {
	opts    Options
	handler Handler
	log     *slog.Logger

	// newClient builds a broker client for one connection epoch. A fresh
	// client per epoch matches the broker's lack of session guarantees: the
	// subscription is re-issued every time.
	newClient func(*paho.ClientOptions) client

	// sleep waits out one backoff delay, returning false if Stop fires
	// first. Tests wrap it to observe the delays run chooses.
	sleep func(d time.Duration) bool

	state     atomic.Int32
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	connects atomic.Uint64
	drops    atomic.Uint64
	messages atomic.Uint64
}

// New returns an unstarted manager delivering messages to handler.
func New(opts Options, handler Handler, log *slog.Logger) *ConnManager {
	m := &ConnManager{
		opts:      opts.withDefaults(),
		handler:   handler,
		log:       log,
		newClient: func(o *paho.ClientOptions) client { return paho.NewClient(o) },
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	m.sleep = m.waitRetry
	return m
}

// Start launches the connection goroutine. It never blocks; connect failures
// are retried forever in the background.
func (m *ConnManager) Start() {
	m.startOnce.Do(func() {
		go m.run()
	})
}

// Stop signals the connection goroutine and waits for it, bounded by
// timeout. Safe to call more than once and before Start.
func (m *ConnManager) Stop(timeout time.Duration) {
	m.stopOnce.Do(func() { close(m.stop) })
	select {
	case <-m.done:
	case <-time.After(timeout):
		m.log.Warn("mqtt: stop timed out waiting for connection goroutine")
	}
}

// IsConnected reports the current link state.
func (m *ConnManager) IsConnected() bool {
	return State(m.state.Load()) == StateConnected
}

// CurrentState returns the lifecycle state.
func (m *ConnManager) CurrentState() State {
	return State(m.state.Load())
}

// Stats returns connection counters for the status surface.
func (m *ConnManager) Stats() Stats {
	return Stats{
		State:     m.CurrentState().String(),
		Connected: m.IsConnected(),
		Connects:  m.connects.Load(),
		Drops:     m.drops.Load(),
		Messages:  m.messages.Load(),
		BrokerURL: m.opts.BrokerURL,
		Topic:     m.opts.Topic,
	}
}

func (m *ConnManager) run() {
	defer close(m.done)
	delay := m.opts.InitialBackoff
	for {
		select {
		case <-m.stop:
			m.state.Store(int32(StateStopped))
			return
		default:
		}

		m.state.Store(int32(StateConnecting))
		cli, lost, err := m.connect()
		if err != nil {
			m.state.Store(int32(StateDisconnected))
			m.log.Warn("mqtt: connect failed", "broker", m.opts.BrokerURL, "retry_in", delay, "error", err)
			if !m.sleep(delay) {
				m.state.Store(int32(StateStopped))
				return
			}
			delay = nextDelay(delay, m.opts.MaxBackoff)
			continue
		}

		delay = m.opts.InitialBackoff // reset after any successful connect
		m.connects.Add(1)
		m.state.Store(int32(StateConnected))
		m.log.Info("mqtt: connected", "broker", m.opts.BrokerURL, "topic", m.opts.Topic)

		select {
		case <-m.stop:
			cli.Disconnect(250)
			m.state.Store(int32(StateStopped))
			m.log.Info("mqtt: stopped")
			return
		case dropErr := <-lost:
			m.drops.Add(1)
			m.state.Store(int32(StateDisconnected))
			m.log.Warn("mqtt: connection lost", "retry_in", delay, "error", dropErr)
			cli.Disconnect(0)
			if !m.sleep(delay) {
				m.state.Store(int32(StateStopped))
				return
			}
			delay = nextDelay(delay, m.opts.MaxBackoff)
		}
	}
}

// connect performs one connection epoch setup: dial, then subscribe. The
// returned channel fires once if the broker link drops unexpectedly.
func (m *ConnManager) connect() (client, <-chan error, error) {
	lost := make(chan error, 1)

	o := paho.NewClientOptions()
	o.AddBroker(m.opts.BrokerURL)
	o.SetUsername(m.opts.Username)
	o.SetPassword(m.opts.Password)
	o.SetClientID(fmt.Sprintf("bb-mesh-%d", time.Now().UnixNano()))
	o.SetCleanSession(true)
	// The manager owns reconnection; paho's built-in retry would fight the
	// backoff state machine.
	o.SetAutoReconnect(false)
	o.SetConnectRetry(false)
	o.SetKeepAlive(60 * time.Second)
	o.SetConnectionLostHandler(func(_ paho.Client, err error) {
		select {
		case lost <- err:
		default:
		}
	})

	cli := m.newClient(o)
	if err := m.wait(cli.Connect()); err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", m.opts.BrokerURL, err)
	}
	if err := m.wait(cli.Subscribe(m.opts.Topic, 0, m.onMessage)); err != nil {
		cli.Disconnect(0)
		return nil, nil, fmt.Errorf("subscribe %q: %w", m.opts.Topic, err)
	}
	return cli, lost, nil
}

func (m *ConnManager) onMessage(_ paho.Client, msg paho.Message) {
	m.messages.Add(1)
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("mqtt: message handler panicked", "topic", msg.Topic(), "panic", r)
		}
	}()
	m.handler(Message{Topic: msg.Topic(), Payload: msg.Payload(), ReceivedAt: time.Now().UTC()})
}

func (m *ConnManager) wait(tok paho.Token) error {
	if !tok.WaitTimeout(m.opts.ConnectTimeout) {
		return fmt.Errorf("timed out after %s", m.opts.ConnectTimeout)
	}
	return tok.Error()
}

// waitRetry waits for d unless Stop is called first; false means stop.
func (m *ConnManager) waitRetry(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.stop:
		return false
	case <-t.C:
		return true
	}
}

// nextDelay doubles the backoff, capped at max.
func nextDelay(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
