// Package ws provides a type-safe WebSocket client used by the demo
// application to receive out-of-band server events (new posts, reconnect
// pings) that drive a query's signal-driven invalidation (spec §4.D
// "signal-driven invalidation").
//
// It is adapted from the teacher's ws/ws.go, a syscall/js binding to the
// browser's WebSocket object: the same functional-option API, Message
// envelope and request/response correlation map survive unchanged, but the
// transport underneath is a real network connection via
// github.com/gorilla/websocket instead of JS callbacks, and a background
// read pump goroutine stands in for the browser's onmessage event.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Common errors.
var (
	ErrNotConnected      = errors.New("websocket not connected")
	ErrAlreadyConnected  = errors.New("websocket already connected")
	ErrConnectionFailed  = errors.New("websocket connection failed")
)

// State represents WebSocket connection state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// Message is a typed WebSocket message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	ID      string          `json:"id,omitempty"` // for request/response correlation
}

// Client is a type-safe WebSocket client wrapping one gorilla/websocket
// connection.
type Client struct {
	url string

	mu    sync.RWMutex
	conn  *websocket.Conn
	state State

	handlersMu sync.RWMutex
	handlers   map[string][]func(json.RawMessage)

	pendingReqsMu sync.RWMutex
	pendingReqs   map[string]chan Message

	writeMu sync.Mutex

	onOpen    func()
	onClose   func(code int, reason string)
	onError   func(err error)
	onMessage func(Message)
}

// Option configures a Client.
type Option func(*Client)

// WithOnOpen sets the connection-open callback.
func WithOnOpen(fn func()) Option { return func(c *Client) { c.onOpen = fn } }

// WithOnClose sets the connection-close callback.
func WithOnClose(fn func(code int, reason string)) Option {
	return func(c *Client) { c.onClose = fn }
}

// WithOnError sets the error callback.
func WithOnError(fn func(err error)) Option { return func(c *Client) { c.onError = fn } }

// WithOnMessage sets the raw message callback, invoked for every message in
// addition to any type-specific handler registered via On.
func WithOnMessage(fn func(Message)) Option { return func(c *Client) { c.onMessage = fn } }

// NewClient creates a WebSocket client for url (e.g. "ws://host/ws"). The
// connection is not established until Connect is called.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:         url,
		state:       StateClosed,
		handlers:    make(map[string][]func(json.RawMessage)),
		pendingReqs: make(map[string]chan Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials url and starts the background read pump. It blocks until
// the connection is open or dialing fails.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		if c.onError != nil {
			c.onError(fmt.Errorf("%w: %v", ErrConnectionFailed, err))
		}
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	c.mu.Unlock()

	go c.readPump(conn)

	if c.onOpen != nil {
		c.onOpen()
	}
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.state = StateClosed
			c.mu.Unlock()
			if c.onClose != nil {
				code, reason := 1000, ""
				if ce, ok := err.(*websocket.CloseError); ok {
					code, reason = ce.Code, ce.Text
				}
				c.onClose(code, reason)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			if c.onMessage != nil {
				c.onMessage(Message{Payload: json.RawMessage(data)})
			}
			continue
		}

		if msg.ID != "" {
			c.pendingReqsMu.RLock()
			ch, ok := c.pendingReqs[msg.ID]
			c.pendingReqsMu.RUnlock()
			if ok {
				ch <- msg
				continue
			}
		}

		c.handlersMu.RLock()
		handlers := append([]func(json.RawMessage){}, c.handlers[msg.Type]...)
		c.handlersMu.RUnlock()
		for _, h := range handlers {
			h(msg.Payload)
		}

		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ErrNotConnected
	}
	c.state = StateClosing
	err := c.conn.Close()
	c.state = StateClosed
	return err
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is open.
func (c *Client) IsConnected() bool { return c.State() == StateOpen }

func (c *Client) writeJSON(v any) error {
	c.mu.RLock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.RUnlock()
	if !open {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

// Send sends a typed message with no response expected.
func (c *Client) Send(msgType string, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.writeJSON(Message{Type: msgType, Payload: payloadBytes})
}

// On registers a handler for a specific message type. Multiple handlers for
// the same type all run, in registration order.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[msgType] = append(c.handlers[msgType], handler)
}

// OnTyped registers a handler that decodes the message payload to T before
// calling handler; decode failures are silently dropped.
func OnTyped[T any](c *Client, msgType string, handler func(T)) {
	c.On(msgType, func(data json.RawMessage) {
		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
		handler(payload)
	})
}

// Request sends a message and blocks for a response correlated by a
// generated ID, the same pattern the teacher used for its posts.* message
// types, but with a real uuid instead of Date.now()+Math.random().
func (c *Client) Request(msgType string, payload any) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	respCh := make(chan Message, 1)
	c.pendingReqsMu.Lock()
	c.pendingReqs[id] = respCh
	c.pendingReqsMu.Unlock()
	defer func() {
		c.pendingReqsMu.Lock()
		delete(c.pendingReqs, id)
		c.pendingReqsMu.Unlock()
	}()

	if err := c.writeJSON(Message{Type: msgType, Payload: payloadBytes, ID: id}); err != nil {
		return nil, err
	}

	resp := <-respCh
	if resp.Type == "error" {
		var errMsg struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(resp.Payload, &errMsg); err == nil {
			return nil, errors.New(errMsg.Message)
		}
		return nil, errors.New("unknown error")
	}
	return resp.Payload, nil
}

// RequestTyped sends req and decodes the correlated response into Resp.
func RequestTyped[Req any, Resp any](c *Client, msgType string, req Req) (*Resp, error) {
	data, err := c.Request(msgType, req)
	if err != nil {
		return nil, err
	}
	var resp Resp
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &resp, nil
}
