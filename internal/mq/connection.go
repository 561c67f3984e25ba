package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	initialReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Connection — AMQP соединение с автоматическим переподключением.
type Connection struct {
	url    string
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	closed  bool

	closedCh    chan struct{}
	reconnectCh chan struct{}
}

// NewConnection подключается к RabbitMQ и следит за соединением.
func NewConnection(rawURL string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:         rawURL,
		logger:      logger.With("broker", redact(rawURL)),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	go c.watch()

	return c, nil
}

func (c *Connection) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info("connected to RabbitMQ")
	return nil
}

// watch ждёт закрытия соединения и переподключается.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.closedCh:
			return
		case err := <-notify:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
		}

		if !c.reconnect() {
			return
		}
	}
}

// reconnect переподключается с экспоненциальной задержкой.
// Возвращает false, если соединение закрыто.
func (c *Connection) reconnect() bool {
	delay := initialReconnectDelay
	for {
		c.logger.Info("reconnecting", "delay", delay)
		select {
		case <-c.closedCh:
			return false
		case <-time.After(delay):
		}

		if err := c.connect(); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return true
	}
}

// Channel возвращает текущий канал (nil во время переподключения).
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигналит после успешного переподключения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// IsConnected проверяет, что соединение открыто.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.conn != nil && !c.conn.IsClosed()
}

// WithChannel вызывает fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.RLock()
	ch, closed := c.channel, c.closed
	c.mu.RUnlock()

	switch {
	case closed:
		return ErrClosed
	case ch == nil || ch.IsClosed():
		return ErrNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов безопасен.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil && !c.channel.IsClosed() {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	c.logger.Info("connection closed")
	return errors.Join(errs...)
}

// redact убирает пароль из URL для логов.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
