// Package natsutil dials the JetStream broker that carries todo events.
package natsutil

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/focus-todo/project/internal/messaging"
	"github.com/nats-io/nats.go"
)

const (
	minRetryDelay = 250 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// Options tune a connection. The zero value is usable.
type Options struct {
	// Name identifies the binary in the broker's connection list.
	Name   string
	Logger *log.Logger
}

type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
}

// ConnectJetStream dials url and makes sure the event stream exists.
func ConnectJetStream(url string, opts Options) (*Client, error) {
	name := opts.Name
	if name == "" {
		name = "focus-todo"
	}
	natsOpts := []nats.Option{nats.Name(name), nats.MaxReconnects(-1)}
	if logger := opts.Logger; logger != nil {
		natsOpts = append(natsOpts,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					logger.Warn("nats disconnected", "err", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
			}),
		)
	}

	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if err := messaging.EnsureStreams(js); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, JS: js}, nil
}

// ConnectJetStreamWithRetry keeps dialing with a growing delay until the
// broker answers or timeout elapses.
func ConnectJetStreamWithRetry(ctx context.Context, url string, timeout time.Duration, opts Options) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := time.Duration(0)
	for attempt := 1; ; attempt++ {
		client, err := ConnectJetStream(url, opts)
		if err == nil {
			return client, nil
		}
		delay = nextDelay(delay)
		if opts.Logger != nil {
			opts.Logger.Debug("nats not ready", "attempt", attempt, "retry_in", delay, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("nats unavailable after %s: %w", timeout, err)
		case <-time.After(delay):
		}
	}
}

func nextDelay(prev time.Duration) time.Duration {
	if prev < minRetryDelay {
		return minRetryDelay
	}
	if next := prev * 2; next < maxRetryDelay {
		return next
	}
	return maxRetryDelay
}

// Close drains pending publishes before closing. Safe on a nil client.
func (c *Client) Close() {
	if c == nil || c.Conn == nil {
		return
	}
	if err := c.Conn.Drain(); err != nil {
		c.Conn.Close()
	}
}

func (c *Client) Ready() bool {
	return c != nil && c.Conn != nil && c.Conn.IsConnected()
}

// Publish sends payload to subject and waits for the stream ack.
func (c *Client) Publish(subject string, payload []byte) error {
	if _, err := c.JS.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
