// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of rtedge.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package nats is the alternate NATS-subject transport mode for
// PubSubChannel (spec.md §7): instead of framing messages over a raw
// iosock.Socket, a Channel may publish/subscribe encoded frames on NATS
// subjects. It wraps nats.go with the same connection-management shape
// the teacher used for its own messaging client, adapted to this
// module's own logger rather than the upstream cc-lib logger.
package nats

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/gatea-dev/rtedge/pkg/log"
)

// Config configures a NATS-backed transport.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	CredsFilePath string `json:"credsFilePath,omitempty"`
}

var (
	clientOnce     sync.Once
	clientInstance *Client
	clientConfig   Config
)

// Client wraps a NATS connection with subscription management.
type Client struct {
	conn          *nats.Conn
	subscriptions []*nats.Subscription
	mu            sync.Mutex
}

// MessageHandler is a callback function for processing received messages.
type MessageHandler func(subject string, data []byte)

// SetConfig installs the configuration used by the singleton Connect.
func SetConfig(cfg Config) { clientConfig = cfg }

// Connect initializes the singleton client using the config set via
// SetConfig. Only the first call attempts a connection; later calls are
// no-ops whether or not that attempt succeeded.
func Connect() {
	clientOnce.Do(func() {
		if clientConfig.Address == "" {
			log.Warn("nats: no address configured, skipping connection")
			return
		}

		client, err := NewClient(&clientConfig)
		if err != nil {
			log.Warnf("nats: connection failed: %v", err)
			return
		}

		clientInstance = client
	})
}

// GetClient returns the singleton client instance, or nil if Connect has
// not been called or its single attempt failed.
func GetClient() *Client {
	if clientInstance == nil {
		log.Warn("nats: client not initialized")
	}
	return clientInstance
}

// NewClient creates a new NATS client from cfg.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("nats: address is required")
	}

	var opts []nats.Option

	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}

	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			log.Warnf("nats: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		log.Infof("nats: reconnected to %s", nc.ConnectedUrl())
	}))
	opts = append(opts, nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
		log.Errorf("nats: error: %v", err)
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats: connect failed: %w", err)
	}

	log.Infof("nats: connected to %s", cfg.Address)

	return &Client{
		conn:          nc,
		subscriptions: make([]*nats.Subscription, 0),
	}, nil
}

// Subscribe registers a handler for messages on the given subject. Used
// by Channel.Subscribe when the transport is NATS-subject based: the
// subject is the stream's (service, ticker) pair joined by ".".
func (c *Client) Subscribe(subject string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats: subscribe to %q failed: %w", subject, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: subscribed to %q", subject)
	return nil
}

// SubscribeQueue registers a handler with queue group for load-balanced
// message processing across multiple channel instances.
func (c *Client) SubscribeQueue(subject, queue string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats: queue subscribe to %q (queue %q) failed: %w", subject, queue, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: queue subscribed to %q (queue %q)", subject, queue)
	return nil
}

// SubscribeChan subscribes to a subject and delivers messages to ch.
func (c *Client) SubscribeChan(subject string, ch chan *nats.Msg) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.conn.ChanSubscribe(subject, ch)
	if err != nil {
		return fmt.Errorf("nats: chan subscribe to %q failed: %w", subject, err)
	}

	c.subscriptions = append(c.subscriptions, sub)
	log.Infof("nats: chan subscribed to %q", subject)
	return nil
}

// Publish sends an encoded frame to subject (Channel.Publish's NATS path).
func (c *Client) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats: publish to %q failed: %w", subject, err)
	}
	return nil
}

// Request sends a request and waits for a response within timeout's
// deadline, used for the spec's QUERY/INSERT request/ack exchanges when
// running over NATS instead of a framed socket.
func (c *Client) Request(subject string, data []byte, timeout context.Context) ([]byte, error) {
	msg, err := c.conn.RequestWithContext(timeout, subject, data)
	if err != nil {
		return nil, fmt.Errorf("nats: request to %q failed: %w", subject, err)
	}
	return msg.Data, nil
}

// Flush flushes the connection buffer to ensure all published messages
// have been sent.
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close unsubscribes all subscriptions and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			log.Warnf("nats: unsubscribe failed: %v", err)
		}
	}
	c.subscriptions = nil

	if c.conn != nil {
		c.conn.Close()
		log.Info("nats: connection closed")
	}
}

// IsConnected returns true if the client has an active connection.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Connection returns the underlying NATS connection for advanced usage.
func (c *Client) Connection() *nats.Conn {
	return c.conn
}
