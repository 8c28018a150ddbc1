package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/void-worker/pkg/protocol"
)

const natsLogPrefix = "transport:nats"

// NATSConn is the client end of the worker channel over COMMS. Calls are
// published to the worker subject with a private inbox as reply subject; the
// worker answers on that inbox.
type NATSConn struct {
	nc      *comms.Conn
	codec   protocol.Codec
	subject string
	inbox   string
	sub     *comms.Subscription
	queue   *Queue[protocol.Envelope]
	once    sync.Once
}

// DialNATS subscribes a fresh inbox and returns a connection that publishes to subject.
func DialNATS(nc *comms.Conn, subject string, codec protocol.Codec) (*NATSConn, error) {
	c := &NATSConn{
		nc:      nc,
		codec:   codec,
		subject: subject,
		inbox:   nc.NewInbox(),
		queue:   NewQueue[protocol.Envelope](),
	}

	sub, err := nc.Subscribe(c.inbox, func(msg *comms.Msg) {
		env, err := c.codec.Decode(msg.Data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable message on %s: %v", natsLogPrefix, c.inbox, err))
			return
		}
		c.queue.Push(env)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe inbox: %w", natsLogPrefix, err)
	}
	c.sub = sub

	// The inbox must be registered with the server before the first call goes out.
	if err := nc.Flush(); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("%s - failed to flush subscription: %w", natsLogPrefix, err)
	}
	return c, nil
}

// Inbox returns the reply subject identifying this client to the worker.
func (c *NATSConn) Inbox() string {
	return c.inbox
}

func (c *NATSConn) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	if err := c.nc.PublishMsg(&comms.Msg{Subject: c.subject, Reply: c.inbox, Data: data}); err != nil {
		if err == comms.ErrConnectionClosed {
			return ErrClosed
		}
		return fmt.Errorf("%s - publish to %s: %w", natsLogPrefix, c.subject, err)
	}
	return nil
}

func (c *NATSConn) Recv(ctx context.Context) (protocol.Envelope, error) {
	return c.queue.Pop(ctx)
}

// Close unsubscribes the inbox. The underlying COMMS connection stays open.
func (c *NATSConn) Close() error {
	var err error
	c.once.Do(func() {
		c.queue.Close()
		if c.sub != nil {
			err = c.sub.Unsubscribe()
		}
	})
	return err
}

// HandlerFunc receives every decoded envelope arriving on the worker subject.
// peer identifies the caller (its reply inbox) and reply sends back to it.
type HandlerFunc func(peer string, env protocol.Envelope, reply Sender)

// ServeNATS subscribes the worker subject and hands each envelope to handle.
// Handlers run on the subscription goroutine, in arrival order, and must not block.
func ServeNATS(nc *comms.Conn, subject string, codec protocol.Codec, handle HandlerFunc) (*comms.Subscription, error) {
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		if msg.Reply == "" {
			slog.Warn(fmt.Sprintf("%s - dropping message on %s without reply subject", natsLogPrefix, subject))
			return
		}
		env, err := codec.Decode(msg.Data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable message from %s: %v", natsLogPrefix, msg.Reply, err))
			return
		}
		handle(msg.Reply, env, &natsReply{nc: nc, subject: msg.Reply, codec: codec})
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, subject, err)
	}
	return sub, nil
}

type natsReply struct {
	nc      *comms.Conn
	subject string
	codec   protocol.Codec
}

func (r *natsReply) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := r.codec.Encode(env)
	if err != nil {
		return err
	}
	if err := r.nc.Publish(r.subject, data); err != nil {
		return fmt.Errorf("%s - publish to %s: %w", natsLogPrefix, r.subject, err)
	}
	return nil
}
