package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/void-worker/pkg/commsutil"
	"github.com/morezero/void-worker/pkg/protocol"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// Headers set on every change event so subscribers can filter without decoding.
const (
	HeaderStore = "Void-Store"
	HeaderOp    = "Void-Op"
	HeaderCodec = "Void-Codec"
)

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalChangeSubject overrides the global change event subject (CHANGE_EVENT_SUBJECT).
	GlobalChangeSubject string
	// Codec encodes event bodies; nil means JSON.
	Codec protocol.Codec
}

// CommsPublisher publishes store change events to COMMS subjects: once on the
// store's granular subject (<global>.<store>) and once on the global subject.
type CommsPublisher struct {
	nc                  *comms.Conn
	globalChangeSubject string
	codec               protocol.Codec
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, globalChangeSubject: commsutil.SubjectChangeEvent, codec: protocol.JSON}
	if opts != nil {
		if opts.GlobalChangeSubject != "" {
			p.globalChangeSubject = opts.GlobalChangeSubject
		}
		if opts.Codec != nil {
			p.codec = opts.Codec
		}
	}
	return p
}

// PublishChanged publishes event to its granular subject, then the global one.
func (p *CommsPublisher) PublishChanged(_ context.Context, event *ChangedEvent) error {
	data, err := p.codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	for _, subject := range []string{commsutil.BuildChangeSubject(p.globalChangeSubject, event.Store), p.globalChangeSubject} {
		msg := comms.NewMsg(subject)
		msg.Data = data
		msg.Header.Set(HeaderStore, event.Store)
		msg.Header.Set(HeaderOp, event.Op)
		msg.Header.Set(HeaderCodec, p.codec.Name())
		if err := p.nc.PublishMsg(msg); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published %s/%s event (%d keys)", commsPublisherLogPrefix, event.Store, event.Op, len(event.Keys)))
	return nil
}

// DecodeChanged decodes a message published by CommsPublisher, picking the
// codec from its header.
func DecodeChanged(msg *comms.Msg) (*ChangedEvent, error) {
	codec := protocol.JSON
	if name := msg.Header.Get(HeaderCodec); name != "" {
		var err error
		if codec, err = protocol.CodecByName(name); err != nil {
			return nil, err
		}
	}
	var event ChangedEvent
	if err := codec.Unmarshal(msg.Data, &event); err != nil {
		return nil, fmt.Errorf("%s - failed to decode event: %w", commsPublisherLogPrefix, err)
	}
	return &event, nil
}
