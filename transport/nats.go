package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nats-io/nats.go"
	"github.com/zeebo/xxh3"

	"github.com/arloliu/baton/types"
)

// SenderHeader is the NATS header that carries the publisher's participant ID.
const SenderHeader = "Baton-Sender"

// NATS is a Transport over core NATS publish/subscribe.
//
// Topics are used as subjects when they are valid NATS subjects. Otherwise the
// part after the namespace separator is replaced by its xxh3 hash, so arbitrary
// baton keys (spaces, wildcards) still map to a stable subject.
type NATS struct {
	conn *nats.Conn
}

// Compile-time assertion that NATS implements Transport.
var _ types.Transport = (*NATS)(nil)

// NewNATS creates a NATS transport.
//
// Parameters:
//   - conn: Connected NATS client (must not be nil)
//
// Returns:
//   - *NATS: Transport instance
//   - error: ErrNATSConnectionRequired when conn is nil
func NewNATS(conn *nats.Conn) (*NATS, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}

	return &NATS{conn: conn}, nil
}

// Subscribe registers handler for topic.
//
// The handler receives the original topic, not the mapped subject.
func (t *NATS) Subscribe(topic string, handler types.MessageHandler) (types.Subscription, error) {
	subject := Subject(topic)
	sub, err := t.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(topic, msg.Data, msg.Header.Get(SenderHeader))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return sub, nil
}

// Publish sends payload on topic with senderID in the sender header.
func (t *NATS) Publish(ctx context.Context, topic string, senderID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := nats.NewMsg(Subject(topic))
	msg.Header.Set(SenderHeader, senderID)
	msg.Data = payload

	if err := t.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", msg.Subject, err)
	}

	return nil
}

// Subject maps a topic to a NATS subject.
//
// Valid subjects are returned unchanged. For invalid ones the suffix after the
// first ':' is replaced by its xxh3 hex digest ("<namespace>:<hash>"); if the
// namespace itself is invalid the whole topic is hashed under "baton:".
//
// Parameters:
//   - topic: Baton topic ("<namespace>:<key>")
//
// Returns:
//   - string: Valid NATS subject
func Subject(topic string) string {
	if validSubject(topic) {
		return topic
	}

	ns, rest, found := strings.Cut(topic, ":")
	if found && validSubject(ns) {
		return ns + ":" + hashToken(rest)
	}

	return "baton:" + hashToken(topic)
}

func hashToken(s string) string {
	return strconv.FormatUint(xxh3.HashString(s), 16)
}

func validSubject(s string) bool {
	if s == "" {
		return false
	}

	for _, token := range strings.Split(s, ".") {
		if token == "" {
			return false
		}
		for _, r := range token {
			if r == '*' || r == '>' || unicode.IsSpace(r) || r == 0 {
				return false
			}
		}
	}

	return true
}
