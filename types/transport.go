package types

import "context"

// MessageHandler receives one inbound message from a Transport subscription.
//
// Parameters:
//   - topic: The topic the message was published on
//   - payload: Raw message payload (UTF-8 JSON for protocol messages)
//   - senderID: Participant ID of the publisher, empty if the transport cannot tell
type MessageHandler func(topic string, payload []byte, senderID string)

// Subscription is an active Transport subscription.
type Subscription interface {
	// Unsubscribe stops delivery to the subscription's handler.
	//
	// Returns:
	//   - error: Transport error (nil on success)
	Unsubscribe() error
}

// Transport is the shared publish/subscribe bus the election protocol runs over.
//
// Delivery semantics expected by the protocol:
//   - At-most-once: messages may be dropped
//   - Unordered: messages may be reordered
//   - Broadcast: every current subscriber of a topic receives a published message,
//     including the publisher itself when it is subscribed
//
// Implementations must be safe for concurrent use. Handlers may be invoked
// concurrently from different subscriptions.
type Transport interface {
	// Subscribe registers handler for messages published on topic.
	//
	// Parameters:
	//   - topic: Topic name ("<namespace>:<key>" for batons)
	//   - handler: Callback invoked for every delivered message
	//
	// Returns:
	//   - Subscription: Handle used to stop delivery
	//   - error: Subscribe error (nil on success)
	Subscribe(topic string, handler MessageHandler) (Subscription, error)

	// Publish broadcasts payload on topic, best-effort.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - topic: Topic name
	//   - senderID: Participant ID of the publisher, delivered to subscribers
	//   - payload: Message payload
	//
	// Returns:
	//   - error: Publish error (nil does not imply delivery)
	Publish(ctx context.Context, topic string, senderID string, payload []byte) error
}
