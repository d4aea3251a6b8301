package queue

import "time"

// Message is the caller-facing copy of a queued message. ReceiptHandle is
// set only on messages returned by Pull.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// entry is the engine-owned record behind a Message.
type entry struct {
	msg      Message
	pulledAt time.Time
}
