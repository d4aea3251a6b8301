package queue

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/aridsondez/sqs-lite-mem/internal/metrics"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/sweeper"
)

// DefaultRefreshInterval is how often the sweeper returns expired messages.
const DefaultRefreshInterval = 100 * time.Millisecond

// Option configures an Engine.
type Option func(*Engine)

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.refreshInterval = d
		}
	}
}

// WithIDGenerator replaces the source of message ids and receipt handles.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// Engine owns one queue: the available list, the in-flight list ordered by
// pull time, and the receipt-handle index. A single mutex guards all three
// together with the attributes and the closed flag. A released engine refuses
// every operation, so a caller that resolved it just before the queue was
// deleted cannot write into it or resurrect its metric series.
type Engine struct {
	name            string
	rules           *RuleSet
	clock           clockwork.Clock
	log             zerolog.Logger
	newID           func() (string, error)
	refreshInterval time.Duration

	mu         sync.Mutex
	attributes map[string]string
	available  *list.List // of *entry
	inFlight   *list.List // of *entry, oldest pull first
	handles    map[string]*list.Element
	closed     bool

	sweeper *sweeper.Sweeper
}

// NewEngine creates a queue seeded with the rule set defaults and starts its
// expiry sweeper. Call ReleaseResources when the queue goes away.
func NewEngine(name string, rules *RuleSet, opts ...Option) *Engine {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	e := &Engine{
		name:            name,
		rules:           rules,
		clock:           clockwork.NewRealClock(),
		log:             zerolog.Nop(),
		newID:           newUUID,
		refreshInterval: DefaultRefreshInterval,
		available:       list.New(),
		inFlight:        list.New(),
		handles:         make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("queue", name).Logger()
	e.attributes = rules.Defaults()

	e.sweeper = sweeper.New(e, e.refreshInterval, e.clock, e.log.With().Str("component", "sweeper").Logger())
	go e.sweeper.Start(context.Background())
	return e
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (e *Engine) Name() string {
	return e.name
}

// Push appends body to the tail of the queue and returns the new message id.
func (e *Engine) Push(body string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return "", false
	}
	if body == "" {
		e.reject(metrics.ReasonEmptyBody)
		e.log.Error().Msg("message body is empty, push rejected")
		return "", false
	}

	id, err := e.newID()
	if err != nil {
		e.reject(metrics.ReasonInternal)
		e.log.Error().Err(err).Msg("failed to generate message id")
		return "", false
	}

	e.available.PushBack(&entry{msg: Message{ID: id, Body: body}})
	metrics.MessagesPushed.WithLabelValues(e.name).Inc()
	return id, true
}

// Pull moves the head of the queue in-flight under a fresh receipt handle.
// It never waits: an empty queue returns false.
func (e *Engine) Pull() (Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	front := e.available.Front()
	if e.closed || front == nil {
		return Message{}, false
	}

	// Generate the handle before touching state so a failure leaves the queue as it was.
	handle, err := e.newID()
	if err != nil {
		e.reject(metrics.ReasonInternal)
		e.log.Error().Err(err).Msg("failed to generate receipt handle")
		return Message{}, false
	}
	if _, taken := e.handles[handle]; taken || handle == "" {
		e.reject(metrics.ReasonInternal)
		e.log.Error().Str("receipt_handle", handle).Msg("generated receipt handle is not unique")
		return Message{}, false
	}

	ent := e.available.Remove(front).(*entry)
	ent.msg.ReceiptHandle = handle
	ent.pulledAt = e.clock.Now()
	e.handles[handle] = e.inFlight.PushBack(ent)

	metrics.MessagesPulled.WithLabelValues(e.name).Inc()
	return ent.msg, true
}

// Delete removes the in-flight message issued under handle for good.
func (e *Engine) Delete(handle string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	el, ok := e.handles[handle]
	if !ok {
		e.reject(metrics.ReasonUnknownHandle)
		e.log.Error().Str("receipt_handle", handle).Msg("receipt handle does not exist")
		return false
	}
	e.inFlight.Remove(el)
	delete(e.handles, handle)

	metrics.MessagesDeleted.WithLabelValues(e.name).Inc()
	return true
}

// Refresh returns every in-flight message older than the visibility timeout to
// the tail of the queue, oldest first. In-flight is ordered by pull time, so
// the scan stops at the first message still within its window.
func (e *Engine) Refresh() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	timeout := e.visibilityTimeoutLocked()
	now := e.clock.Now()

	requeued := 0
	for el := e.inFlight.Front(); el != nil; el = e.inFlight.Front() {
		ent := el.Value.(*entry)
		if now.Sub(ent.pulledAt) < timeout {
			break
		}
		e.inFlight.Remove(el)
		delete(e.handles, ent.msg.ReceiptHandle)
		ent.msg.ReceiptHandle = ""
		ent.pulledAt = time.Time{}
		e.available.PushBack(ent)
		requeued++
	}

	if requeued > 0 {
		metrics.MessagesRequeued.WithLabelValues(e.name).Add(float64(requeued))
		e.log.Debug().Int("requeued", requeued).Dur("visibility_timeout", timeout).Msg("returned expired messages")
	}
}

func (e *Engine) visibilityTimeoutLocked() time.Duration {
	secs, err := strconv.Atoi(e.attributes[VisibilityTimeout])
	if err != nil {
		secs = DefaultVisibilityTimeout
	}
	return time.Duration(secs) * time.Second
}

// Purge drops every message and invalidates all outstanding receipt handles.
// It reports false only once the engine has been released.
func (e *Engine) Purge() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	dropped := e.available.Len() + e.inFlight.Len()
	e.available.Init()
	e.inFlight.Init()
	clear(e.handles)

	metrics.QueuePurges.WithLabelValues(e.name).Inc()
	e.log.Info().Int("dropped", dropped).Msg("queue purged")
	return true
}

// ApproximateNumberOfMessages counts available messages only.
func (e *Engine) ApproximateNumberOfMessages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available.Len()
}

func (e *Engine) NumberOfInflightMessages() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight.Len()
}

// SetAttributes applies each entry on its own. Unrecognized names are skipped;
// a recognized name with an invalid value stores that attribute's default.
func (e *Engine) SetAttributes(attrs map[string]string) {
	if len(attrs) == 0 {
		e.log.Warn().Msg("no attributes to set")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	for name, value := range attrs {
		if !e.rules.IsRecognized(name) {
			e.reject(metrics.ReasonUnknownAttribute)
			e.log.Error().Str("attribute", name).Msg("invalid attribute name")
			continue
		}
		if err := e.rules.Validate(name, value); err != nil {
			def := e.rules.DefaultValueFor(name)
			e.attributes[name] = def
			e.reject(metrics.ReasonInvalidAttribute)
			e.log.Error().Err(err).
				Str("attribute", name).
				Str("value", value).
				Str("default", def).
				Msg("invalid attribute value, default stored")
			continue
		}
		e.attributes[name] = value
	}
}

// Attributes returns a copy of the stored attributes.
func (e *Engine) Attributes() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]string, len(e.attributes))
	for k, v := range e.attributes {
		out[k] = v
	}
	return out
}

// ReleaseResources closes the engine and stops the sweeper. After it returns
// no further refresh runs are started and every mutating call is refused.
// Safe to call more than once.
func (e *Engine) ReleaseResources() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.sweeper.Stop()
}

// Closed reports whether ReleaseResources has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) reject(reason string) {
	metrics.Rejections.WithLabelValues(e.name, reason).Inc()
}
