package memory

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/aridsondez/sqs-lite-mem/internal/catalog"
	"github.com/aridsondez/sqs-lite-mem/internal/metrics"
	"github.com/aridsondez/sqs-lite-mem/internal/queue"
	"github.com/aridsondez/sqs-lite-mem/internal/queue/store"
)

// Ensure *Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)

var queueNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,80}$`)

var (
	availableDesc = prometheus.NewDesc(
		"sqs_queue_messages_available",
		"Messages available to pull.",
		[]string{"queue"}, nil,
	)
	inflightDesc = prometheus.NewDesc(
		"sqs_queue_messages_inflight",
		"Messages pulled and not yet deleted or expired.",
		[]string{"queue"}, nil,
	)
)

type Option func(*Store)

// WithCatalog persists queue definitions (never messages) to c.
func WithCatalog(c catalog.Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(s *Store) { s.refreshInterval = d }
}

func WithRuleSet(rs *queue.RuleSet) Option {
	return func(s *Store) { s.rules = rs }
}

// Store maps queue names to engines.
type Store struct {
	catalog         catalog.Catalog
	rules           *queue.RuleSet
	clock           clockwork.Clock
	log             zerolog.Logger
	refreshInterval time.Duration

	mu      sync.RWMutex
	queues  map[string]*queue.Engine
	pending map[string]struct{} // names held while CreateQueue writes the catalog
}

func New(opts ...Option) *Store {
	s := &Store{
		rules:           queue.DefaultRuleSet(),
		clock:           clockwork.NewRealClock(),
		log:             zerolog.Nop(),
		refreshInterval: queue.DefaultRefreshInterval,
		queues:          make(map[string]*queue.Engine),
		pending:         make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) newEngine(name string) *queue.Engine {
	return queue.NewEngine(name, s.rules,
		queue.WithClock(s.clock),
		queue.WithLogger(s.log),
		queue.WithRefreshInterval(s.refreshInterval),
	)
}

// Load recreates the queues recorded in the catalog. Names already present are left alone.
func (s *Store) Load(ctx context.Context) error {
	if s.catalog == nil {
		return nil
	}
	defs, err := s.catalog.LoadQueues(ctx)
	if err != nil {
		return fmt.Errorf("load queue catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, def := range defs {
		if _, ok := s.queues[def.Name]; ok {
			continue
		}
		if _, ok := s.pending[def.Name]; ok {
			continue
		}
		e := s.newEngine(def.Name)
		if len(def.Attributes) > 0 {
			e.SetAttributes(def.Attributes)
		}
		s.queues[def.Name] = e
		loaded++
	}
	s.log.Info().Int("queues", loaded).Msg("queue catalog loaded")
	return nil
}

func (s *Store) CreateQueue(ctx context.Context, name string, attributes map[string]string) error {
	if !queueNameRegex.MatchString(name) {
		s.log.Error().Str("queue", name).Msg("invalid queue name, failed to create queue")
		return fmt.Errorf("%w: %q", store.ErrInvalidQueueName, name)
	}

	if err := s.reserve(name); err != nil {
		return err
	}

	e := s.newEngine(name)
	if len(attributes) > 0 {
		e.SetAttributes(attributes)
	}

	// The catalog write happens outside the registry lock; the reservation
	// keeps the name taken meanwhile.
	var saveErr error
	if s.catalog != nil {
		def := catalog.QueueDefinition{Name: name, Attributes: e.Attributes()}
		saveErr = s.catalog.SaveQueue(ctx, def)
	}

	s.mu.Lock()
	delete(s.pending, name)
	if saveErr == nil {
		s.queues[name] = e
	}
	s.mu.Unlock()

	if saveErr != nil {
		e.ReleaseResources()
		s.log.Error().Err(saveErr).Str("queue", name).Msg("failed to persist queue definition")
		return fmt.Errorf("create queue %s: %w", name, saveErr)
	}
	s.log.Info().Str("queue", name).Msg("queue created")
	return nil
}

// reserve claims name for a CreateQueue in progress.
func (s *Store) reserve(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.queues[name]
	_, reserved := s.pending[name]
	if exists || reserved {
		s.log.Error().Str("queue", name).Msg("queue name already exists")
		return fmt.Errorf("%w: %s", store.ErrQueueAlreadyExists, name)
	}
	s.pending[name] = struct{}{}
	return nil
}

func (s *Store) DeleteQueue(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.queues[name]
	if ok {
		delete(s.queues, name)
	}
	s.mu.Unlock()

	if !ok {
		s.log.Error().Str("queue", name).Msg("queue name not found, failed to delete queue")
		return fmt.Errorf("%w: %q", store.ErrQueueDoesNotExist, name)
	}

	e.ReleaseResources()
	metrics.ForgetQueue(name)

	if s.catalog != nil {
		if err := s.catalog.DeleteQueue(ctx, name); err != nil {
			s.log.Error().Err(err).Str("queue", name).Msg("failed to remove queue definition")
			return fmt.Errorf("delete queue %s: %w", name, err)
		}
	}
	s.log.Info().Str("queue", name).Msg("queue deleted")
	return nil
}

func (s *Store) ListQueues(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.queues)), nil
}

// lookup resolves name or logs why it could not.
func (s *Store) lookup(name, op string) (*queue.Engine, error) {
	s.mu.RLock()
	e, ok := s.queues[name]
	s.mu.RUnlock()
	if !ok {
		s.log.Error().Str("queue", name).Str("op", op).Msg("queue name not found")
		return nil, fmt.Errorf("%s: %w: %q", op, store.ErrQueueDoesNotExist, name)
	}
	return e, nil
}

// released reports a queue deleted between lookup and the engine call.
func (s *Store) released(name, op string) error {
	s.log.Error().Str("queue", name).Str("op", op).Msg("queue deleted during call")
	return fmt.Errorf("%s: %w: %q", op, store.ErrQueueDoesNotExist, name)
}

func (s *Store) Push(ctx context.Context, queueName, body string) (string, error) {
	e, err := s.lookup(queueName, "push")
	if err != nil {
		return "", err
	}
	if body == "" {
		s.log.Error().Str("queue", queueName).Msg("message body is empty, failed to push message")
		return "", store.ErrInvalidMessageBody
	}
	id, ok := e.Push(body)
	if !ok {
		if e.Closed() {
			return "", s.released(queueName, "push")
		}
		return "", fmt.Errorf("%w: queue %s", store.ErrPushFailed, queueName)
	}
	return id, nil
}

func (s *Store) Pull(ctx context.Context, queueName string) (*queue.Message, error) {
	e, err := s.lookup(queueName, "pull")
	if err != nil {
		return nil, err
	}
	msg, ok := e.Pull()
	if !ok {
		if e.Closed() {
			return nil, s.released(queueName, "pull")
		}
		return nil, nil
	}
	return &msg, nil
}

func (s *Store) Delete(ctx context.Context, queueName, receiptHandle string) (bool, error) {
	e, err := s.lookup(queueName, "delete")
	if err != nil {
		return false, err
	}
	if e.Delete(receiptHandle) {
		return true, nil
	}
	if e.Closed() {
		return false, s.released(queueName, "delete")
	}
	return false, nil
}

func (s *Store) PurgeQueue(ctx context.Context, queueName string) (bool, error) {
	e, err := s.lookup(queueName, "purge")
	if err != nil {
		return false, err
	}
	if !e.Purge() {
		return false, s.released(queueName, "purge")
	}
	return true, nil
}

func (s *Store) GetQueueAttributes(ctx context.Context, queueName string) (map[string]string, error) {
	e, err := s.lookup(queueName, "get attributes")
	if err != nil {
		return nil, err
	}
	return e.Attributes(), nil
}

// SetQueueAttributes applies attributes to the engine, then records the
// resulting attribute map in the catalog.
func (s *Store) SetQueueAttributes(ctx context.Context, queueName string, attributes map[string]string) error {
	e, err := s.lookup(queueName, "set attributes")
	if err != nil {
		return err
	}
	e.SetAttributes(attributes)
	if e.Closed() {
		// no catalog write, or the deleted queue would come back on restart
		return s.released(queueName, "set attributes")
	}

	if s.catalog == nil || len(attributes) == 0 {
		return nil
	}
	def := catalog.QueueDefinition{Name: queueName, Attributes: e.Attributes()}
	if err := s.catalog.SaveQueue(ctx, def); err != nil {
		s.log.Error().Err(err).Str("queue", queueName).Msg("failed to persist queue attributes")
		return fmt.Errorf("set attributes %s: %w", queueName, err)
	}
	return nil
}

func (s *Store) GetApproximateNumberOfMessages(ctx context.Context, queueName string) (int, error) {
	e, err := s.lookup(queueName, "count")
	if err != nil {
		return 0, err
	}
	return e.ApproximateNumberOfMessages(), nil
}

// Close releases every engine. The catalog belongs to the caller.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, e := range s.queues {
		e.ReleaseResources()
		delete(s.queues, name)
	}
}

// Describe implements prometheus.Collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- availableDesc
	ch <- inflightDesc
}

// Collect implements prometheus.Collector by reading queue sizes at scrape time.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, e := range s.queues {
		ch <- prometheus.MustNewConstMetric(availableDesc, prometheus.GaugeValue, float64(e.ApproximateNumberOfMessages()), name)
		ch <- prometheus.MustNewConstMetric(inflightDesc, prometheus.GaugeValue, float64(e.NumberOfInflightMessages()), name)
	}
}
