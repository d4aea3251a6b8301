package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aridsondez/sqs-lite-mem/pkg/client"
)

const visibilityTimeoutAttr = "VisibilityTimeout"

// HandlerFunc processes a message and returns an error if processing failed.
// Returning nil means success (message will be deleted).
// Returning an error means failure (message returns to the queue once its
// visibility timeout passes).
type HandlerFunc func(ctx context.Context, msg *Message) error

// Message is a pulled message plus the queue it came from.
type Message struct {
	client.Message
	Queue string
}

// Worker manages message processing from queues
type Worker struct {
	client     *client.Client
	handlers   map[string]HandlerFunc
	pollDelay  time.Duration
	batchSize  int
	visibility time.Duration
	log        zerolog.Logger
}

// Config for creating a new worker
type Config struct {
	BaseURL    string          // SQS Lite server URL
	PollDelay  time.Duration   // Time between polling attempts (default: 1s)
	BatchSize  int             // Max messages pulled per poll (default: 10)
	Visibility time.Duration   // Used when a queue's VisibilityTimeout cannot be read (default: 30s)
	Logger     *zerolog.Logger // default: no logging
}

// New creates a new Worker with the given configuration
func New(cfg Config) *Worker {
	if cfg.PollDelay == 0 {
		cfg.PollDelay = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.Visibility == 0 {
		cfg.Visibility = 30 * time.Second
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "worker").Logger()
	}

	return &Worker{
		client:     client.NewClient(cfg.BaseURL),
		handlers:   make(map[string]HandlerFunc),
		pollDelay:  cfg.PollDelay,
		batchSize:  cfg.BatchSize,
		visibility: cfg.Visibility,
		log:        log,
	}
}

// Handle registers a handler function for a specific queue
func (w *Worker) Handle(queue string, handler HandlerFunc) {
	w.handlers[queue] = handler
	w.log.Info().Str("queue", queue).Msg("registered handler")
}

// Run polls every registered queue and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return errors.New("no handlers registered")
	}

	w.log.Info().Int("queues", len(w.handlers)).Msg("worker starting")

	g, ctx := errgroup.WithContext(ctx)
	for queue, handler := range w.handlers {
		g.Go(func() error {
			w.pollQueue(ctx, queue, handler)
			return nil
		})
	}
	err := g.Wait()
	w.log.Info().Msg("worker stopped")
	return err
}

// pollQueue continuously polls a queue and processes messages
func (w *Worker) pollQueue(ctx context.Context, queue string, handler HandlerFunc) {
	ticker := time.NewTicker(w.pollDelay)
	defer ticker.Stop()

	log := w.log.With().Str("queue", queue).Logger()
	budget := w.handlerBudget(ctx, queue, log)
	log.Debug().Dur("handler_budget", budget).Msg("started polling")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopped polling")
			return

		case <-ticker.C:
			for i := 0; i < w.batchSize; i++ {
				msg, err := w.client.Pull(ctx, queue)
				if err != nil {
					if ctx.Err() == nil {
						log.Error().Err(err).Msg("pull failed")
					}
					break
				}
				if msg == nil {
					break
				}
				w.processMessage(ctx, &Message{Message: *msg, Queue: queue}, handler, budget)
			}
		}
	}
}

// handlerBudget is 90% of the queue's VisibilityTimeout, so a handler is cut
// off before its message becomes visible again. Zero means no deadline.
func (w *Worker) handlerBudget(ctx context.Context, queue string, log zerolog.Logger) time.Duration {
	visibility := w.visibility
	attrs, err := w.client.GetAttributes(ctx, queue)
	if err != nil {
		log.Warn().Err(err).Dur("visibility", visibility).Msg("could not read queue attributes, using configured visibility")
	} else if secs, err := strconv.Atoi(attrs[visibilityTimeoutAttr]); err == nil {
		visibility = time.Duration(secs) * time.Second
	}
	return visibility - visibility/10
}

// processMessage handles a single message with error recovery
func (w *Worker) processMessage(ctx context.Context, msg *Message, handler HandlerFunc, budget time.Duration) {
	log := w.log.With().Str("queue", msg.Queue).Str("message_id", msg.ID).Logger()

	handlerCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	if err := safeCall(handlerCtx, msg, handler); err != nil {
		log.Error().Err(err).Msg("handler failed, message left for redelivery")
		return
	}

	ok, err := w.client.Delete(ctx, msg.Queue, msg.Receipt)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("delete failed")
	case !ok:
		log.Warn().Msg("receipt expired before delete, message will be redelivered")
	default:
		log.Debug().Msg("message processed")
	}
}

func safeCall(ctx context.Context, msg *Message, handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, msg)
}
