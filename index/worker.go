package index

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/beandb/fanout/encoding"
)

const (
	// Default batch size for reading ops per poll cycle
	DefaultBatchSize = 100
	// Default interval between poll cycles
	DefaultPollInterval = 100 * time.Millisecond
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
	// Maximum retry attempts before giving up on a publish
	DefaultMaxRetries = 100
)

// WorkerConfig configures a queued-op delivery worker.
type WorkerConfig struct {
	Name            string        // Consumer name (for cursor tracking)
	Queue           *QueueLog     // Queue log to read from
	Sink            Sink          // Destination sink
	TopicPrefix     string        // Topic prefix (e.g. "fanout.index")
	BatchSize       int           // Ops per poll cycle
	PollInterval    time.Duration // Poll interval
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum retry attempts (0 = default)
}

// Worker polls the QueueLog and delivers queued index ops to a sink.
// Delivery is at-least-once: ops are published first and the cursor advanced
// after, so a crash between the two redelivers on restart.
type Worker struct {
	config      WorkerConfig
	cursor      atomic.Uint64
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	halted      atomic.Bool  // delivery gave up after exhausting retries
	lastErr     atomic.Value // string; reason delivery halted
	lifecycleMu sync.Mutex   // Protects Start/Stop lifecycle operations
}

// WorkerStats is the worker's liveness snapshot for the admin surface. A
// halted worker exhausted its delivery retries and stopped polling; queued
// ops accumulate until the process restarts.
type WorkerStats struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Halted    bool   `json:"halted"`
	Cursor    uint64 `json:"cursor"`
	LastError string `json:"last_error,omitempty"`
}

// NewWorker creates a delivery worker positioned at its stored cursor.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Queue == nil {
		return nil, fmt.Errorf("queue log is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 0 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}

	cursor, err := config.Queue.GetCursor(config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	w := &Worker{
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	w.cursor.Store(cursor)
	return w, nil
}

// Stats returns the worker's current liveness snapshot.
func (w *Worker) Stats() WorkerStats {
	s := WorkerStats{
		Name:    w.config.Name,
		Running: w.running.Load(),
		Halted:  w.halted.Load(),
		Cursor:  w.cursor.Load(),
	}
	if v, ok := w.lastErr.Load().(string); ok {
		s.LastError = v
	}
	return s
}

// Start starts the worker goroutine.
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return // Already running
	}

	w.running.Store(true)
	w.halted.Store(false)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().
		Str("worker", w.config.Name).
		Uint64("cursor", w.cursor.Load()).
		Msg("Starting index delivery worker")

	go w.pollLoop()
}

// Stop stops the worker gracefully.
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return // Not running
	}

	log.Info().Str("worker", w.config.Name).Msg("Stopping index delivery worker")

	close(w.stopCh)
	<-w.doneCh
	w.running.Store(false)
}

func (w *Worker) pollLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		default:
			ops, err := w.config.Queue.ReadFrom(w.cursor.Load(), w.config.BatchSize)
			if err != nil {
				log.Error().
					Err(err).
					Str("worker", w.config.Name).
					Uint64("cursor", w.cursor.Load()).
					Msg("Failed to read from index queue log")
				w.sleep(w.config.PollInterval)
				continue
			}

			if len(ops) == 0 {
				w.sleep(w.config.PollInterval)
				continue
			}

			for _, op := range ops {
				if err := w.deliverOp(op); err != nil {
					select {
					case <-w.stopCh:
						// A stop interrupted the retry loop; not a halt.
						return
					default:
					}
					// Halted, not stopped: the flag shows on the admin
					// surface so an operator can see delivery is dead.
					w.lastErr.Store(err.Error())
					w.halted.Store(true)
					log.Error().
						Err(err).
						Str("worker", w.config.Name).
						Uint64("seq", op.SeqNum).
						Msg("Index delivery halted, queued ops accumulate until restart")
					return
				}
				w.cursor.Store(op.SeqNum)
			}
		}
	}
}

// deliverOp publishes one op and advances the cursor.
func (w *Worker) deliverOp(op Op) error {
	data, err := encoding.Marshal(&op)
	if err != nil {
		return fmt.Errorf("failed to encode index op: %w", err)
	}

	topic := w.buildTopic(op.BeanType)
	key := fmt.Sprintf("%v", op.ID)

	if err := w.publishWithRetry(topic, key, data); err != nil {
		return err
	}

	// If cursor advance fails after a successful publish, the op may be
	// redelivered on restart (at-least-once delivery guarantee).
	if err := w.config.Queue.AdvanceCursor(w.config.Name, op.SeqNum); err != nil {
		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Uint64("seq", op.SeqNum).
			Msg("Failed to advance cursor after successful publish - op may be redelivered")
	}

	return nil
}

func (w *Worker) buildTopic(beanType string) string {
	name := strings.ToLower(beanType)
	if w.config.TopicPrefix == "" {
		return name
	}
	return fmt.Sprintf("%s.%s", w.config.TopicPrefix, name)
}

// publishWithRetry publishes data with exponential backoff retry. Returns an
// error if max retries are exhausted or the worker is stopped.
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		err := w.config.Sink.Publish(topic, key, data)
		if err == nil {
			return nil
		}

		attempts++

		if w.config.MaxRetries > 0 && attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish index op, retrying")

		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// sleep sleeps for the given duration, checking stopCh. Returns true if the
// sleep completed, false if stopped.
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
