package dispatch

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowdan/framework/pkg/framework/event"
)

// DeadLetter is an event that could not be handled, kept in wire form.
type DeadLetter struct {
	ID       string
	Source   string // subscription ID or relay channel
	Name     string
	Payload  []byte
	Err      string
	Attempts int
	FailedAt time.Time

	ParkReason string
	ParkedAt   time.Time
}

// DeadLetterConfig configures a dead-letter queue.
type DeadLetterConfig struct {
	// MaxSize limits the number of queued letters. Parked letters do not count.
	// Default: 10000
	MaxSize int

	// MaxAttempts is how many failed deliveries a letter may accumulate
	// before it is parked.
	// Default: 5
	MaxAttempts int

	// OnPark is called when a letter is parked.
	OnPark func(DeadLetter)
}

// DefaultDeadLetterConfig provides reasonable defaults.
var DefaultDeadLetterConfig = DeadLetterConfig{
	MaxSize:     10000,
	MaxAttempts: 5,
}

// DeadLetterStats provides statistics about a dead-letter queue.
type DeadLetterStats struct {
	QueueSize   int   // Current queue size
	ParkedSize  int   // Current parked size
	Enqueued    int64 // Total letters added
	Redelivered int64 // Total successful redeliveries
	Parked      int64 // Total letters parked
}

// DeadLetters holds failed deliveries for redelivery and parks letters that
// keep failing or can never be restored.
//
// Queued letters are redelivered oldest first.
type DeadLetters struct {
	mu     sync.Mutex
	queue  []*DeadLetter
	parked []*DeadLetter
	cfg    DeadLetterConfig
	stats  DeadLetterStats
	now    func() time.Time
}

// NewDeadLetters creates an in-memory dead-letter queue.
func NewDeadLetters(cfg DeadLetterConfig) *DeadLetters {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultDeadLetterConfig.MaxSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultDeadLetterConfig.MaxAttempts
	}
	return &DeadLetters{cfg: cfg, now: time.Now}
}

func (d *DeadLetters) letter(source, name string, payload []byte, msg string) *DeadLetter {
	return &DeadLetter{
		ID:       uuid.New().String(),
		Source:   source,
		Name:     name,
		Payload:  slices.Clone(payload),
		Err:      msg,
		Attempts: 1,
		FailedAt: d.now(),
	}
}

// Add queues a failed delivery.
func (d *DeadLetters) Add(source, name string, payload []byte, err error) (string, error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) >= d.cfg.MaxSize {
		return "", ErrDeadLettersFull
	}

	l := d.letter(source, name, payload, msg)
	d.queue = append(d.queue, l)
	d.stats.Enqueued++
	return l.ID, nil
}

// Park stores a payload that must not be redelivered, such as one the
// decoder refused.
func (d *DeadLetters) Park(source, name string, payload []byte, reason string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	l := d.letter(source, name, payload, reason)
	d.parkLocked(l, reason)
	return l.ID
}

// parkLocked must be called with d.mu held.
func (d *DeadLetters) parkLocked(l *DeadLetter, reason string) {
	l.ParkReason = reason
	l.ParkedAt = d.now()
	d.parked = append(d.parked, l)
	d.stats.Parked++
	if d.cfg.OnPark != nil {
		d.cfg.OnPark(*l)
	}
}

// Redeliver restores up to limit queued letters and hands each to l.
// A limit of 0 or less takes every queued letter.
//
// Letters l accepts are dropped. Letters it fails are queued again with one
// more attempt, or parked once MaxAttempts is reached. Letters that cannot
// be restored are parked at once. Redeliver returns how many letters l
// accepted; it stops early, requeueing what is left, when ctx ends.
func (d *DeadLetters) Redeliver(ctx context.Context, l Listener, limit int) (int, error) {
	if l == nil {
		return 0, event.ErrNullArgument
	}

	d.mu.Lock()
	n := len(d.queue)
	if limit > 0 && limit < n {
		n = limit
	}
	batch := slices.Clone(d.queue[:n])
	d.queue = slices.Clone(d.queue[n:])
	d.mu.Unlock()

	redelivered := 0
	for i, letter := range batch {
		if err := ctx.Err(); err != nil {
			d.requeue(batch[i:])
			return redelivered, err
		}

		evt, err := event.Decode(letter.Payload)
		if err != nil {
			d.mu.Lock()
			letter.Err = err.Error()
			d.parkLocked(letter, "undecodable payload")
			d.mu.Unlock()
			continue
		}

		if err := l.Handle(ctx, evt); err != nil {
			d.mu.Lock()
			letter.Attempts++
			letter.Err = err.Error()
			letter.FailedAt = d.now()
			if letter.Attempts >= d.cfg.MaxAttempts {
				d.parkLocked(letter, "max attempts exceeded")
			} else {
				d.queue = append(d.queue, letter)
			}
			d.mu.Unlock()
			continue
		}

		redelivered++
		d.mu.Lock()
		d.stats.Redelivered++
		d.mu.Unlock()
	}
	return redelivered, nil
}

func (d *DeadLetters) requeue(letters []*DeadLetter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(slices.Clone(letters), d.queue...)
}

// Recover moves a parked letter back to the queue with its attempts reset.
func (d *DeadLetters) Recover(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.IndexFunc(d.parked, func(l *DeadLetter) bool { return l.ID == id })
	if i < 0 {
		return ErrDeadLetterNotFound
	}

	l := d.parked[i]
	d.parked = slices.Delete(d.parked, i, i+1)
	l.Attempts = 0
	l.ParkReason = ""
	l.ParkedAt = time.Time{}
	d.queue = append(d.queue, l)
	return nil
}

// Delete permanently removes a parked letter.
func (d *DeadLetters) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.IndexFunc(d.parked, func(l *DeadLetter) bool { return l.ID == id })
	if i < 0 {
		return ErrDeadLetterNotFound
	}
	d.parked = slices.Delete(d.parked, i, i+1)
	return nil
}

// Queued returns copies of the queued letters, oldest first.
func (d *DeadLetters) Queued() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return snapshot(d.queue)
}

// Parked returns copies of the parked letters, oldest first.
func (d *DeadLetters) Parked() []DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return snapshot(d.parked)
}

func snapshot(letters []*DeadLetter) []DeadLetter {
	out := make([]DeadLetter, 0, len(letters))
	for _, l := range letters {
		c := *l
		c.Payload = slices.Clone(l.Payload)
		out = append(out, c)
	}
	return out
}

// Stats returns queue statistics.
func (d *DeadLetters) Stats() DeadLetterStats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.QueueSize = len(d.queue)
	s.ParkedSize = len(d.parked)
	return s
}
