package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ansm0403/Shopping-mall/internal/auth/domain"
)

// Sink persists audit entries. The Postgres repository implements it.
type Sink interface {
	InsertAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
}

// Logger forwards security events to a sink from a background worker.
// Log never blocks the request path: when the buffer is full the event is
// dropped and counted. A failed insert is logged and forgotten — audit
// writes must never break the operation that produced them.
type Logger struct {
	sink      Sink
	ch        chan domain.AuditEntry
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewLogger(sink Sink, bufferSize int) *Logger {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	l := &Logger{
		sink: sink,
		ch:   make(chan domain.AuditEntry, bufferSize),
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.run()

	return l
}

func (l *Logger) run() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.ch:
			l.write(entry)
		case <-l.done:
			// Drain whatever is buffered before exiting.
			for {
				select {
				case entry := <-l.ch:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(entry domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.sink.InsertAuditEntry(ctx, &entry); err != nil {
		log.Printf("warn: failed to save audit log (action=%s): %v", entry.Action, err)
	}
}

// Log enqueues the entry without blocking. The request ctx is accepted for
// interface symmetry but delivery outlives the request.
func (l *Logger) Log(_ context.Context, entry domain.AuditEntry) {
	if l == nil || l.closed.Load() {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	select {
	case l.ch <- entry:
	case <-l.done:
	default:
		l.dropped.Add(1)
	}
}

// Close stops the worker after draining the buffer.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
		l.wg.Wait()
	})
}

// Dropped reports how many events were discarded due to a full buffer.
func (l *Logger) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}
