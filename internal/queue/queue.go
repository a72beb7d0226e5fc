// Package queue serializes editor-originated work onto a single logical
// thread of control. All state-mutating operations (validation, configuration
// changes, watched-file changes) pass through one FIFO queue; the queue is the
// mutual-exclusion primitive of the server, there are no other locks around
// the caches it feeds.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrCancelled is returned for requests whose context was cancelled
	// before the handler ran.
	ErrCancelled = errors.New("queue: request cancelled")
	// ErrStale is returned for versioned requests whose document moved on
	// while the item was waiting.
	ErrStale = errors.New("queue: document version is stale")
	// ErrClosed is returned for requests still pending when the queue shuts down.
	ErrClosed = errors.New("queue: closed")
)

// Kind identifies a message type. Handlers are registered per kind.
type Kind string

// NotificationHandler processes a queued notification.
type NotificationHandler func(ctx context.Context, payload any) error

// RequestHandler processes a queued request and produces its result.
type RequestHandler func(ctx context.Context, payload any) (any, error)

// VersionProvider reports the live version of the document identified by key.
// ok is false when the document is no longer open.
type VersionProvider func(key string) (int32, bool)

type outcome struct {
	result any
	err    error
}

type item struct {
	kind      Kind
	payload   any
	key       string
	version   int32
	versioned bool

	// request-only
	ctx   context.Context
	reply chan outcome
}

// Queue is a strict-FIFO message queue with document-version staleness
// guards. Exactly one item runs at a time; an item runs to completion
// (including any blocking I/O inside its handler) before the next is
// considered.
type Queue struct {
	mu     sync.Mutex
	items  []item
	wake   chan struct{}
	closed bool

	notifications map[Kind]NotificationHandler
	requests      map[Kind]RequestHandler

	version VersionProvider
	logger  *zap.Logger
}

// New constructs a queue. version reports live document versions for the
// staleness guard; it must be safe to call from the drain goroutine.
func New(version VersionProvider, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		wake:          make(chan struct{}, 1),
		notifications: make(map[Kind]NotificationHandler),
		requests:      make(map[Kind]RequestHandler),
		version:       version,
		logger:        logger,
	}
}

// OnNotification registers the handler for a notification kind.
// Registering a kind twice is a programming error.
func (q *Queue) OnNotification(kind Kind, h NotificationHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.notifications[kind]; dup {
		panic(fmt.Sprintf("queue: notification handler for %q registered twice", kind))
	}
	q.notifications[kind] = h
}

// OnRequest registers the handler for a request kind.
func (q *Queue) OnRequest(kind Kind, h RequestHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, dup := q.requests[kind]; dup {
		panic(fmt.Sprintf("queue: request handler for %q registered twice", kind))
	}
	q.requests[kind] = h
}

// Enqueue appends a notification that is not tied to a document version.
func (q *Queue) Enqueue(kind Kind, payload any) {
	q.push(item{kind: kind, payload: payload})
}

// EnqueueVersioned appends a notification tied to a document version. If the
// document identified by key is at a different version by the time the item
// is dequeued, the item is dropped without side effects.
func (q *Queue) EnqueueVersioned(kind Kind, payload any, key string, version int32) {
	q.push(item{kind: kind, payload: payload, key: key, version: version, versioned: true})
}

// EnqueueRequest appends a request and blocks until its handler settles, the
// item is rejected as stale/cancelled, or the queue closes. Pass an empty key
// for requests that are not version-scoped.
func (q *Queue) EnqueueRequest(ctx context.Context, kind Kind, payload any, key string, version int32) (any, error) {
	it := item{
		kind:    kind,
		payload: payload,
		key:     key,
		version: version,
		ctx:     ctx,
		reply:   make(chan outcome, 1),
	}
	it.versioned = key != ""
	if !q.push(it) {
		return nil, ErrClosed
	}
	select {
	case out := <-it.reply:
		return out.result, out.err
	case <-ctx.Done():
		// The handler may still run; the dequeue-time check rejects it
		// if it has not started yet.
		return nil, ErrCancelled
	}
}

// Len reports the number of queued, not yet executed items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Run drains the queue until ctx is done. It processes exactly one item per
// iteration so interleaved enqueues keep their arrival order.
func (q *Queue) Run(ctx context.Context) {
	for {
		it, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				q.shutdown()
				return
			case <-q.wake:
				continue
			}
		}
		select {
		case <-ctx.Done():
			q.reject(it, ErrClosed)
			q.shutdown()
			return
		default:
		}
		q.process(ctx, it)
	}
}

func (q *Queue) push(it item) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, it)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *Queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	return it, true
}

func (q *Queue) process(ctx context.Context, it item) {
	if it.reply != nil {
		q.processRequest(ctx, it)
		return
	}
	q.processNotification(ctx, it)
}

func (q *Queue) processRequest(ctx context.Context, it item) {
	if it.ctx != nil && it.ctx.Err() != nil {
		q.reject(it, ErrCancelled)
		return
	}
	if it.versioned && !q.versionMatches(it) {
		q.reject(it, ErrStale)
		return
	}
	h, ok := q.requests[it.kind]
	if !ok {
		panic(fmt.Sprintf("queue: no request handler for %q", it.kind))
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("request handler panicked",
				zap.String("kind", string(it.kind)), zap.Any("panic", r))
			q.reject(it, fmt.Errorf("queue: handler for %q panicked: %v", it.kind, r))
		}
	}()
	hctx := ctx
	if it.ctx != nil {
		hctx = it.ctx
	}
	result, err := h(hctx, it.payload)
	it.reply <- outcome{result: result, err: err}
}

func (q *Queue) processNotification(ctx context.Context, it item) {
	if it.versioned && !q.versionMatches(it) {
		q.logger.Debug("dropping stale notification",
			zap.String("kind", string(it.kind)),
			zap.String("key", it.key),
			zap.Int32("version", it.version))
		return
	}
	h, ok := q.notifications[it.kind]
	if !ok {
		panic(fmt.Sprintf("queue: no notification handler for %q", it.kind))
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("notification handler panicked",
				zap.String("kind", string(it.kind)), zap.Any("panic", r))
		}
	}()
	if err := h(ctx, it.payload); err != nil {
		q.logger.Warn("notification handler failed",
			zap.String("kind", string(it.kind)), zap.Error(err))
	}
}

func (q *Queue) versionMatches(it item) bool {
	if q.version == nil {
		return true
	}
	live, ok := q.version(it.key)
	return ok && live == it.version
}

func (q *Queue) reject(it item, err error) {
	if it.reply != nil {
		it.reply <- outcome{err: err}
	}
}

func (q *Queue) shutdown() {
	q.mu.Lock()
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()
	for _, it := range pending {
		q.reject(it, ErrClosed)
	}
}
