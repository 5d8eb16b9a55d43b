// Package cache implements a cache-aside accessor over an external key-value store.
//
// GetOrCompute reads a key from the store and, on a miss, runs a supplier to
// produce the value, writes it back with a fixed expiry, and returns it. Concurrent
// callers missing the same key are serialized on a per-key lock and re-read the
// store once they hold it, so at most one supplier call per key is in flight and
// every caller sees either the pre-existing value or the single fresh one.
//
// Values are stored as JSON. A list-valued variant follows the same protocol over
// the store's list operations.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/errors"
	"github.com/turtacn/trustkit/pkg/logger"
)

const tracerName = "github.com/turtacn/trustkit/pkg/cache"

// Recorder receives cache outcomes. monitoring.Metrics implements it.
type Recorder interface {
	CacheHit()
	CacheMiss()
	CacheLoad(result string)
}

// Load results reported to Recorder.CacheLoad.
const (
	LoadOK    = "ok"
	LoadEmpty = "empty"
	LoadError = "error"
)

// Option customizes an Accessor.
type Option func(*Accessor)

// WithTTL sets the expiry of values written after a supplier call.
func WithTTL(ttl time.Duration) Option {
	return func(a *Accessor) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithLockShards sets the number of shards of the per-key lock table.
func WithLockShards(n int) Option {
	return func(a *Accessor) {
		if n > 0 {
			a.shards = n
		}
	}
}

// WithLogger sets the accessor logger.
func WithLogger(log logger.Logger) Option {
	return func(a *Accessor) {
		if log != nil {
			a.log = log
		}
	}
}

// WithSlowThreshold sets the supplier duration above which a warning is logged.
func WithSlowThreshold(d time.Duration) Option {
	return func(a *Accessor) {
		a.slow = d
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Accessor) {
		a.recorder = r
	}
}

// Accessor provides cache-aside reads with single-flight population per key.
// It holds no entries itself. It is safe for concurrent use.
type Accessor struct {
	store    Store
	locks    *keyLocks
	shards   int
	ttl      time.Duration
	slow     time.Duration
	log      logger.Logger
	perf     *logger.PerformanceLogger
	recorder Recorder
	tracer   trace.Tracer
}

// NewAccessor wraps store. Populated values expire after one hour unless WithTTL
// says otherwise.
func NewAccessor(store Store, opts ...Option) (*Accessor, error) {
	if store == nil {
		return nil, errors.ErrMissingRequiredParameter("store")
	}
	a := &Accessor{
		store:  store,
		shards: constants.DefaultLockShards,
		ttl:    constants.DefaultCacheTTL,
		log:    logger.NewNoopLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithComponent("cache")
	a.perf = logger.NewPerformanceLogger(a.log, a.slow)
	a.locks = newKeyLocks(a.shards)
	return a, nil
}

// TTL returns the expiry applied to populated values.
func (a *Accessor) TTL() time.Duration {
	return a.ttl
}

// Store returns the underlying store.
func (a *Accessor) Store() Store {
	return a.store
}

// GetOrCompute returns the value cached at key, or computes it with supplier.
//
// The supplier reports an absent value with ok == false, in which case nothing is
// cached and a not found error is returned. Supplier and store errors are returned
// as is.
func GetOrCompute[T any](ctx context.Context, a *Accessor, key string, supplier func(ctx context.Context) (T, bool, error)) (T, error) {
	var zero T
	if supplier == nil {
		return zero, errors.ErrMissingRequiredParameter("supplier")
	}
	return getOrLoad(ctx, a, key,
		func() (T, bool, error) { return Get[T](ctx, a, key) },
		func(v T) error { return Set(ctx, a, key, v, a.ttl) },
		supplier,
	)
}

// GetOrComputeList is the list-valued GetOrCompute. An empty supplier result counts
// as absent.
func GetOrComputeList[T any](ctx context.Context, a *Accessor, key string, supplier func(ctx context.Context) ([]T, error)) ([]T, error) {
	if supplier == nil {
		return nil, errors.ErrMissingRequiredParameter("supplier")
	}
	return getOrLoad(ctx, a, key,
		func() ([]T, bool, error) { return GetList[T](ctx, a, key) },
		func(v []T) error { return SetList(ctx, a, key, v, a.ttl) },
		func(ctx context.Context) ([]T, bool, error) {
			list, err := supplier(ctx)
			return list, len(list) > 0, err
		},
	)
}

func getOrLoad[V any](
	ctx context.Context,
	a *Accessor,
	key string,
	read func() (V, bool, error),
	write func(V) error,
	supply func(context.Context) (V, bool, error),
) (V, error) {
	var zero V
	if key == "" {
		return zero, errors.ErrMissingRequiredParameter("key")
	}

	if v, ok, err := read(); err != nil || ok {
		if ok {
			a.hit()
		}
		return v, err
	}
	a.miss()

	unlock := a.locks.lock(key)
	defer unlock()

	// Another caller may have populated the key while this one waited.
	if v, ok, err := read(); err != nil || ok {
		if ok {
			a.hit()
		}
		return v, err
	}

	v, ok, err := load(ctx, a, key, supply)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, errors.ErrNotFound(key)
	}
	if err := write(v); err != nil {
		return zero, err
	}
	return v, nil
}

// load runs supply inside a span and reports the outcome.
func load[V any](ctx context.Context, a *Accessor, key string, supply func(context.Context) (V, bool, error)) (V, bool, error) {
	ctx, span := a.tracer.Start(ctx, "cache.load", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	done := a.perf.StartOperation(ctx, "cache.load")
	v, ok, err := supply(ctx)
	done(logger.String("key", key), logger.Bool("present", ok))

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.log.Warn(ctx, "Supplier failed", logger.String("key", key), logger.Err(err))
		a.loaded(LoadError)
	case !ok:
		a.log.Debug(ctx, "Supplier returned no value", logger.String("key", key))
		a.loaded(LoadEmpty)
	default:
		a.loaded(LoadOK)
	}
	return v, ok, err
}

func (a *Accessor) hit() {
	if a.recorder != nil {
		a.recorder.CacheHit()
	}
}

func (a *Accessor) miss() {
	if a.recorder != nil {
		a.recorder.CacheMiss()
	}
}

func (a *Accessor) loaded(result string) {
	if a.recorder != nil {
		a.recorder.CacheLoad(result)
	}
}

// Set stores v at key as JSON. A ttl <= 0 stores it without expiry.
func Set[T any](ctx context.Context, a *Accessor, key string, v T, ttl time.Duration) error {
	if key == "" {
		return errors.ErrMissingRequiredParameter("key")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapError(err, constants.ErrCodeSerialization, fmt.Sprintf("cannot encode value for %q", key))
	}
	return a.store.Set(ctx, key, data, ttl)
}

// Get reads the value at key. ok is false when the key is absent.
func Get[T any](ctx context.Context, a *Accessor, key string) (v T, ok bool, err error) {
	if key == "" {
		return v, false, errors.ErrMissingRequiredParameter("key")
	}
	data, err := a.store.Get(ctx, key)
	if stderrors.Is(err, ErrMiss) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, errors.WrapError(err, constants.ErrCodeSerialization, fmt.Sprintf("cannot decode value for %q", key))
	}
	return v, true, nil
}

// SetList replaces the list at key. An empty list deletes the key.
func SetList[T any](ctx context.Context, a *Accessor, key string, list []T, ttl time.Duration) error {
	if key == "" {
		return errors.ErrMissingRequiredParameter("key")
	}
	if err := a.store.Delete(ctx, key); err != nil {
		return err
	}
	if len(list) == 0 {
		return nil
	}
	items := make([][]byte, len(list))
	for i, item := range list {
		data, err := json.Marshal(item)
		if err != nil {
			return errors.WrapError(err, constants.ErrCodeSerialization, fmt.Sprintf("cannot encode element %d for %q", i, key))
		}
		items[i] = data
	}
	return a.store.RangePushAll(ctx, key, items, ttl)
}

// GetList reads the list at key. ok is false when the key is absent or empty.
func GetList[T any](ctx context.Context, a *Accessor, key string) ([]T, bool, error) {
	if key == "" {
		return nil, false, errors.ErrMissingRequiredParameter("key")
	}
	items, err := a.store.RangeGet(ctx, key)
	if stderrors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	list := make([]T, len(items))
	for i, data := range items {
		if err := json.Unmarshal(data, &list[i]); err != nil {
			return nil, false, errors.WrapError(err, constants.ErrCodeSerialization, fmt.Sprintf("cannot decode element %d for %q", i, key))
		}
	}
	return list, len(list) > 0, nil
}

// Delete removes key.
func (a *Accessor) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.ErrMissingRequiredParameter("key")
	}
	return a.store.Delete(ctx, key)
}

// Exists reports whether key holds a value.
func (a *Accessor) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.ErrMissingRequiredParameter("key")
	}
	return a.store.Exists(ctx, key)
}

// Flush drops every entry of the underlying store. Stores that cannot flush
// report an invalid argument error.
func (a *Accessor) Flush(ctx context.Context) error {
	f, ok := a.store.(Flusher)
	if !ok {
		return errors.ErrInvalidArgument(fmt.Sprintf("store %T does not support flush", a.store))
	}
	a.log.Warn(ctx, "Flushing cache store")
	return f.Flush(ctx)
}
