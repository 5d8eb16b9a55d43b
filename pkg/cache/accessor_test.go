package cache

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/trustkit/pkg/errors"
)

type profile struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

type recorderStub struct {
	mu     sync.Mutex
	hits   int
	misses int
	loads  map[string]int
}

func (r *recorderStub) CacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *recorderStub) CacheMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func (r *recorderStub) CacheLoad(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loads == nil {
		r.loads = map[string]int{}
	}
	r.loads[result]++
}

type AccessorTestSuite struct {
	suite.Suite
	mr       *miniredis.Miniredis
	client   *redis.Client
	recorder *recorderStub
	accessor *Accessor
	ctx      context.Context
}

func (s *AccessorTestSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.recorder = &recorderStub{}
	s.ctx = context.Background()

	a, err := NewAccessor(NewRedisStore(s.client, "test:"), WithRecorder(s.recorder), WithLockShards(4))
	s.Require().NoError(err)
	s.accessor = a
}

func (s *AccessorTestSuite) TearDownTest() {
	s.client.Close()
}

func TestAccessorTestSuite(t *testing.T) {
	suite.Run(t, new(AccessorTestSuite))
}

func (s *AccessorTestSuite) TestColdKeyPopulatesStoreWithTTL() {
	calls := 0
	v, err := GetOrCompute(s.ctx, s.accessor, "user:1", func(context.Context) (profile, bool, error) {
		calls++
		return profile{Name: "ann", Level: 3}, true, nil
	})
	s.Require().NoError(err)
	s.Equal(profile{Name: "ann", Level: 3}, v)
	s.Equal(1, calls)

	s.True(s.mr.Exists("test:user:1"))
	s.Equal(time.Hour, s.mr.TTL("test:user:1"))
	s.Equal(1, s.recorder.misses)
	s.Equal(1, s.recorder.loads[LoadOK])
}

func (s *AccessorTestSuite) TestHitNeverCallsSupplier() {
	s.Require().NoError(Set(s.ctx, s.accessor, "user:2", profile{Name: "bob"}, time.Minute))

	v, err := GetOrCompute(s.ctx, s.accessor, "user:2", func(context.Context) (profile, bool, error) {
		s.FailNow("supplier must not run on a hit")
		return profile{}, false, nil
	})
	s.Require().NoError(err)
	s.Equal("bob", v.Name)
	s.Equal(1, s.recorder.hits)
	s.Equal(0, s.recorder.misses)
}

func (s *AccessorTestSuite) TestAbsentValueIsNotCached() {
	calls := 0
	supplier := func(context.Context) (profile, bool, error) {
		calls++
		return profile{}, false, nil
	}

	_, err := GetOrCompute(s.ctx, s.accessor, "user:3", supplier)
	s.Require().Error(err)
	s.True(errors.IsNotFoundError(err))
	s.False(s.mr.Exists("test:user:3"))

	_, err = GetOrCompute(s.ctx, s.accessor, "user:3", supplier)
	s.True(errors.IsNotFoundError(err))
	s.Equal(2, calls)
	s.Equal(2, s.recorder.loads[LoadEmpty])
}

func (s *AccessorTestSuite) TestSupplierErrorPropagatesUnmodified() {
	boom := stderrors.New("backend down")
	_, err := GetOrCompute(s.ctx, s.accessor, "user:4", func(context.Context) (int, bool, error) {
		return 0, false, boom
	})
	s.Same(boom, err)
	s.False(s.mr.Exists("test:user:4"))
	s.Equal(1, s.recorder.loads[LoadError])
}

func (s *AccessorTestSuite) TestEmptyKeyIsRejected() {
	_, err := GetOrCompute(s.ctx, s.accessor, "", func(context.Context) (int, bool, error) {
		return 1, true, nil
	})
	s.True(errors.IsInvalidArgumentError(err))

	_, err = GetOrComputeList(s.ctx, s.accessor, "", func(context.Context) ([]int, error) {
		return []int{1}, nil
	})
	s.True(errors.IsInvalidArgumentError(err))

	s.True(errors.IsInvalidArgumentError(s.accessor.Delete(s.ctx, "")))
	_, err = s.accessor.Exists(s.ctx, "")
	s.True(errors.IsInvalidArgumentError(err))
}

func (s *AccessorTestSuite) TestUndecodableValueIsSerializationError() {
	s.Require().NoError(s.mr.Set("test:user:5", "not json"))
	_, err := GetOrCompute(s.ctx, s.accessor, "user:5", func(context.Context) (profile, bool, error) {
		return profile{}, true, nil
	})
	s.True(errors.IsSerializationError(err))
}

func (s *AccessorTestSuite) TestStoreErrorPropagates() {
	s.mr.SetError("ERR backend unavailable")
	_, err := GetOrCompute(s.ctx, s.accessor, "user:6", func(context.Context) (int, bool, error) {
		return 1, true, nil
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "backend unavailable")
	s.False(errors.IsNotFoundError(err))
}

func (s *AccessorTestSuite) TestListColdAndHit() {
	calls := 0
	supplier := func(context.Context) ([]profile, error) {
		calls++
		return []profile{{Name: "a"}, {Name: "b"}}, nil
	}

	list, err := GetOrComputeList(s.ctx, s.accessor, "team:1", supplier)
	s.Require().NoError(err)
	s.Equal([]profile{{Name: "a"}, {Name: "b"}}, list)

	list, err = GetOrComputeList(s.ctx, s.accessor, "team:1", supplier)
	s.Require().NoError(err)
	s.Len(list, 2)
	s.Equal(1, calls)
	s.Equal(time.Hour, s.mr.TTL("test:team:1"))
}

func (s *AccessorTestSuite) TestEmptyListIsAbsent() {
	_, err := GetOrComputeList(s.ctx, s.accessor, "team:2", func(context.Context) ([]string, error) {
		return nil, nil
	})
	s.True(errors.IsNotFoundError(err))
	s.False(s.mr.Exists("test:team:2"))
}

func (s *AccessorTestSuite) TestSetListReplacesAndEmptyDeletes() {
	s.Require().NoError(SetList(s.ctx, s.accessor, "tags", []string{"x", "y"}, 0))
	s.Require().NoError(SetList(s.ctx, s.accessor, "tags", []string{"z"}, 0))

	list, ok, err := GetList[string](s.ctx, s.accessor, "tags")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal([]string{"z"}, list)

	s.Require().NoError(SetList[string](s.ctx, s.accessor, "tags", nil, 0))
	exists, err := s.accessor.Exists(s.ctx, "tags")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *AccessorTestSuite) TestPlainHelpers() {
	_, ok, err := Get[profile](s.ctx, s.accessor, "p")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(Set(s.ctx, s.accessor, "p", profile{Name: "cy", Level: 9}, 0))
	v, ok, err := Get[profile](s.ctx, s.accessor, "p")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(9, v.Level)
	s.Equal(time.Duration(0), s.mr.TTL("test:p"))

	s.Require().NoError(s.accessor.Delete(s.ctx, "p"))
	exists, err := s.accessor.Exists(s.ctx, "p")
	s.Require().NoError(err)
	s.False(exists)
}

type plainStore struct{ Store }

func TestAccessor_Flush(t *testing.T) {
	ctx := context.Background()
	a, err := NewAccessor(NewMemoryStore(time.Minute))
	require.NoError(t, err)
	require.NoError(t, Set(ctx, a, "k", 1, 0))
	require.NoError(t, a.Flush(ctx))
	exists, err := a.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)

	b, err := NewAccessor(plainStore{NewMemoryStore(time.Minute)})
	require.NoError(t, err)
	assert.True(t, errors.IsInvalidArgumentError(b.Flush(ctx)))
}

func TestNewAccessor_Validation(t *testing.T) {
	_, err := NewAccessor(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidArgumentError(err))

	a, err := NewAccessor(NewMemoryStore(time.Minute), WithTTL(5*time.Minute), WithTTL(-1))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, a.TTL())

	_, err = GetOrCompute[int](context.Background(), a, "k", nil)
	assert.True(t, errors.IsInvalidArgumentError(err))
}

func TestGetOrCompute_ConcurrentColdCallersShareOneLoad(t *testing.T) {
	for name, store := range map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore(time.Minute) },
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return NewRedisStore(client, "")
		},
	} {
		t.Run(name, func(t *testing.T) {
			a, err := NewAccessor(store(t))
			require.NoError(t, err)

			var calls atomic.Int32
			release := make(chan struct{})
			supplier := func(context.Context) (string, bool, error) {
				calls.Add(1)
				<-release
				return "fresh", true, nil
			}

			const callers = 32
			results := make([]string, callers)
			g, ctx := errgroup.WithContext(context.Background())
			for i := 0; i < callers; i++ {
				g.Go(func() error {
					v, err := GetOrCompute(ctx, a, "shared", supplier)
					results[i] = v
					return err
				})
			}
			time.Sleep(20 * time.Millisecond)
			close(release)

			require.NoError(t, g.Wait())
			assert.Equal(t, int32(1), calls.Load())
			for _, v := range results {
				assert.Equal(t, "fresh", v)
			}
			assert.Equal(t, 0, a.locks.size())
		})
	}
}

func TestGetOrCompute_NestedDifferentKeys(t *testing.T) {
	// A single shard forces both keys onto the same shard.
	a, err := NewAccessor(NewMemoryStore(time.Minute), WithLockShards(1))
	require.NoError(t, err)

	ctx := context.Background()
	v, err := GetOrCompute(ctx, a, "outer", func(ctx context.Context) (int, bool, error) {
		inner, err := GetOrCompute(ctx, a, "inner", func(context.Context) (int, bool, error) {
			return 2, true, nil
		})
		return inner * 10, err == nil, err
	})
	require.NoError(t, err)
	assert.Equal(t, 20, v)
}
