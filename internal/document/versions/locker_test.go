package versions

import (
	"bytes"
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/draftledger/draftledger/backend/go-services/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesPerKey(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "doc")
			if err != nil {
				t.Error(err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)
	require.Equal(t, 0, l.held())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	a, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer a()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	b()
	b() // second call is a no-op
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "doc")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "doc")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	require.Equal(t, 0, l.held())
}

func TestLocalLockerHandsOffToWaiter(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "doc")
	require.NoError(t, err)

	got := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		next, err := l.Lock(ctx, "doc")
		if err == nil {
			next()
		}
		got <- err
	}()

	time.Sleep(10 * time.Millisecond)
	unlock()
	unlock() // no-op, must not release the waiter's hold
	require.NoError(t, <-got)
	require.Equal(t, 0, l.held())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestRedisLockerExclusive(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "", time.Minute, 50*time.Millisecond)

	unlock, err := l.Lock(context.Background(), "d1")
	require.NoError(t, err)
	require.True(t, mr.Exists("doclock:d1"))

	_, err = l.Lock(context.Background(), "d1")
	require.ErrorIs(t, err, ErrLockTimeout)

	other, err := l.Lock(context.Background(), "d2")
	require.NoError(t, err)
	other()

	unlock()
	require.False(t, mr.Exists("doclock:d1"))

	again, err := l.Lock(context.Background(), "d1")
	require.NoError(t, err)
	again()
}

func TestRedisLockerExpiredHolderCannotReleaseNewLease(t *testing.T) {
	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "lk:", time.Second, 50*time.Millisecond)

	stale, err := l.Lock(context.Background(), "d1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	fresh, err := l.Lock(context.Background(), "d1")
	require.NoError(t, err)

	stale()
	require.True(t, mr.Exists("lk:d1"), "stale unlock must leave the new lease alone")
	fresh()
	require.False(t, mr.Exists("lk:d1"))
}

func TestRedisLockerCancelledWhileWaiting(t *testing.T) {
	_, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "", time.Minute, time.Minute)
	unlock, err := l.Lock(context.Background(), "d1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "d1")
	require.Error(t, err)
}

func TestRedisLockerLogsFailedRelease(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(os.Stdout)

	mr, rdb := newRedis(t)
	l := NewRedisLocker(rdb, "", time.Minute, 50*time.Millisecond)
	unlock, err := l.Lock(context.Background(), "d1")
	require.NoError(t, err)

	mr.Close()
	unlock()
	require.Contains(t, buf.String(), "release document lock failed")
	require.Contains(t, buf.String(), "key=doclock:d1")
}
