package dao

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms-agent/model"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client, "test:", time.Hour)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStoreLoadUnknown(t *testing.T) {
	s, _ := newTestRedisStore(t)
	cc, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, cc)
}

func TestRedisStoreHistory(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	for _, in := range []model.Intent{model.IntentHelp, model.IntentSearchCourses, model.IntentSearchUsers} {
		rec := model.RequestRecord{
			Intent:   in,
			Resolved: map[string][]model.Entity{"course": {{Kind: model.EntityCourse, ID: "7", Name: "Excel Basics"}}},
		}
		require.NoError(t, s.AppendRequest(ctx, "s1", rec, 2))
	}

	cc, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cc.PreviousRequests, 2)
	assert.Equal(t, model.IntentSearchCourses, cc.PreviousRequests[0].Intent)
	assert.Equal(t, "Excel Basics", cc.LastOfKind(model.EntityCourse)[0].Name)
	assert.True(t, mr.TTL("test:s1:history") > 0)
}

func TestRedisStorePendingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.PutPending(ctx, "s1", pendingFor(now, 5*time.Minute)))

	cc, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, cc.PendingConfirmation)
	assert.Equal(t, model.IntentUnenrollUsers, cc.PendingConfirmation.Intent)

	p, err := s.TakePending(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "act-1", p.ActionID)
	assert.False(t, mr.Exists("test:s1:pending"))

	again, err := s.TakePending(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestRedisStorePendingExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.PutPending(ctx, "s1", pendingFor(now, time.Minute)))
	mr.FastForward(2 * time.Minute)

	// Past ExpiresAt the record is kept for the retention window.
	p, err := s.PeekPending(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.Expired(now.Add(2*time.Minute)))

	mr.FastForward(ExpiredRetention)
	p, err = s.PeekPending(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRedisStoreSkipsRecordPastRetention(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	stale := pendingFor(now.Add(-ExpiredRetention-time.Minute), time.Second)
	require.NoError(t, s.PutPending(ctx, "s1", stale))
	assert.False(t, mr.Exists("test:s1:pending"))
}

func TestRedisStoreRejectsPendingWithoutID(t *testing.T) {
	s, _ := newTestRedisStore(t)
	p := pendingFor(time.Now(), time.Minute)
	p.ActionID = ""
	assert.ErrorIs(t, s.PutPending(context.Background(), "s1", p), ErrInvalidSession)
}

func TestRedisStoreConcurrentTake(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)
	require.NoError(t, s.PutPending(ctx, "s1", pendingFor(time.Now(), time.Minute)))

	var got atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p, err := s.TakePending(ctx, "s1"); err == nil && p != nil {
				got.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), got.Load())
}
