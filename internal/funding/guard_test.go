package funding

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	g := NewRedisGuard(client, time.Minute)

	require.NoError(t, g.Acquire(ctx, "k"))

	err := g.Acquire(ctx, "k")
	var dup *DuplicateSubmissionError
	require.ErrorAs(t, err, &dup)
	assert.Empty(t, dup.TxHash)

	require.NoError(t, g.Complete(ctx, "k", "0xfeed"))
	assert.Equal(t, time.Minute, mr.TTL(guardPrefix+"k"))

	err = g.Acquire(ctx, "k")
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "0xfeed", dup.TxHash)

	require.NoError(t, g.Release(ctx, "k"))
	assert.NoError(t, g.Acquire(ctx, "k"))
}

func TestRedisGuard_Expires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	g := NewRedisGuard(client, time.Minute)

	require.NoError(t, g.Acquire(ctx, "k"))
	mr.FastForward(2 * time.Minute)
	assert.NoError(t, g.Acquire(ctx, "k"))
}

func TestRedisJournal_ListsOldestFirst(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	j := NewRedisJournal(client)
	now := time.Now().UTC()

	require.NoError(t, j.Record(ctx, JournalEntry{TxHash: "0x2", CreatedAt: now}))
	require.NoError(t, j.Record(ctx, JournalEntry{TxHash: "0x1", CreatedAt: now.Add(-time.Minute)}))

	entries, err := j.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0x1", entries[0].TxHash)

	require.NoError(t, j.Remove(ctx, "0x1"))
	entries, err = j.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRedisJournal_QuarantinesCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	j := NewRedisJournal(client)

	require.NoError(t, j.Record(ctx, JournalEntry{TxHash: "0xgood", CreatedAt: time.Now().UTC()}))
	mr.HSet(journalKey, "0xbad", "{not json")

	entries, err := j.List(ctx)
	var corrupt *CorruptEntriesError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, []string{"0xbad"}, corrupt.TxHashes)
	require.Len(t, entries, 1)
	assert.Equal(t, "0xgood", entries[0].TxHash)

	assert.Equal(t, "{not json", mr.HGet(deadJournalKey, "0xbad"))
	assert.Empty(t, mr.HGet(journalKey, "0xbad"))

	entries, err = j.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
