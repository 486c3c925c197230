package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"crowdfund/portal-backend/internal/projects"
)

const (
	journalKey     = "crowdfund:journal"
	deadJournalKey = "crowdfund:journal:dead"
)

// CorruptEntriesError lists journal entries that could not be decoded. They
// have been moved to the dead-letter hash; the entries returned alongside it
// are still valid.
type CorruptEntriesError struct {
	TxHashes []string
}

func (e *CorruptEntriesError) Error() string {
	return fmt.Sprintf("%d corrupt journal entries moved to %s: %s", len(e.TxHashes), deadJournalKey, strings.Join(e.TxHashes, ", "))
}

// JournalEntry is a signed creation transaction whose record is not stored yet
type JournalEntry struct {
	TxHash    string            `json:"txHash"`
	RawTx     string            `json:"rawTx,omitempty"`
	Project   *projects.Project `json:"project"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Journal keeps creation transactions between signing and persistence
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
	Remove(ctx context.Context, txHash string) error
	List(ctx context.Context) ([]JournalEntry, error)
}

type redisJournal struct {
	client redis.Cmdable
}

// NewRedisJournal stores entries as fields of one Redis hash keyed by tx hash
func NewRedisJournal(client redis.Cmdable) Journal {
	return &redisJournal{client: client}
}

func (j *redisJournal) Record(ctx context.Context, entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}
	if err := j.client.HSet(ctx, journalKey, entry.TxHash, data).Err(); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	return nil
}

func (j *redisJournal) Remove(ctx context.Context, txHash string) error {
	if err := j.client.HDel(ctx, journalKey, txHash).Err(); err != nil {
		return fmt.Errorf("failed to remove journal entry: %w", err)
	}
	return nil
}

// List returns every decodable entry, oldest first. Entries that fail to
// decode are moved to the dead-letter hash and reported in a
// *CorruptEntriesError returned together with the valid entries.
func (j *redisJournal) List(ctx context.Context) ([]JournalEntry, error) {
	raw, err := j.client.HGetAll(ctx, journalKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	entries := make([]JournalEntry, 0, len(raw))
	var corrupt []string
	for hash, data := range raw {
		var entry JournalEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			if err := j.quarantine(ctx, hash, data); err != nil {
				return nil, err
			}
			corrupt = append(corrupt, hash)
			continue
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].CreatedAt.Before(entries[b].CreatedAt)
	})
	if len(corrupt) > 0 {
		sort.Strings(corrupt)
		return entries, &CorruptEntriesError{TxHashes: corrupt}
	}
	return entries, nil
}

func (j *redisJournal) quarantine(ctx context.Context, hash, data string) error {
	pipe := j.client.TxPipeline()
	pipe.HSet(ctx, deadJournalKey, hash, data)
	pipe.HDel(ctx, journalKey, hash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move corrupt journal entry %s: %w", hash, err)
	}
	return nil
}
