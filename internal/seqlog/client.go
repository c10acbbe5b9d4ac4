// =============================================================================
// LOG CLIENT - THE REGISTRY'S VIEW OF THE REPLICATED LOG
// =============================================================================
//
// The sequencer never talks to storage directly. It sees three operations on
// one topic-partition:
//
//   Append     - append a batch, learn the base offset the log assigned
//   FetchRange - read entries in [from, to) by offset
//   EndOffset  - the next offset the log would assign
//
// That is the entire contract the compare-and-land protocol needs: the landed
// offset from Append is what gets compared against the prediction, and
// FetchRange/EndOffset drive catch-up replay. Replication, retention and
// compaction live behind this interface and are none of the registry's
// business.
//
// LocalClient backs the interface with an on-disk partition log in this
// process. Remote deployments would implement Client against a broker; tests
// implement it with fakes that inject interleaved foreign writes.
//
// =============================================================================

package seqlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrUnknownPartition means the topic-partition doesn't exist.
	ErrUnknownPartition = errors.New("unknown topic or partition")

	// ErrLogClosed means the log has been shut down.
	ErrLogClosed = errors.New("log is closed")
)

// TopicPartition names one partition of one topic.
type TopicPartition struct {
	Topic     string
	Partition int
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s/%d", tp.Topic, tp.Partition)
}

// Record is an entry to be appended: key bytes plus value bytes.
// A nil Value is a tombstone.
type Record struct {
	Key   []byte
	Value []byte
}

// Entry is a stored record at a specific offset. Value is nil for
// tombstones.
type Entry struct {
	Offset int64
	Key    []byte
	Value  []byte
}

// Client is the registry's boundary to the replicated log.
type Client interface {
	// Append appends the batch atomically and returns the offset the first
	// record landed at.
	Append(ctx context.Context, tp TopicPartition, batch []Record) (int64, error)

	// FetchRange returns entries with offsets in [from, to), ascending.
	FetchRange(ctx context.Context, tp TopicPartition, from, to int64) ([]Entry, error)

	// EndOffset returns the next offset the partition would assign
	// (0 for an empty partition).
	EndOffset(ctx context.Context, tp TopicPartition) (int64, error)
}

// =============================================================================
// LOCAL CLIENT
// =============================================================================

// LocalClient serves the Client interface from partition logs on local disk.
type LocalClient struct {
	mu   sync.RWMutex
	dir  string
	logs map[TopicPartition]*Log
}

// NewLocalClient creates a client rooted at dir. Partitions must be created
// (or reopened) explicitly before use.
func NewLocalClient(dir string) *LocalClient {
	return &LocalClient{
		dir:  dir,
		logs: make(map[TopicPartition]*Log),
	}
}

// CreatePartition opens (creating if needed) the log for a topic-partition.
func (c *LocalClient) CreatePartition(tp TopicPartition) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.logs[tp]; ok {
		return nil
	}
	l, err := Open(partitionDir(c.dir, tp))
	if err != nil {
		return fmt.Errorf("open partition %s: %w", tp, err)
	}
	c.logs[tp] = l
	return nil
}

func (c *LocalClient) log(tp TopicPartition) (*Log, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	l, ok := c.logs[tp]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPartition, tp)
	}
	return l, nil
}

// Append implements Client.
func (c *LocalClient) Append(ctx context.Context, tp TopicPartition, batch []Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l, err := c.log(tp)
	if err != nil {
		return 0, err
	}
	return l.Append(batch)
}

// FetchRange implements Client.
func (c *LocalClient) FetchRange(ctx context.Context, tp TopicPartition, from, to int64) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, err := c.log(tp)
	if err != nil {
		return nil, err
	}
	return l.ReadRange(from, to)
}

// EndOffset implements Client.
func (c *LocalClient) EndOffset(ctx context.Context, tp TopicPartition) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l, err := c.log(tp)
	if err != nil {
		return 0, err
	}
	return l.NextOffset(), nil
}

// Close closes every open partition log.
func (c *LocalClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for tp, l := range c.logs {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", tp, err)
		}
	}
	c.logs = make(map[TopicPartition]*Log)
	return firstErr
}

func partitionDir(base string, tp TopicPartition) string {
	return fmt.Sprintf("%s/%s/%d", base, tp.Topic, tp.Partition)
}
