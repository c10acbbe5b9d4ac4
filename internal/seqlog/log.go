// =============================================================================
// PARTITION LOG - APPEND-ONLY STORAGE FOR ONE PARTITION
// =============================================================================
//
// A single append-only file of framed entries plus an in-memory offset index.
// Offsets are dense and sequential starting at 0; the entry at offset N is
// the N-th frame in the file.
//
// Frame Format:
//
// ┌──────────────────────────────────────────────────────────────────────┐
// │ Magic │ Version │ Flags │ CRC32 │ Offset │ KeyLen │ ValueLen │       │
// │ (2B)  │  (1B)   │ (1B)  │ (4B)  │  (8B)  │  (4B)  │   (4B)   │ K,V   │
// └──────────────────────────────────────────────────────────────────────┘
//
// Magic: "GR" (0x47 0x52) - identifies a goregistry frame
// CRC32: Castagnoli over everything after the CRC field
// Flags: bit 0 = tombstone (value absent; ValueLen is 0 and ignored)
//
// RECOVERY:
// Open scans the file frame by frame, verifying magic and CRC, and truncates
// at the first bad frame. A torn tail from a crash mid-append is therefore
// dropped, which is safe: an append whose frame didn't fully land was never
// acknowledged.
//
// No segments, no time index: one registry partition sees registry-mutation
// volumes (human-driven schema changes), not message-queue volumes, so a
// single file with a full in-memory index is the right size of machinery.
//
// =============================================================================

package seqlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	magicByte1 = 0x47 // 'G'
	magicByte2 = 0x52 // 'R'

	// frameVersion is the current frame format version.
	frameVersion = 1

	// frameHeaderSize is Magic(2)+Version(1)+Flags(1)+CRC(4)+Offset(8)+
	// KeyLen(4)+ValueLen(4).
	frameHeaderSize = 24

	// flagTombstone marks a frame whose value is absent.
	flagTombstone = 1 << 0

	// maxFrameSize bounds a single entry (key + value + header).
	maxFrameSize = 16 * 1024 * 1024

	logFileName = "partition.log"
)

var (
	// ErrCorruptFrame means a frame failed magic or CRC verification.
	ErrCorruptFrame = errors.New("corrupt log frame")

	// ErrOffsetOutOfRange means a read referenced an offset the log doesn't
	// hold.
	ErrOffsetOutOfRange = errors.New("offset out of range")
)

// Log is a single-partition append-only log.
type Log struct {
	mu sync.Mutex

	dir  string
	file *os.File

	// positions[i] is the file position of the frame at offset i.
	positions []int64

	// size is the current valid length of the file.
	size int64

	closed bool
}

// Open opens the partition log in dir, creating it if needed, and recovers
// the offset index by scanning existing frames.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition directory: %w", err)
	}

	path := filepath.Join(dir, logFileName)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Log{dir: dir, file: file}
	if err := l.recover(); err != nil {
		file.Close()
		return nil, err
	}
	return l, nil
}

// recover scans the file, rebuilding the index and truncating a torn tail.
func (l *Log) recover() error {
	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	fileSize := info.Size()

	var pos int64
	header := make([]byte, frameHeaderSize)
	for pos+frameHeaderSize <= fileSize {
		if _, err := l.file.ReadAt(header, pos); err != nil {
			break
		}
		length, _, err := verifyHeader(header, int64(len(l.positions)))
		if err != nil {
			break
		}
		if pos+int64(length) > fileSize {
			break // torn tail
		}
		body := make([]byte, length-frameHeaderSize)
		if _, err := l.file.ReadAt(body, pos+frameHeaderSize); err != nil {
			break
		}
		if !verifyCRC(header, body) {
			break
		}
		l.positions = append(l.positions, pos)
		pos += int64(length)
	}

	if pos < fileSize {
		if err := l.file.Truncate(pos); err != nil {
			return fmt.Errorf("truncate torn tail: %w", err)
		}
	}
	l.size = pos
	if _, err := l.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	return nil
}

// Append writes the batch atomically and returns the base offset: the offset
// the first record landed at. Entries within a batch get consecutive
// offsets.
func (l *Log) Append(batch []Record) (int64, error) {
	if len(batch) == 0 {
		return 0, errors.New("empty batch")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return 0, ErrLogClosed
	}

	base := int64(len(l.positions))
	var buf []byte
	positions := make([]int64, 0, len(batch))
	pos := l.size
	for i, rec := range batch {
		frame := encodeFrame(base+int64(i), rec)
		if len(frame) > maxFrameSize {
			return 0, fmt.Errorf("record at batch index %d exceeds max frame size", i)
		}
		positions = append(positions, pos)
		pos += int64(len(frame))
		buf = append(buf, frame...)
	}

	if _, err := l.file.Write(buf); err != nil {
		// Partial write: roll the file back so the index stays truthful.
		l.file.Truncate(l.size)
		l.file.Seek(l.size, io.SeekStart)
		return 0, fmt.Errorf("append batch: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync log: %w", err)
	}

	l.positions = append(l.positions, positions...)
	l.size = pos
	return base, nil
}

// Read returns the entry at one offset.
func (l *Log) Read(offset int64) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked(offset)
}

// ReadRange returns entries with offsets in [from, to), ascending. The range
// is clamped to what the log holds.
func (l *Log) ReadRange(from, to int64) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrLogClosed
	}
	if from < 0 {
		from = 0
	}
	if end := int64(len(l.positions)); to > end {
		to = end
	}
	if from >= to {
		return nil, nil
	}

	out := make([]Entry, 0, to-from)
	for off := from; off < to; off++ {
		e, err := l.readLocked(off)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *Log) readLocked(offset int64) (Entry, error) {
	if l.closed {
		return Entry{}, ErrLogClosed
	}
	if offset < 0 || offset >= int64(len(l.positions)) {
		return Entry{}, fmt.Errorf("%w: %d (log holds [0, %d))", ErrOffsetOutOfRange, offset, len(l.positions))
	}

	pos := l.positions[offset]
	header := make([]byte, frameHeaderSize)
	if _, err := l.file.ReadAt(header, pos); err != nil {
		return Entry{}, fmt.Errorf("read frame header at offset %d: %w", offset, err)
	}
	length, tombstone, err := verifyHeader(header, offset)
	if err != nil {
		return Entry{}, err
	}
	body := make([]byte, length-frameHeaderSize)
	if _, err := l.file.ReadAt(body, pos+frameHeaderSize); err != nil {
		return Entry{}, fmt.Errorf("read frame body at offset %d: %w", offset, err)
	}
	if !verifyCRC(header, body) {
		return Entry{}, fmt.Errorf("%w: CRC mismatch at offset %d", ErrCorruptFrame, offset)
	}

	keyLen := binary.BigEndian.Uint32(header[16:20])
	e := Entry{Offset: offset, Key: body[:keyLen]}
	if !tombstone {
		e.Value = body[keyLen:]
	}
	return e, nil
}

// NextOffset returns the offset the next append would land at.
func (l *Log) NextOffset() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.positions))
}

// Close syncs and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync on close: %w", err)
	}
	return l.file.Close()
}

// Dir returns the partition directory.
func (l *Log) Dir() string { return l.dir }

// =============================================================================
// FRAME ENCODING
// =============================================================================

func encodeFrame(offset int64, rec Record) []byte {
	var flags uint8
	valueLen := 0
	if rec.Value == nil {
		flags |= flagTombstone
	} else {
		valueLen = len(rec.Value)
	}

	frame := make([]byte, frameHeaderSize, frameHeaderSize+len(rec.Key)+valueLen)
	frame[0] = magicByte1
	frame[1] = magicByte2
	frame[2] = frameVersion
	frame[3] = flags
	// CRC at [4:8] filled below
	binary.BigEndian.PutUint64(frame[8:16], uint64(offset))
	binary.BigEndian.PutUint32(frame[16:20], uint32(len(rec.Key)))
	binary.BigEndian.PutUint32(frame[20:24], uint32(valueLen))
	frame = append(frame, rec.Key...)
	frame = append(frame, rec.Value...)

	crc := crc32.Checksum(frame[8:], castagnoliTable)
	binary.BigEndian.PutUint32(frame[4:8], crc)
	return frame
}

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// verifyHeader checks magic, version and offset, and returns the full frame
// length plus the tombstone flag.
func verifyHeader(header []byte, wantOffset int64) (int, bool, error) {
	if header[0] != magicByte1 || header[1] != magicByte2 {
		return 0, false, fmt.Errorf("%w: bad magic", ErrCorruptFrame)
	}
	if header[2] != frameVersion {
		return 0, false, fmt.Errorf("%w: unsupported frame version %d", ErrCorruptFrame, header[2])
	}
	offset := int64(binary.BigEndian.Uint64(header[8:16]))
	if offset != wantOffset {
		return 0, false, fmt.Errorf("%w: frame offset %d where %d expected", ErrCorruptFrame, offset, wantOffset)
	}
	keyLen := binary.BigEndian.Uint32(header[16:20])
	valueLen := binary.BigEndian.Uint32(header[20:24])
	length := frameHeaderSize + int(keyLen) + int(valueLen)
	if length > maxFrameSize {
		return 0, false, fmt.Errorf("%w: frame length %d exceeds limit", ErrCorruptFrame, length)
	}
	return length, header[3]&flagTombstone != 0, nil
}

// verifyCRC checks the stored CRC against header tail + body.
func verifyCRC(header, body []byte) bool {
	stored := binary.BigEndian.Uint32(header[4:8])
	crc := crc32.Checksum(header[8:], castagnoliTable)
	crc = crc32.Update(crc, castagnoliTable, body)
	return crc == stored
}
