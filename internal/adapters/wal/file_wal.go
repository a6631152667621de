package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ghalamif/PulseFlow/internal/domain"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// entry format: [8 bytes id][4 bytes len][4 bytes crc32][len bytes msgpack]
const recordHeaderLen = 16

var ErrClosed = errors.New("wal: closed")

type record struct {
	Millis int64   `msgpack:"t"`
	BPM    float64 `msgpack:"b"`
}

// FileWAL is an append-only log of samples awaiting the history store.
// Committed ids are tracked in a sidecar meta file; TruncateCommitted
// compacts them out of the log.
type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
	closed    bool
}

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	wal := &FileWAL{
		path:     filepath.Join(dir, "wal.log"),
		metaPath: filepath.Join(dir, "wal.meta"),
	}
	if err := wal.open(); err != nil {
		return nil, err
	}
	if err := wal.bootstrap(); err != nil {
		wal.file.Close()
		return nil, err
	}
	return wal, nil
}

func (w *FileWAL) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.writer = bufio.NewWriterSize(f, 1<<16)
	return nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	return nil
}

// scanExisting walks the log to find the last id and cuts off a torn or
// corrupt tail left by a crash mid-append.
func (w *FileWAL) scanExisting() error {
	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	var (
		offset int64
		lastID ports.WALEntryID
	)
	err = readRecords(bufio.NewReader(rf), func(id ports.WALEntryID, _ []byte, n int64) error {
		offset += n
		lastID = id
		return nil
	})
	if err != nil && !errors.Is(err, errTornRecord) {
		return err
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

var errTornRecord = errors.New("wal: torn record")

// readRecords calls fn for every intact record. It stops with errTornRecord
// at the first short or checksum-failing record.
func readRecords(r io.Reader, fn func(id ports.WALEntryID, body []byte, n int64) error) error {
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornRecord
			}
			return fmt.Errorf("wal read header: %w", err)
		}
		id := ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])
		sum := binary.BigEndian.Uint32(hdr[12:16])

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornRecord
			}
			return fmt.Errorf("wal read body: %w", err)
		}
		if crc32.ChecksumIEEE(body) != sum {
			return errTornRecord
		}
		if err := fn(id, body, int64(recordHeaderLen)+int64(length)); err != nil {
			return err
		}
	}
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(s domain.Sample) (ports.WALEntryID, error) {
	body, err := msgpack.Marshal(record{Millis: s.Time.UnixMilli(), BPM: s.BPM})
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}

	id := w.nextID + 1
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(body))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(body); err != nil {
		return 0, err
	}

	// group commit: the buffer reaches disk on Iterate, Commit or Close
	w.nextID = id
	w.sizeBytes += int64(len(hdr) + len(body))
	return id, nil
}

// Iterate replays every record with id >= from in append order.
func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, s domain.Sample) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = readRecords(bufio.NewReader(f), func(id ports.WALEntryID, body []byte, _ int64) error {
		if id < from {
			return nil
		}
		var rec record
		if err := msgpack.Unmarshal(body, &rec); err != nil {
			return fmt.Errorf("corrupt WAL entry %d: %w", id, err)
		}
		return fn(id, domain.Sample{Time: time.UnixMilli(rec.Millis).UTC(), BPM: rec.BPM})
	})
	if errors.Is(err, errTornRecord) {
		return fmt.Errorf("corrupt WAL: %w", err)
	}
	return err
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if upto > w.committed {
		w.committed = upto
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log without the committed prefix.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.committed == 0 {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	tmpPath := w.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	src, err := os.Open(w.path)
	if err != nil {
		tmp.Close()
		return err
	}

	var kept int64
	out := bufio.NewWriter(tmp)
	err = readRecords(bufio.NewReader(src), func(id ports.WALEntryID, body []byte, n int64) error {
		if id <= w.committed {
			return nil
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
		binary.BigEndian.PutUint32(hdr[12:16], crc32.ChecksumIEEE(body))
		if _, err := out.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := out.Write(body); err != nil {
			return err
		}
		kept += n
		return nil
	})
	src.Close()
	if err == nil {
		err = out.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("wal compact: %w", err)
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	if err := w.open(); err != nil {
		return err
	}
	w.sizeBytes = kept
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.writer.Flush()
	if serr := w.file.Sync(); err == nil {
		err = serr
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	tmp := w.metaPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, w.metaPath)
}

var _ ports.WAL = (*FileWAL)(nil)
