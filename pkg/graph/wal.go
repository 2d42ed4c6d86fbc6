package graph

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"
)

const (
	walFileName    = "graph.wal"
	walHeaderSize  = 9 // length(4) + crc32(4) + flags(1)
	walMaxRecord   = 64 << 20
	walFlagSnappy  = 1 << 0
	filePermission = 0644
	dirPermission  = 0755
)

// commitRecord is the unit of durability: everything one transaction changed.
type commitRecord struct {
	TxID         uint64                      `json:"tx"`
	Nodes        []*Node                     `json:"nodes,omitempty"`
	Updates      map[uint64]map[string]Value `json:"updates,omitempty"`
	DeletedNodes []uint64                    `json:"deleted_nodes,omitempty"`
	Edges        []*Edge                     `json:"edges,omitempty"`
	DeletedEdges []uint64                    `json:"deleted_edges,omitempty"`
	NextNodeID   uint64                      `json:"next_node"`
	NextEdgeID   uint64                      `json:"next_edge"`
}

func (r *commitRecord) empty() bool {
	return len(r.Nodes) == 0 && len(r.Updates) == 0 && len(r.DeletedNodes) == 0 &&
		len(r.Edges) == 0 && len(r.DeletedEdges) == 0
}

// walFile is the subset of *os.File the log writes through
type walFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// wal is an append-only log of commit records, one framed record per commit.
// size is the offset of the end of the last complete record.
type wal struct {
	mu       sync.Mutex
	file     walFile
	size     int64
	broken   error
	compress bool
	sync     bool
	records  uint64
}

var errWALBroken = errors.New("WAL is unusable after a failed append")

func walPath(dir string) string {
	return filepath.Join(dir, walFileName)
}

func openWAL(dir string, settings Settings) (*wal, error) {
	file, err := os.OpenFile(walPath(dir), os.O_WRONLY|os.O_CREATE|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat WAL: %w", err)
	}
	return &wal{
		file:     file,
		size:     info.Size(),
		compress: settings.WALCompression,
		sync:     settings.WALSync,
	}, nil
}

func encodeRecord(rec *commitRecord, compress bool) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commit record: %w", err)
	}

	var flags byte
	if compress {
		payload = snappy.Encode(nil, payload)
		flags |= walFlagSnappy
	}

	frame := make([]byte, walHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(payload))
	frame[8] = flags
	copy(frame[walHeaderSize:], payload)
	return frame, nil
}

func (w *wal) append(rec *commitRecord) error {
	frame, err := encodeRecord(rec, w.compress)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ErrDatabaseShutdown
	}
	if w.broken != nil {
		return fmt.Errorf("%w: %v", errWALBroken, w.broken)
	}
	if _, err := w.file.Write(frame); err != nil {
		return w.discardTail(fmt.Errorf("failed to append WAL record: %w", err))
	}
	if w.sync {
		if err := w.file.Sync(); err != nil {
			return w.discardTail(fmt.Errorf("failed to sync WAL: %w", err))
		}
	}
	w.size += int64(len(frame))
	w.records++
	return nil
}

// discardTail cuts the log back to the last complete record so a failed
// append can never strand later records behind a torn frame. If that is
// impossible the log refuses further appends. Callers hold w.mu.
func (w *wal) discardTail(cause error) error {
	if err := w.file.Truncate(w.size); err != nil {
		w.broken = fmt.Errorf("truncate to %d: %w", w.size, err)
		return fmt.Errorf("%w; %w", cause, w.broken)
	}
	return cause
}

func (w *wal) count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

func (w *wal) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// replayWAL feeds every intact record to apply and returns the number of
// records replayed. A torn or corrupt tail is truncated away so that later
// appends start on a record boundary.
func replayWAL(dir string, truncate bool, apply func(*commitRecord)) (uint64, error) {
	path := walPath(dir)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to open WAL for replay: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	header := make([]byte, walHeaderSize)
	var offset int64
	var replayed uint64

	for {
		rec, n, err := readRecord(reader, header)
		if err == io.EOF {
			return replayed, nil
		}
		if err != nil {
			if !errors.Is(err, ErrCorruptWAL) {
				return replayed, err
			}
			if truncate {
				if terr := os.Truncate(path, offset); terr != nil {
					return replayed, fmt.Errorf("failed to truncate torn WAL tail: %w", terr)
				}
			}
			return replayed, nil
		}
		apply(rec)
		offset += n
		replayed++
	}
}

func readRecord(r io.Reader, header []byte) (*commitRecord, int64, error) {
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return nil, 0, fmt.Errorf("%w: short header", ErrCorruptWAL)
		}
		return nil, 0, err
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	checksum := binary.LittleEndian.Uint32(header[4:8])
	flags := header[8]
	if length > walMaxRecord {
		return nil, 0, fmt.Errorf("%w: record length %d", ErrCorruptWAL, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, 0, fmt.Errorf("%w: short payload", ErrCorruptWAL)
		}
		return nil, 0, err
	}
	if crc32.ChecksumIEEE(payload) != checksum {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrCorruptWAL)
	}

	if flags&walFlagSnappy != 0 {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrCorruptWAL, err)
		}
		payload = decoded
	}

	var rec commitRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptWAL, err)
	}
	return &rec, int64(walHeaderSize) + int64(length), nil
}
