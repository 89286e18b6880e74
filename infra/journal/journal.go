package journal

import (
	"encoding/binary"
	"os"
	"sync"
	"time"
)

// Frame layout:
//
//	[type:1][seq:8][time:8][len:4][payload][crc:4]
//
// The CRC covers header+payload. A torn tail frame fails either the
// length read or the checksum and ends replay at the last good record.
const headerSize = 1 + 8 + 8 + 4

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
}

// Journal serializes concurrent appenders internally; per-instrument
// write order is the caller's responsibility.
type Journal struct {
	mu         sync.Mutex
	dir        string
	segSize    int64
	segFor     time.Duration
	current    *segment
	segIndex   int
	lastRotate time.Time
}

// Open creates or resumes the journal. Appends continue in the
// highest existing segment so indexes stay dense across restarts.
func Open(cfg Config) (*Journal, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	idx := 0
	if files, err := listSegments(cfg.Dir); err != nil {
		return nil, err
	} else if len(files) > 0 {
		idx = segmentIndex(files[len(files)-1])
	}

	seg, err := openSegment(cfg.Dir, idx)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segFor:     cfg.SegmentDuration,
		current:    seg,
		segIndex:   idx,
		lastRotate: time.Now(),
	}, nil
}

func (j *Journal) Append(r *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	payloadLen := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(payloadLen)+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[headerSize:], r.Data)

	crc := checksum(buf[:headerSize+int(payloadLen)])
	binary.BigEndian.PutUint32(buf[headerSize+int(payloadLen):], crc)

	if err := j.current.append(buf); err != nil {
		return err
	}

	if j.shouldRotate() {
		return j.rotate()
	}
	return nil
}

// Sync forces the current segment to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.sync()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.current.close()
}

func (j *Journal) shouldRotate() bool {
	if j.current.offset >= j.segSize {
		return true
	}
	return j.segFor > 0 && time.Since(j.lastRotate) >= j.segFor
}

func (j *Journal) rotate() error {
	if err := j.current.sync(); err != nil {
		return err
	}
	_ = j.current.close()
	j.segIndex++

	seg, err := openSegment(j.dir, j.segIndex)
	if err != nil {
		return err
	}
	j.current = seg
	j.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes whole segments whose records are all covered
// by a snapshot at seq. The active segment is never removed.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	active := j.segIndex
	j.mu.Unlock()

	files, err := listSegments(j.dir)
	if err != nil {
		return err
	}
	for _, path := range files {
		if segmentIndex(path) == active {
			continue
		}
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq <= seq {
			_ = os.Remove(path)
		}
	}
	return nil
}
