package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var errBadChecksum = errors.New("journal: checksum mismatch")

// maxPayload bounds the on-disk length field before allocation. Real
// records are small JSON payloads; anything larger is corruption and
// ends the segment like a bad checksum does.
const maxPayload = 1 << 20

type ReplayHandler func(*Record) error

// Replay feeds every intact record to fn in sequence order and
// returns the last sequence seen. A corrupt or torn frame ends the
// containing segment silently: everything after it was never
// acknowledged, so dropping it is correct.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return lastSeq, err
		}

		for {
			rec, err := readRecord(f)
			if err != nil {
				if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, errBadChecksum) {
					break
				}
				_ = f.Close()
				return lastSeq, err
			}

			if rec.Seq <= lastSeq {
				_ = f.Close()
				return lastSeq, fmt.Errorf("journal: non-monotonic seq %d after %d in %s",
					rec.Seq, lastSeq, path)
			}
			lastSeq = rec.Seq

			if err := fn(rec); err != nil {
				_ = f.Close()
				return lastSeq, err
			}
		}
		_ = f.Close()
	}
	return lastSeq, nil
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	payloadLen := binary.BigEndian.Uint32(header[17:21])
	if payloadLen > maxPayload {
		return nil, errBadChecksum
	}
	body := make([]byte, int(payloadLen)+4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	payload := body[:payloadLen]
	crc := binary.BigEndian.Uint32(body[payloadLen:])
	if checksum(append(header, payload...)) != crc {
		return nil, errBadChecksum
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}

// maxSeqInSegment scans one segment for its highest sequence.
// Truncation uses it to decide whether a snapshot covers the file.
func maxSeqInSegment(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var max uint64
	for {
		header := make([]byte, headerSize)
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return max, nil
			}
			return max, err
		}

		payloadLen := binary.BigEndian.Uint32(header[17:21])
		if payloadLen > maxPayload {
			return max, nil
		}
		if seq := binary.BigEndian.Uint64(header[1:9]); seq > max {
			max = seq
		}
		if _, err := f.Seek(int64(payloadLen)+4, io.SeekCurrent); err != nil {
			return max, err
		}
	}
}
