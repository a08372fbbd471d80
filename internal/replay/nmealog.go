// Package replay records raw positioning receiver output and plays it back
// with the original timing, for bench runs without a sky view.
package replay

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Log format: line-oriented text.
//
//   - Blank lines ignored.
//   - Lines starting with '#' ignored.
//   - Line "START" resets the origin (next record time is relative to 0 again).
//   - Data lines are: <t_ns>,<hex>
//     where t_ns is nanoseconds since START (monotonic), and hex is one raw
//     chunk as read from the receiver, line endings included.

type Record struct {
	At   time.Duration
	Data []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{})
			continue
		}

		tsStr, hexStr, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("replay line %d: missing comma", lineNo)
		}
		tsNs, err := strconv.ParseInt(strings.TrimSpace(tsStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: timestamp: %w", lineNo, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("replay line %d: negative timestamp", lineNo)
		}
		b, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(hexStr), " ", ""))
		if err != nil {
			return nil, fmt.Errorf("replay line %d: payload: %w", lineNo, err)
		}
		if len(b) == 0 {
			return nil, fmt.Errorf("replay line %d: empty payload", lineNo)
		}
		recs = append(recs, Record{At: time.Duration(tsNs), Data: b})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// Load reads a capture file and flattens START markers into one timeline.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	recs, err := NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	return flatten(recs), nil
}

// flatten rebases segments after a START marker so they follow the previous
// segment instead of overlapping it.
func flatten(recs []Record) []Record {
	out := make([]Record, 0, len(recs))
	var base, last, origin time.Duration
	haveOrigin := false
	for _, r := range recs {
		if r.Data == nil {
			base = last
			haveOrigin = false
			continue
		}
		if !haveOrigin {
			origin = r.At
			haveOrigin = true
		}
		at := base + (r.At - origin)
		if at < last {
			at = last
		}
		out = append(out, Record{At: at, Data: r.Data})
		last = at
	}
	return out
}

// Writer appends chunks to a capture file. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 16*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw}, nil
}

func (ww *Writer) WriteChunk(now time.Time, data []byte) error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if len(data) == 0 {
		return nil
	}
	// Offsets are relative to the first chunk.
	if ww.start.IsZero() {
		ww.start = now
	}
	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(data))
	return err
}

func (ww *Writer) Flush() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	ww.mu.Lock()
	defer ww.mu.Unlock()
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}
