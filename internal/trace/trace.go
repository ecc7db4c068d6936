// Package trace records town snapshots as zstd-compressed JSON lines so a
// run can be inspected or replayed later.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/ai-town/internal/engine"
)

var ErrClosed = goerr.New("trace recorder closed")

// Recorder writes one JSON line per recorded snapshot. Safe for concurrent use.
type Recorder struct {
	path  string
	every uint64

	mu     sync.Mutex
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
	count  int
	closed bool
}

// Create opens path for writing, replacing any existing file. Only
// snapshots whose tick is a multiple of every are kept (every ≤ 1 keeps all).
func Create(path string, every uint64) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, goerr.Wrap(err, "create trace dir", goerr.V("dir", dir))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, goerr.Wrap(err, "create trace", goerr.V("path", path))
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, goerr.Wrap(err, "create zstd encoder")
	}
	if every == 0 {
		every = 1
	}
	return &Recorder{
		path:  path,
		every: every,
		f:     f,
		enc:   enc,
		w:     bufio.NewWriterSize(enc, 128*1024),
	}, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Count returns the number of snapshots written so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Record appends snap if its tick is due.
func (r *Recorder) Record(snap *engine.Snapshot) error {
	if snap == nil || snap.Tick%r.every != 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return goerr.Wrap(err, "encode snapshot", goerr.V("tick", snap.Tick))
	}
	if _, err := r.w.Write(b); err != nil {
		return goerr.Wrap(err, "write snapshot", goerr.V("tick", snap.Tick))
	}
	if err := r.w.WriteByte('\n'); err != nil {
		return goerr.Wrap(err, "write snapshot", goerr.V("tick", snap.Tick))
	}
	r.count++
	return nil
}

// Close flushes and closes the file. Calling Close twice is a no-op.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	errFlush := r.w.Flush()
	errEnc := r.enc.Close()
	errFile := r.f.Close()
	if err := errors.Join(errFlush, errEnc, errFile); err != nil {
		return goerr.Wrap(err, "close trace", goerr.V("path", r.path))
	}
	return nil
}

// Read decodes every snapshot in a trace file, oldest first.
func Read(path string) ([]engine.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "open trace", goerr.V("path", path))
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads snapshots from a zstd JSONL stream.
func Decode(src io.Reader) ([]engine.Snapshot, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, goerr.Wrap(err, "create zstd decoder")
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []engine.Snapshot
	for line := 1; sc.Scan(); line++ {
		var snap engine.Snapshot
		if err := json.Unmarshal(sc.Bytes(), &snap); err != nil {
			return nil, goerr.Wrap(err, "decode snapshot", goerr.V("line", line))
		}
		out = append(out, snap)
	}
	if err := sc.Err(); err != nil {
		return nil, goerr.Wrap(err, "read trace")
	}
	return out, nil
}
