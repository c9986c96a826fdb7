package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StreamRecord is one captured output line of an iteration.
type StreamRecord struct {
	Timestamp time.Time `json:"ts"`
	Stream    string    `json:"stream"` // stdout or stderr
	Data      string    `json:"data"`
}

// StreamLog appends the raw output of one iteration to
// runs/<run_id>/iteration-NNN.jsonl, one StreamRecord per line.
type StreamLog struct {
	mu   sync.Mutex
	f    *os.File
	bw   *bufio.Writer
	enc  *json.Encoder
	path string
	now  func() time.Time
	err  error
}

// StreamLogName returns the file name used for an iteration's stream log.
func StreamLogName(iteration int) string {
	return fmt.Sprintf("iteration-%03d.jsonl", iteration)
}

// OpenStreamLog creates the stream log for iteration.
func (w *Writer) OpenStreamLog(iteration int) (*StreamLog, error) {
	path := filepath.Join(w.runDir, StreamLogName(iteration))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening stream log: %w", err)
	}
	bw := bufio.NewWriter(f)
	return &StreamLog{
		f:    f,
		bw:   bw,
		enc:  json.NewEncoder(bw),
		path: path,
		now:  w.now,
	}, nil
}

// Path returns the log file path.
func (l *StreamLog) Path() string { return l.path }

// Record appends one line. Write failures are sticky and reported by Close
// so a full disk never interrupts the running agent.
func (l *StreamLog) Record(stream, data string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil || l.f == nil {
		return
	}
	l.err = l.enc.Encode(StreamRecord{Timestamp: l.now(), Stream: stream, Data: data})
}

// Close flushes and closes the file. It returns the first write error.
func (l *StreamLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return l.err
	}
	if err := l.bw.Flush(); err != nil && l.err == nil {
		l.err = err
	}
	if err := l.f.Close(); err != nil && l.err == nil {
		l.err = err
	}
	l.f = nil
	return l.err
}

// ReadStreamLog loads every record of an iteration's stream log.
func ReadStreamLog(runDir string, iteration int) ([]StreamRecord, error) {
	f, err := os.Open(filepath.Join(runDir, StreamLogName(iteration)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []StreamRecord
	dec := json.NewDecoder(f)
	for dec.More() {
		var r StreamRecord
		if err := dec.Decode(&r); err != nil {
			return records, fmt.Errorf("decoding stream log: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}
