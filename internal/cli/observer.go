package cli

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/agusx1211/ralphloop/internal/stream"
	"github.com/agusx1211/ralphloop/internal/transcript"
)

// runObserver fans monitor output out to the live display and the stream log
// of the current iteration.
type runObserver struct {
	writer  *transcript.Writer
	display *stream.Display // nil unless verbose
	log     zerolog.Logger

	mu      sync.Mutex
	current *transcript.StreamLog
}

func (o *runObserver) Line(src, line string) {
	o.mu.Lock()
	l := o.current
	o.mu.Unlock()
	if l != nil {
		l.Record(src, line)
	}
}

func (o *runObserver) Event(ev stream.Event) {
	if o.display != nil {
		o.display.Handle(ev)
	}
}

func (o *runObserver) begin(iteration int) {
	l, err := o.writer.OpenStreamLog(iteration)
	if err != nil {
		o.log.Warn().Err(err).Int("iteration", iteration).Msg("stream log unavailable")
		return
	}
	o.mu.Lock()
	o.current = l
	o.mu.Unlock()
}

func (o *runObserver) end(iteration int) {
	o.mu.Lock()
	l := o.current
	o.current = nil
	o.mu.Unlock()
	if l == nil {
		return
	}
	if err := l.Close(); err != nil {
		o.log.Warn().Err(err).Int("iteration", iteration).Msg("failed to write stream log")
	}
}
