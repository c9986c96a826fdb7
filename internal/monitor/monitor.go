// Package monitor watches the agent's output streams while an iteration
// runs: stdout events drive promise detection and the token budget, stderr
// is forwarded to the debug log.
package monitor

import (
	"bufio"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/agusx1211/ralphloop/internal/debug"
	"github.com/agusx1211/ralphloop/internal/eventq"
	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/state"
	"github.com/agusx1211/ralphloop/internal/stream"
	"github.com/agusx1211/ralphloop/internal/tokens"
)

// Command is a request from a monitor to the invocation that owns the
// child process.
type Command int

const (
	// Kill asks for the child to be terminated because of the token budget.
	Kill Command = iota + 1
)

func (c Command) String() string {
	if c == Kill {
		return "kill"
	}
	return "unknown"
}

// Config holds the per-iteration monitoring parameters.
type Config struct {
	Promise          string
	MaxTokens        int
	WarningThreshold int
	// Estimator adds provisional token counts for assistant text between
	// authoritative result events. Nil disables estimation.
	Estimator tokens.Estimator
	// Observer, when set, sees every non-blank line and parsed event.
	Observer Observer
}

// Stream names passed to Observer.Line.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Observer receives a copy of what the monitors read. Line is called from
// both monitor goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	Line(src, line string)
	Event(ev stream.Event)
}

// Result is what the stdout monitor learned during one iteration.
type Result struct {
	SessionID  string
	TokenUsage *stream.TokenUsage
}

// Stdout consumes the event stream of one iteration.
type Stdout struct {
	cfg      Config
	state    *state.RunState
	commands *eventq.Slot[Command]
	promise  *regexp.Regexp
	log      zerolog.Logger

	warned    bool
	sessionID string

	// sessionFromResult is set once a result event supplied sessionID;
	// later init events no longer replace it.
	sessionFromResult bool
	usage             *stream.TokenUsage
	lines             int
	events            int
}

// NewStdout returns a stdout monitor that records into st and offers kill
// commands on commands.
func NewStdout(cfg Config, st *state.RunState, commands *eventq.Slot[Command]) *Stdout {
	return &Stdout{
		cfg:      cfg,
		state:    st,
		commands: commands,
		promise:  PromisePattern(cfg.Promise),
		log:      logging.Component("monitor"),
	}
}

// PromisePattern matches the literal promise wrapped in <promise> tags.
func PromisePattern(promise string) *regexp.Regexp {
	return regexp.MustCompile("<promise>" + regexp.QuoteMeta(promise) + "</promise>")
}

// Result returns the session id and token usage seen so far.
func (m *Stdout) Result() Result {
	return Result{SessionID: m.sessionID, TokenUsage: m.usage}
}

// Run reads r until EOF or a read error. Lines of any length are accepted.
func (m *Stdout) Run(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			m.lines++
			m.handleLine(line)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.log.Debug().Int("lines", m.lines).Int("events", m.events).Msg("stdout closed")
				return nil
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			m.log.Warn().Err(err).Int("lines", m.lines).Msg("stdout read error")
			return err
		}
	}
}

func (m *Stdout) handleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	m.state.AppendOutput(line + "\n")
	if m.cfg.Observer != nil {
		m.cfg.Observer.Line(StreamStdout, line)
	}

	ev, err := stream.Parse(line)
	if err != nil {
		debug.LogKV("monitor", "unparseable stdout line", "err", err, "line", truncate(line, 100))
		return
	}
	m.events++
	if m.cfg.Observer != nil {
		m.cfg.Observer.Event(ev)
	}

	switch e := ev.(type) {
	case stream.InitEvent:
		if e.SessionID != "" && !m.sessionFromResult {
			m.sessionID = e.SessionID
			debug.LogKV("monitor", "session started", "session_id", e.SessionID)
		}
	case stream.AssistantEvent:
		text, ok := stream.ExtractText(e)
		if !ok {
			return
		}
		if m.cfg.Estimator != nil {
			m.state.AddTokens(m.cfg.Estimator.Count(text))
		}
		if m.promise.MatchString(text) {
			m.log.Info().Str("promise", m.cfg.Promise).Msg("promise found in output")
			m.state.SetPromiseFound(m.cfg.Promise)
		}
	case stream.ResultEvent:
		m.handleResult(e)
	default:
		debug.LogKV("monitor", "event", "type", ev.Type())
	}
}

func (m *Stdout) handleResult(e stream.ResultEvent) {
	if e.SessionID != "" {
		m.sessionID = e.SessionID
		m.sessionFromResult = true
	}
	usage := e.Usage
	m.usage = &usage

	total := usage.Total()
	m.state.SetTokens(total)
	debug.LogKV("monitor", "result", "total_tokens", total, "session_id", m.sessionID)

	if !m.warned && total >= m.cfg.WarningThreshold {
		m.warned = true
		m.log.Warn().
			Int("tokens", total).
			Int("threshold", m.cfg.WarningThreshold).
			Int("max", m.cfg.MaxTokens).
			Msg("approaching context limit")
	}

	if total >= m.cfg.MaxTokens {
		m.log.Warn().Int("tokens", total).Int("max", m.cfg.MaxTokens).Msg("context limit reached, killing agent")
		if !m.commands.Offer(Kill) {
			debug.Log("monitor", "kill already pending")
		}
	}
}

// RunStderr forwards non-blank stderr lines to the debug log and obs until
// EOF. obs may be nil.
func RunStderr(r io.Reader, log zerolog.Logger, obs Observer) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if text := strings.TrimSpace(ansi.Strip(line)); text != "" {
			log.Debug().Str("stream", "stderr").Msg(text)
			debug.LogKV("stderr", text)
			if obs != nil {
				obs.Line(StreamStderr, text)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Handle tracks a pair of running monitors.
type Handle struct {
	g   *errgroup.Group
	out *Stdout
}

// Start runs the stdout and stderr monitors concurrently.
func Start(cfg Config, st *state.RunState, commands *eventq.Slot[Command], stdout, stderr io.Reader) *Handle {
	out := NewStdout(cfg, st, commands)
	g := new(errgroup.Group)
	g.Go(func() error { return out.Run(stdout) })
	g.Go(func() error { return RunStderr(stderr, logging.Component("agent"), cfg.Observer) })
	return &Handle{g: g, out: out}
}

// Wait blocks until both monitors finish and returns the stdout result.
// The returned error is the first read error either monitor hit.
func (h *Handle) Wait() (Result, error) {
	err := h.g.Wait()
	return h.out.Result(), err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
