package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/tools"
)

const (
	// DefaultMaxToolRounds bounds the tool rounds of a single user turn.
	DefaultMaxToolRounds = 4

	// DefaultParallelism bounds concurrent tool executions within a round.
	DefaultParallelism = 4

	exitCommand = "exit"

	banner = "Google Tools Agent initialized. You can start chatting with the agent.\n" +
		"Type 'exit' to end the conversation."
	goodbye     = "Exiting the chat. Goodbye!"
	userPrompt  = "You: "
	agentPrefix = "Agent: "

	// maxLineBytes bounds a single utterance.
	maxLineBytes = 1024 * 1024
)

var errLineTooLong = fmt.Errorf("message exceeds %d bytes", maxLineBytes)

// Loop drives an interactive session.
type Loop struct {
	engine   Engine
	registry *tools.Registry

	logger        *slog.Logger
	metrics       *instrumentation.Metrics
	maxRounds     int
	parallelism   int
	engineTimeout time.Duration
	newID         func() string
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(l *Loop) { l.metrics = metrics }
}

// WithMaxToolRounds bounds the tool rounds per user turn.
func WithMaxToolRounds(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxRounds = n
		}
	}
}

// WithParallelTools lets up to limit invocations of one round run
// concurrently. A limit below 2 keeps execution sequential.
func WithParallelTools(limit int) Option {
	return func(l *Loop) { l.parallelism = limit }
}

// WithEngineTimeout bounds each call to the engine.
func WithEngineTimeout(d time.Duration) Option {
	return func(l *Loop) { l.engineTimeout = d }
}

// WithIDGenerator replaces the generator of session and invocation ids.
func WithIDGenerator(newID func() string) Option {
	return func(l *Loop) { l.newID = newID }
}

// NewLoop creates a Loop.
func NewLoop(engine Engine, registry *tools.Registry, opts ...Option) *Loop {
	l := &Loop{
		engine:      engine,
		registry:    registry,
		logger:      slog.Default(),
		maxRounds:   DefaultMaxToolRounds,
		parallelism: 1,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run reads utterances from in, one per line, and writes the transcript to
// out until the user types exit, in reaches EOF or ctx is cancelled.
// Cancellation and read failures of in are reported as errors. An overlong
// line is skipped with a diagnostic.
func (l *Loop) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s := l.newSession(out)
	ctx = tools.WithSessionID(ctx, s.conv.SessionID())
	s.logger.Info("Session started")
	defer s.logger.Info("Session ended", slog.Int("turns", s.conv.Len()))

	s.println(banner)

	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)
	for {
		s.print(userPrompt)

		var line inputLine
		var ok bool
		select {
		case <-ctx.Done():
			s.println("")
			return ctx.Err()
		case line, ok = <-lines:
		}
		if !ok {
			s.println("")
			return nil
		}
		if errors.Is(line.err, errLineTooLong) {
			s.logger.Warn("Input line too long", slog.Int("limit_bytes", maxLineBytes))
			s.println(agentPrefix + fmt.Sprintf("Your message was ignored because it is longer than %d bytes.", maxLineBytes))
			continue
		}
		if line.err != nil {
			s.logger.Error("Failed to read input", logging.Err(line.err))
			s.println("")
			s.println(agentPrefix + fmt.Sprintf("Could not read your input: %v", line.err))
			return fmt.Errorf("read input: %w", line.err)
		}

		utterance := strings.TrimSpace(line.text)
		if utterance == "" {
			continue
		}
		if strings.EqualFold(utterance, exitCommand) {
			s.println(goodbye)
			return nil
		}

		reply := s.respond(ctx, utterance)
		s.println(agentPrefix + reply)
	}
}

type inputLine struct {
	text string
	err  error
}

// readLines streams the lines of in until done is closed. An overlong line
// is delivered as errLineTooLong and reading goes on. The channel closes
// at EOF or after delivering any other read error.
func readLines(in io.Reader, done <-chan struct{}) <-chan inputLine {
	lines := make(chan inputLine)
	go func() {
		defer close(lines)
		r := bufio.NewReaderSize(in, 64*1024)
		for {
			text, err := readLine(r)
			if errors.Is(err, io.EOF) {
				return
			}
			select {
			case lines <- inputLine{text: text, err: err}:
			case <-done:
				return
			}
			if err != nil && !errors.Is(err, errLineTooLong) {
				return
			}
		}
	}()
	return lines
}

// readLine returns the next line of r without its line ending. The rest of
// a line longer than maxLineBytes is discarded.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			buf = append(buf, chunk...)
			// Two extra bytes leave room for a CRLF ending.
			if len(buf) > maxLineBytes+2 {
				tooLong, buf = true, nil
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		if tooLong {
			return "", errLineTooLong
		}
		if errors.Is(err, io.EOF) && len(buf) == 0 {
			return "", io.EOF
		}
		line := strings.TrimSuffix(strings.TrimSuffix(string(buf), "\n"), "\r")
		if len(line) > maxLineBytes {
			return "", errLineTooLong
		}
		return line, nil
	}
}

type session struct {
	*Loop
	conv   *Conversation
	logger *slog.Logger

	outMu sync.Mutex
	out   io.Writer
}

func (l *Loop) newSession(out io.Writer) *session {
	id := l.newID()
	return &session{
		Loop:   l,
		conv:   NewConversation(id),
		logger: logging.WithSession(l.logger, id),
		out:    out,
	}
}

func (s *session) print(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = io.WriteString(s.out, text)
}

func (s *session) println(text string) {
	s.print(text + "\n")
}

func (s *session) append(ctx context.Context, t Turn) int {
	s.metrics.RecordTurn(ctx, string(t.Role))
	return s.conv.Append(t)
}

// respond handles one user utterance and returns the text to show.
func (s *session) respond(ctx context.Context, utterance string) string {
	s.append(ctx, Turn{Role: RoleUser, Content: utterance})

	for round := 0; ; round++ {
		decision, err := s.selectActions(ctx)
		if err != nil {
			s.logger.Error("Reasoning engine failed", logging.Err(err))
			reply := fmt.Sprintf("Sorry, I could not process that: %v", err)
			s.append(ctx, Turn{Role: RoleAgent, Content: reply})
			return reply
		}

		if !decision.WantsTools() {
			s.append(ctx, Turn{Role: RoleAgent, Content: decision.Reply})
			return decision.Reply
		}

		if round >= s.maxRounds {
			s.logger.Warn("Tool round limit reached", slog.Int("rounds", round))
			reply := fmt.Sprintf("Stopped after %d rounds of tool calls without reaching an answer. "+
				"Please rephrase or narrow down the request.", round)
			s.append(ctx, Turn{Role: RoleAgent, Content: reply})
			return reply
		}

		index := s.conv.Len()
		invocations := make([]Invocation, len(decision.Invocations))
		for i, inv := range decision.Invocations {
			if inv.ID == "" {
				inv.ID = s.newID()
			}
			inv.TurnIndex = index
			invocations[i] = inv
		}
		s.append(ctx, Turn{Role: RoleAgent, Content: decision.Reply, Invocations: invocations})

		for i, res := range s.execute(ctx, invocations) {
			s.append(ctx, Turn{
				Role:         RoleToolResult,
				Content:      res.Text,
				InvocationID: invocations[i].ID,
				Tool:         invocations[i].Tool,
				IsError:      res.IsError,
			})
		}
	}
}

func (s *session) selectActions(ctx context.Context) (decision Decision, err error) {
	if s.engineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.engineTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reasoning engine panicked: %v", r)
		}
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		s.metrics.RecordEngineCall(ctx, status, time.Since(start))
	}()

	return s.engine.SelectActions(ctx, s.conv.Turns(), s.registry.Catalog())
}

// execute runs the invocations of one round. Results are returned in the
// order of invocations regardless of completion order.
func (s *session) execute(ctx context.Context, invocations []Invocation) []tools.Result {
	results := make([]tools.Result, len(invocations))
	if s.parallelism < 2 || len(invocations) < 2 {
		for i, inv := range invocations {
			results[i] = s.invoke(ctx, inv)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(s.parallelism)
	for i, inv := range invocations {
		g.Go(func() error {
			results[i] = s.invoke(ctx, inv)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// invoke runs a single invocation. It never fails: every problem becomes
// an error result that is shown to the engine.
func (s *session) invoke(ctx context.Context, inv Invocation) (res tools.Result) {
	logger := s.logger.With(logging.Tool(inv.Tool), logging.Invocation(inv.ID))

	spec, ok := s.registry.Lookup(inv.Tool)
	if !ok {
		logger.Warn("Unknown tool requested")
		return tools.ErrorResult(fmt.Sprintf("Unknown tool %q. Available tools: %s",
			inv.Tool, strings.Join(s.registry.Names(), ", ")))
	}
	if err := spec.Validate(inv.Arguments); err != nil {
		logger.Warn("Invalid tool arguments", logging.Err(err))
		return tools.ErrorResult(fmt.Sprintf("Invalid arguments: %v", err))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Tool handler panicked", slog.Any("panic", r))
			res = tools.ErrorResult(fmt.Sprintf("Tool %s failed unexpectedly: %v", inv.Tool, r))
		}
	}()

	logger.Debug("Executing tool")
	res, err := spec.Handler(tools.WithInvocationID(ctx, inv.ID), inv.Arguments)
	if err != nil {
		var authErr *credential.AuthError
		if errors.As(err, &authErr) {
			logger.Warn("Tool skipped, authorization failed", logging.Err(err))
			diag := fmt.Sprintf("Could not authorize %s with Google: %v", inv.Tool, authErr)
			s.println(agentPrefix + diag)
			return tools.ErrorResult(diag)
		}
		logger.Warn("Tool could not run", logging.Err(err))
		return tools.ErrorResult(fmt.Sprintf("Tool %s could not run: %v", inv.Tool, err))
	}
	return res
}
