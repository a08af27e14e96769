package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"chess_review/internal/domain"
	errs "chess_review/internal/errors"
)

// sessionState tracks the engine worker lifecycle. Transitions:
// Stopped -> Starting -> Ready -> {Evaluating -> Ready}* -> (Degraded -> Ready | Stopped).
type sessionState int

const (
	StateStopped sessionState = iota
	StateStarting
	StateReady
	StateEvaluating
	StateDegraded
)

func (s sessionState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateEvaluating:
		return "evaluating"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// EngineConfig configures one engine worker process.
type EngineConfig struct {
	Path       string
	SkillLevel int
	Threads    int
	HashSizeMb int
	// Timeout is the hard per-evaluate wall clock. Zero derives it from the
	// requested budget.
	Timeout time.Duration
}

// engineProc is the worker process surface the session drives. The real
// implementation wraps exec.Cmd pipes; tests substitute a scripted fake.
type engineProc interface {
	WriteLine(line string) error
	Lines() <-chan string
	Done() <-chan struct{}
	Terminate(grace time.Duration)
}

// uciProc runs the engine binary and pumps its stdout into a line channel.
type uciProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	lines  chan string
	done   chan struct{}
}

func startUciProc(path string) (engineProc, error) {
	cmd := exec.Command(path)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &uciProc{
		cmd:    cmd,
		stdin:  stdinPipe,
		writer: bufio.NewWriter(stdinPipe),
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
	}

	go func() {
		scanner := bufio.NewScanner(stdoutPipe)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
		close(p.lines)
	}()

	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

func (p *uciProc) WriteLine(line string) error {
	if _, err := p.writer.WriteString(line + "\n"); err != nil {
		return err
	}
	return p.writer.Flush()
}

func (p *uciProc) Lines() <-chan string { return p.lines }

func (p *uciProc) Done() <-chan struct{} { return p.done }

// Terminate asks the worker to quit and kills it after the grace period.
func (p *uciProc) Terminate(grace time.Duration) {
	_ = p.WriteLine("quit")
	select {
	case <-p.done:
	case <-time.After(grace):
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.done
	}
	_ = p.stdin.Close()
}

// errProcExited marks a worker that died mid-request; the session translates
// it into the restart-once policy.
var errProcExited = errors.New("engine process exited")

const (
	handshakeTimeout = 10 * time.Second
	shutdownGrace    = 2 * time.Second
	abortGrace       = 500 * time.Millisecond
)

// EngineSession owns exactly one long-lived UCI worker process. Evaluate
// calls are serialized: the underlying protocol is strictly one request in
// flight. Independent games run independent sessions.
type EngineSession struct {
	cfg   EngineConfig
	log   *zap.SugaredLogger
	spawn func(path string) (engineProc, error)

	mu       sync.Mutex
	state    sessionState
	proc     engineProc
	restarts int // worker restarts since the last successful evaluate
}

func NewEngineSession(cfg EngineConfig, log *zap.SugaredLogger) *EngineSession {
	return &EngineSession{
		cfg:   cfg,
		log:   log,
		spawn: startUciProc,
		state: StateStopped,
	}
}

func (s *EngineSession) State() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start launches and configures the worker. Idempotent while running.
func (s *EngineSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return nil
	}
	return s.startLocked(ctx)
}

func (s *EngineSession) startLocked(ctx context.Context) error {
	s.state = StateStarting

	proc, err := s.spawn(s.cfg.Path)
	if err != nil {
		s.state = StateStopped
		return fmt.Errorf("start engine %q: %w", s.cfg.Path, err)
	}
	s.proc = proc

	if err := s.handshakeLocked(ctx); err != nil {
		proc.Terminate(shutdownGrace)
		s.proc = nil
		s.state = StateStopped
		return fmt.Errorf("engine handshake: %w", err)
	}

	s.state = StateReady
	s.log.Infow("engine session ready", "path", s.cfg.Path, "threads", s.cfg.Threads)
	return nil
}

func (s *EngineSession) handshakeLocked(ctx context.Context) error {
	if err := s.proc.WriteLine("uci"); err != nil {
		return errProcExited
	}
	if err := s.waitForLocked(ctx, "uciok", handshakeTimeout); err != nil {
		return err
	}

	if s.cfg.SkillLevel > 0 {
		_ = s.proc.WriteLine("setoption name Skill Level value " + strconv.Itoa(s.cfg.SkillLevel))
	}
	if s.cfg.Threads > 0 {
		_ = s.proc.WriteLine("setoption name Threads value " + strconv.Itoa(s.cfg.Threads))
	}
	if s.cfg.HashSizeMb > 0 {
		_ = s.proc.WriteLine("setoption name Hash value " + strconv.Itoa(s.cfg.HashSizeMb))
	}

	if err := s.proc.WriteLine("isready"); err != nil {
		return errProcExited
	}
	return s.waitForLocked(ctx, "readyok", handshakeTimeout)
}

func (s *EngineSession) waitForLocked(ctx context.Context, token string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line, ok := <-s.proc.Lines():
			if !ok {
				return errProcExited
			}
			if strings.HasPrefix(line, token) {
				return nil
			}
		case <-s.proc.Done():
			return errProcExited
		case <-timer.C:
			return errs.ErrEngineTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Evaluate runs one synchronous search for the position at the given budget
// and returns the score from White's perspective. A dead worker is restarted
// once; a second consecutive failure escalates to ErrEngineUnavailable.
func (s *EngineSession) Evaluate(ctx context.Context, pos domain.Position, budget domain.Budget) (domain.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil && s.state == StateStopped && s.restarts == 0 {
		return domain.Evaluation{}, errs.ErrEngineNotStarted
	}

	for {
		if s.procDeadLocked() {
			if err := s.restartLocked(ctx); err != nil {
				return domain.Evaluation{}, err
			}
		}

		ev, err := s.searchLocked(ctx, pos, budget)
		if err == nil {
			s.restarts = 0
			s.state = StateReady
			return ev, nil
		}

		if errors.Is(err, errProcExited) {
			s.log.Errorw("engine crashed during search", "fen", pos.FEN)
			s.state = StateDegraded
			if rerr := s.restartLocked(ctx); rerr != nil {
				return domain.Evaluation{}, rerr
			}
			continue
		}

		if errors.Is(err, errs.ErrEngineTimeout) {
			s.log.Errorw("engine evaluation timed out", "fen", pos.FEN, "budget", budget)
			s.state = StateDegraded
			return domain.Evaluation{}, err
		}

		// Caller-driven cancellation. The search was aborted cleanly, the
		// worker is still usable.
		s.state = StateReady
		return domain.Evaluation{}, err
	}
}

func (s *EngineSession) procDeadLocked() bool {
	if s.proc == nil {
		return true
	}
	select {
	case <-s.proc.Done():
		return true
	default:
		return false
	}
}

func (s *EngineSession) restartLocked(ctx context.Context) error {
	if s.restarts >= 1 {
		s.state = StateStopped
		s.proc = nil
		return fmt.Errorf("%w (%v)", errs.ErrEngineUnavailable, errs.ErrEngineCrashed)
	}
	s.restarts++

	if s.proc != nil {
		s.proc.Terminate(shutdownGrace)
		s.proc = nil
	}

	s.log.Warnw("restarting engine worker", "restarts", s.restarts)
	if err := s.startLocked(ctx); err != nil {
		s.state = StateStopped
		return fmt.Errorf("%w: restart failed: %v", errs.ErrEngineUnavailable, err)
	}
	return nil
}

func (s *EngineSession) searchLocked(ctx context.Context, pos domain.Position, budget domain.Budget) (domain.Evaluation, error) {
	s.state = StateEvaluating

	if err := s.proc.WriteLine("position fen " + pos.FEN); err != nil {
		return domain.Evaluation{}, errProcExited
	}
	if err := s.proc.WriteLine(goCommand(budget)); err != nil {
		return domain.Evaluation{}, errProcExited
	}

	timer := time.NewTimer(s.evalTimeout(budget))
	defer timer.Stop()

	var (
		cp, mate, depth int
		isMate          bool
		pv              string
	)

	for {
		select {
		case line, ok := <-s.proc.Lines():
			if !ok {
				return domain.Evaluation{}, errProcExited
			}
			if strings.HasPrefix(line, "info ") {
				parseInfoLine(line, &cp, &mate, &isMate, &depth, &pv)
				continue
			}
			if strings.HasPrefix(line, "bestmove") {
				best := ""
				if parts := strings.Fields(line); len(parts) > 1 && parts[1] != "(none)" {
					best = parts[1]
				}
				score := domain.Score{Centipawns: cp, Mate: mate, IsMate: isMate}
				// UCI scores are from the side to move; the stored
				// convention is White-positive everywhere.
				score = score.POV(pos.SideToMove())
				return domain.Evaluation{
					Score:    score,
					BestMove: best,
					PV:       pv,
					Depth:    depth,
					Budget:   budget,
				}, nil
			}
		case <-s.proc.Done():
			return domain.Evaluation{}, errProcExited
		case <-timer.C:
			s.abortSearchLocked()
			return domain.Evaluation{}, errs.ErrEngineTimeout
		case <-ctx.Done():
			s.abortSearchLocked()
			return domain.Evaluation{}, ctx.Err()
		}
	}
}

// abortSearchLocked stops the running search and drains its tail so the next
// request does not read stale output.
func (s *EngineSession) abortSearchLocked() {
	if s.proc.WriteLine("stop") != nil {
		return
	}
	grace := time.NewTimer(abortGrace)
	defer grace.Stop()
	for {
		select {
		case line, ok := <-s.proc.Lines():
			if !ok || strings.HasPrefix(line, "bestmove") {
				return
			}
		case <-s.proc.Done():
			return
		case <-grace.C:
			return
		}
	}
}

// Stop shuts the worker down: terminate, then kill after a grace period.
// Safe to call on every exit path.
func (s *EngineSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc != nil {
		s.proc.Terminate(shutdownGrace)
		s.proc = nil
	}
	s.state = StateStopped
	s.restarts = 0
}

func (s *EngineSession) evalTimeout(budget domain.Budget) time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	if budget.MovetimeMs > 0 {
		return time.Duration(budget.MovetimeMs)*time.Millisecond + 5*time.Second
	}
	return 30 * time.Second
}

func goCommand(budget domain.Budget) string {
	switch {
	case budget.Depth > 0 && budget.MovetimeMs > 0:
		return fmt.Sprintf("go depth %d movetime %d", budget.Depth, budget.MovetimeMs)
	case budget.Depth > 0:
		return fmt.Sprintf("go depth %d", budget.Depth)
	case budget.MovetimeMs > 0:
		return fmt.Sprintf("go movetime %d", budget.MovetimeMs)
	default:
		return "go movetime 1000"
	}
}

func parseInfoLine(line string, cp, mate *int, isMate *bool, depth *int, pv *string) {
	parts := strings.Fields(line)
	for i, part := range parts {
		switch part {
		case "score":
			if i+2 < len(parts) {
				switch parts[i+1] {
				case "cp":
					if v, err := strconv.Atoi(parts[i+2]); err == nil {
						*cp, *isMate = v, false
					}
				case "mate":
					if v, err := strconv.Atoi(parts[i+2]); err == nil {
						*mate, *isMate = v, true
					}
				}
			}
		case "depth":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					*depth = v
				}
			}
		case "pv":
			if i+1 < len(parts) {
				*pv = strings.Join(parts[i+1:], " ")
			}
		}
	}
}
