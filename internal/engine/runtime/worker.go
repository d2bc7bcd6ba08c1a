package runtime

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pycomplete/internal/core/errors"
	"pycomplete/internal/shared/observability"
)

//go:embed driver.py
var driverSource string

const (
	DefaultInterpreter    = "python3"
	DefaultRequestTimeout = 10 * time.Second
	DefaultStartupTimeout = 15 * time.Second

	closeGrace = 2 * time.Second
)

type Options struct {
	Interpreter string
	// Args are passed to the interpreter before the driver, e.g. "-I".
	Args []string
	// Env entries (KEY=VALUE) are appended to the inherited environment.
	Env            []string
	RequestTimeout time.Duration
	StartupTimeout time.Duration
	Logger         *slog.Logger
}

// Worker runs the Python driver in a child process and implements Runtime
// on top of it. One request is in flight at a time. A worker that dies or
// does not answer in time is killed and started again on the next request,
// which bumps Generation.
type Worker struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	proc   *process
	info   Info
	nextID int64
	closed bool

	generation atomic.Uint64
}

var _ Runtime = (*Worker)(nil)

type process struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	responses chan *message
	exited    chan struct{}
}

func NewWorker(opts Options) *Worker {
	if opts.Interpreter == "" {
		opts.Interpreter = DefaultInterpreter
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{opts: opts, logger: logger.With("component", "python-worker")}
}

func (w *Worker) Generation() uint64 {
	return w.generation.Load()
}

func (w *Worker) start() (*process, error) {
	args := append(append([]string{}, w.opts.Args...), "-u", "-c", driverSource)
	cmd := exec.Command(w.opts.Interpreter, args...)
	cmd.Env = append(os.Environ(), w.opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRuntime, "python worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRuntime, "python worker stdout")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeRuntime, "python worker stderr")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.AddContext(
			errors.Wrap(err, errors.CodeRuntime, "start python worker"),
			"interpreter", w.opts.Interpreter)
	}

	p := &process{
		cmd:       cmd,
		stdin:     stdin,
		responses: make(chan *message, 1),
		exited:    make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readLoop(stdout, w.logger)
	}()
	go func() {
		defer readers.Done()
		logStderr(stderr, w.logger)
	}()
	go func() {
		// Wait closes the pipes, so it must run after both readers hit EOF.
		readers.Wait()
		err := cmd.Wait()
		w.logger.Debug("python worker exited", "pid", cmd.Process.Pid, "error", err)
		close(p.exited)
	}()
	return p, nil
}

func (p *process) readLoop(stdout io.Reader, logger *slog.Logger) {
	defer close(p.responses)
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			var msg message
			if jerr := json.Unmarshal(line, &msg); jerr != nil {
				logger.Warn("malformed worker message", "error", jerr)
			} else {
				select {
				case p.responses <- &msg:
				default:
					logger.Warn("dropping unsolicited worker message", "method", msg.Method)
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// logStderr forwards whatever the interpreter or executed code prints.
func logStderr(stderr io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug("python output", "line", scanner.Text())
	}
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// ensureLocked returns the running process, starting one if needed.
func (w *Worker) ensureLocked(ctx context.Context) (*process, error) {
	if w.closed {
		return nil, errors.New(errors.CodeRuntime, "python worker is closed")
	}
	if w.proc != nil && w.proc.alive() {
		return w.proc, nil
	}
	w.proc = nil

	p, err := w.start()
	if err != nil {
		return nil, err
	}
	var info Info
	answer, err := w.exchange(ctx, p, "info", nil, &info, w.opts.StartupTimeout)
	if err == nil {
		err = answer
	}
	if err != nil {
		kill(p)
		return nil, errors.Wrap(err, errors.CodeRuntime, "python worker handshake")
	}
	w.proc = p
	w.info = info
	gen := w.generation.Add(1)
	observability.WorkerRestartsTotal.Inc()
	w.logger.Info("python worker started",
		"pid", p.cmd.Process.Pid,
		"python", info.Version,
		"executable", info.Executable,
		"generation", gen)
	return p, nil
}

// exchange sends one request and waits for its response. The first error
// is the answer of the worker (a Python exception or a rejected request),
// the second a transport failure after which p can no longer be trusted.
func (w *Worker) exchange(ctx context.Context, p *process, method string, params, result any, timeout time.Duration) (error, error) {
	w.nextID++
	id := w.nextID
	line, err := json.Marshal(message{JSONRPC: "2.0", ID: &id, Method: method, Params: params})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode worker request"), nil
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		return nil, errors.Wrap(err, errors.CodeRuntime, "write to python worker")
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case resp, ok := <-p.responses:
			if !ok {
				return nil, errors.New(errors.CodeRuntime, "python worker exited")
			}
			if resp.ID == nil || *resp.ID != id {
				continue
			}
			if resp.Error != nil {
				return decodeError(resp.Error), nil
			}
			if result == nil || len(resp.Result) == 0 {
				return nil, nil
			}
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return errors.Wrap(err, errors.CodeRuntime, "decode worker response"), nil
			}
			return nil, nil
		case <-timer.C:
			return nil, errors.AddContext(
				errors.New(errors.CodeRuntime, fmt.Sprintf("python worker did not answer within %s", timeout)),
				errors.CtxOperation, method)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func decodeError(e *rpcError) error {
	if e.Code == codePythonError {
		return &PyError{Type: e.Data.Type, Message: e.Message}
	}
	return errors.AddContext(
		errors.New(errors.CodeRuntime, fmt.Sprintf("python worker: %s", e.Message)),
		"rpc_code", e.Code)
}

// call performs one request on the running worker, starting it if needed.
// A transport failure or timeout kills the worker.
func (w *Worker) call(ctx context.Context, method string, params, result any) error {
	start := time.Now()
	err := w.roundTrip(ctx, method, params, result)
	observability.WorkerRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	outcome := "ok"
	var pe *PyError
	switch {
	case err == nil:
	case stdErrors.As(err, &pe):
		outcome = "python_error"
	default:
		outcome = "error"
	}
	observability.WorkerRequestsTotal.WithLabelValues(method, outcome).Inc()
	return err
}

func (w *Worker) roundTrip(ctx context.Context, method string, params, result any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, err := w.ensureLocked(ctx)
	if err != nil {
		return err
	}
	answer, err := w.exchange(ctx, p, method, params, result, w.opts.RequestTimeout)
	if err != nil {
		w.logger.Warn("stopping python worker", "method", method, "error", err)
		kill(p)
		w.proc = nil
		return err
	}
	return answer
}

func kill(p *process) {
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// Close stops the worker. It lets the driver exit on end of input and kills
// it if it does not do so promptly.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.proc == nil {
		return nil
	}
	p := w.proc
	w.proc = nil
	_ = p.stdin.Close()
	select {
	case <-p.exited:
	case <-time.After(closeGrace):
		kill(p)
	}
	return nil
}

func (w *Worker) Info(ctx context.Context) (Info, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.ensureLocked(ctx); err != nil {
		return Info{}, err
	}
	return w.info, nil
}

func (w *Worker) NewNamespace(ctx context.Context, ns Namespace, file string) error {
	return w.call(ctx, "ns.new", map[string]any{"ns": ns, "file": file}, nil)
}

func (w *Worker) Release(ctx context.Context, ns Namespace) error {
	return w.call(ctx, "ns.release", nsParams{NS: ns}, nil)
}

func (w *Worker) Exec(ctx context.Context, ns Namespace, code, filename string) error {
	return w.call(ctx, "ns.exec", map[string]any{"ns": ns, "code": code, "filename": filename}, nil)
}

func (w *Worker) Checkpoint(ctx context.Context, ns Namespace) error {
	return w.call(ctx, "ns.checkpoint", nsParams{NS: ns}, nil)
}

func (w *Worker) Restore(ctx context.Context, ns Namespace) error {
	return w.call(ctx, "ns.restore", nsParams{NS: ns}, nil)
}

func (w *Worker) ResetLocals(ctx context.Context, ns Namespace) error {
	return w.call(ctx, "ns.reset_locals", nsParams{NS: ns}, nil)
}

func (w *Worker) Keys(ctx context.Context, ns Namespace) (Keys, error) {
	var keys Keys
	err := w.call(ctx, "ns.keys", nsParams{NS: ns}, &keys)
	return keys, err
}

func (w *Worker) Eval(ctx context.Context, ns Namespace, expr string) (Ref, error) {
	var ref Ref
	err := w.call(ctx, "eval", map[string]any{"ns": ns, "expr": expr}, &ref)
	return ref, err
}

func (w *Worker) Import(ctx context.Context, ns Namespace, name string, bind bool) (Ref, error) {
	var ref Ref
	err := w.call(ctx, "import", map[string]any{"ns": ns, "name": name, "bind": bind}, &ref)
	return ref, err
}

func (w *Worker) Dir(ctx context.Context, ns Namespace, ref Ref) ([]string, error) {
	var names []string
	err := w.call(ctx, "dir", refParams{NS: ns, Ref: ref}, &names)
	return names, err
}

func (w *Worker) Describe(ctx context.Context, ns Namespace, ref Ref) (Description, error) {
	var desc Description
	err := w.call(ctx, "describe", refParams{NS: ns, Ref: ref}, &desc)
	return desc, err
}

func (w *Worker) Unwrap(ctx context.Context, ns Namespace, ref Ref) (Ref, error) {
	var out Ref
	err := w.call(ctx, "unwrap", refParams{NS: ns, Ref: ref}, &out)
	return out, err
}

func (w *Worker) OwnInit(ctx context.Context, ns Namespace, ref Ref) (Ref, error) {
	var out Ref
	err := w.call(ctx, "own_init", refParams{NS: ns, Ref: ref}, &out)
	return out, err
}

func (w *Worker) Bases(ctx context.Context, ns Namespace, ref Ref) ([]Ref, error) {
	var out []Ref
	err := w.call(ctx, "bases", refParams{NS: ns, Ref: ref}, &out)
	return out, err
}

func (w *Worker) ArgSpec(ctx context.Context, ns Namespace, ref Ref) (ArgSpec, error) {
	var spec ArgSpec
	err := w.call(ctx, "argspec", refParams{NS: ns, Ref: ref}, &spec)
	return spec, err
}

func (w *Worker) CodeLocation(ctx context.Context, ns Namespace, ref Ref) (Location, error) {
	var loc Location
	err := w.call(ctx, "code_location", refParams{NS: ns, Ref: ref}, &loc)
	return loc, err
}

func (w *Worker) SourceLocation(ctx context.Context, ns Namespace, ref Ref) (Location, error) {
	var loc Location
	err := w.call(ctx, "source_location", refParams{NS: ns, Ref: ref}, &loc)
	return loc, err
}

func (w *Worker) Help(ctx context.Context, ns Namespace, ref Ref, text string) (string, error) {
	var out string
	err := w.call(ctx, "help", map[string]any{"ns": ns, "ref": ref, "text": text}, &out)
	return out, err
}
