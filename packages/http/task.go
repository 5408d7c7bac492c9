package http

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
	"github.com/abdul-hamid-achik/hitshot/packages/bg"
	"github.com/abdul-hamid-achik/hitshot/packages/keystore"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
)

type TaskState int

const (
	Created TaskState = iota + 1
	Preparing
	Executing
	Completed
	Failed
)

func (s TaskState) String() string {
	switch s {
	case Created:
		return "created"
	case Preparing:
		return "preparing"
	case Executing:
		return "executing"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen
func (s TaskState) Terminal() bool {
	return s == Completed || s == Failed
}

// TaskConfig is everything a task captures at construction
type TaskConfig struct {
	ReferenceID int64
	Auditor     *audit.Auditor
	Timeout     time.Duration
	Request     Request
	Proxy       *Proxy
	Store       *keystore.Store
	Alias       string
	TrustMode   tlsaudit.TrustMode
	RootCAs     *x509.CertPool
	HTTP2       bool
	// Cancelled is polled once, before the client is built
	Cancelled func() bool
	Logger    *slog.Logger
}

// Task executes one request. All observers are safe for concurrent use.
type Task struct {
	cfg     TaskConfig
	auditor *audit.Auditor
	logger  *slog.Logger

	mu        sync.Mutex
	state     TaskState
	cancelled bool
	err       error
	callbacks []func(*Task)

	started atomic.Bool
	runOnce sync.Once
	done    chan struct{}

	resp             *http.Response
	closer           io.Closer
	abort            context.CancelFunc
	bodyTimeout      time.Duration
	neededClientAuth atomic.Bool

	postOnce   sync.Once
	statusLine string
	headers    string
	body       string
}

func NewTask(cfg TaskConfig) *Task {
	if cfg.Auditor == nil {
		cfg.Auditor = audit.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	return &Task{
		cfg:     cfg,
		auditor: cfg.Auditor,
		logger:  cfg.Logger.With("ref", cfg.ReferenceID),
		state:   Created,
		done:    make(chan struct{}),
	}
}

// Start runs the task on runner. Only the first call has an effect.
func (t *Task) Start(runner bg.Runner) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	runner.Do(func() {
		t.runOnce.Do(t.run)
	})
}

// Run executes the task on the calling goroutine and returns its terminal
// error. If the task is already running elsewhere, Run waits for it.
func (t *Task) Run() error {
	t.started.Store(true)
	t.runOnce.Do(t.run)
	<-t.done
	return t.Err()
}

// Cancel stops the task from starting. It has no effect once the task has
// left Created and reports whether it took effect.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Created {
		return false
	}
	t.cancelled = true
	return true
}

// OnComplete registers fn to run once the task is terminal. fn runs
// immediately when the task already is.
func (t *Task) OnComplete(fn func(*Task)) {
	t.mu.Lock()
	if !t.state.Terminal() {
		t.callbacks = append(t.callbacks, fn)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	fn(t)
}

// Done is closed when the task reaches a terminal state
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task is terminal or ctx is done
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) run() {
	defer t.finish()

	if !t.begin() {
		t.fail(&CancelledError{ReferenceID: t.cfg.ReferenceID})
		return
	}

	client, body, err := t.prepare()
	if err != nil {
		t.fail(&ClientBuildError{ReferenceID: t.cfg.ReferenceID, Err: err})
		return
	}

	t.setState(Executing)
	ctx, abort := context.WithCancel(context.Background())
	resp, err := t.execute(ctx, client, body)
	t.neededClientAuth.Store(client.ClientAuthRequested())
	if err != nil {
		abort()
		_ = client.Close()
		t.fail(&RequestExecutionError{ReferenceID: t.cfg.ReferenceID, Err: err})
		return
	}

	t.mu.Lock()
	t.resp = resp
	t.closer = &exchangeCloser{body: resp.Body, client: client}
	t.abort = abort
	t.bodyTimeout = client.Timeout()
	t.state = Completed
	t.mu.Unlock()

	t.logger.Debug("request completed", "status", resp.StatusCode, "elapsed", t.auditor.Elapsed())
}

// begin moves Created to Preparing unless the task was cancelled
func (t *Task) begin() bool {
	if t.cfg.Cancelled != nil && t.cfg.Cancelled() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.state = Preparing
	return true
}

func (t *Task) prepare() (*Client, []byte, error) {
	req := t.cfg.Request
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	body, err := req.Body()
	if err != nil {
		return nil, nil, err
	}

	opts := []ClientOption{
		WithTimeout(t.cfg.Timeout),
		WithAuditor(t.auditor),
		WithRootCAs(t.cfg.RootCAs),
		WithHTTP2(t.cfg.HTTP2),
	}

	if t.cfg.Proxy != nil {
		if err := t.cfg.Proxy.Validate(); err != nil {
			return nil, nil, err
		}
		opts = append(opts, WithProxy(*t.cfg.Proxy))
	}

	if req.Security != "" {
		trust, err := tlsaudit.NewTrustManager(t.cfg.TrustMode, t.auditor, t.cfg.RootCAs)
		if err != nil {
			return nil, nil, &tlsaudit.TLSInitializationError{Protocol: req.Security, Err: err}
		}

		var keys tlsaudit.KeyManager = tlsaudit.NewNoCredential(t.auditor)
		if t.cfg.Store != nil {
			cert, err := t.cfg.Store.Certificate(t.cfg.Alias)
			if err != nil {
				return nil, nil, err
			}
			keys = tlsaudit.NewStaticCredential(t.auditor, t.cfg.Alias, cert)
		}
		opts = append(opts, WithSecurity(req.Security, trust, keys))
	} else if t.cfg.Store != nil {
		t.logger.Warn("certificate store ignored, request names no security protocol", "store", t.cfg.Store.Path)
	}

	client, err := NewClient(opts...)
	if err != nil {
		return nil, nil, err
	}

	t.logger.Debug("client built",
		"method", req.Method,
		"endpoint", req.Endpoint,
		"audited", client.Audited(),
		"timeout", client.Timeout(),
	)
	return client, body, nil
}

func (t *Task) execute(ctx context.Context, client *Client, body []byte) (*http.Response, error) {
	t.auditor.Start()
	defer t.auditor.Stop()

	httpReq, err := t.cfg.Request.build(ctx, body)
	if err != nil {
		return nil, err
	}

	t.auditor.Appendf(true, "%s %s", httpReq.Method, httpReq.URL.Redacted())
	resp, err := client.Do(httpReq)
	if err != nil {
		t.auditor.Appendf(true, "request failed: %v", err)
		return nil, err
	}
	t.auditor.Appendf(true, "response: %s %s", resp.Proto, resp.Status)
	return resp, nil
}

func (t *Task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	t.state = Failed
	t.err = err
	t.mu.Unlock()

	t.logger.Debug("request failed", "error", err)
}

func (t *Task) finish() {
	t.mu.Lock()
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	close(t.done)
	for _, fn := range callbacks {
		fn(t)
	}
}

// postProcess reads the held response once and closes the exchange. It
// returns the state it observed; when that is Completed the response fields
// are final.
func (t *Task) postProcess() TaskState {
	state := t.State()
	if state == Completed {
		t.postOnce.Do(t.readResponse)
	}
	return state
}

// readResponse drains the body within the client timeout. A body that
// overruns it is kept truncated.
func (t *Task) readResponse() {
	t.mu.Lock()
	resp := t.resp
	closer := t.closer
	abort := t.abort
	timeout := t.bodyTimeout
	t.mu.Unlock()

	defer closer.Close()
	defer abort()

	t.statusLine = resp.Proto + " " + resp.Status

	var buf bytes.Buffer
	_ = resp.Header.Write(&buf)
	t.headers = buf.String()

	timer := time.AfterFunc(timeout, abort)
	data, err := io.ReadAll(resp.Body)
	overrun := !timer.Stop() && err != nil

	switch {
	case overrun:
		t.auditor.Appendf(false, "body truncated after %d bytes: not read within %s", len(data), timeout)
		t.logger.Warn("body truncated", "bytes", len(data), "timeout", timeout)
	case err != nil:
		t.auditor.Appendf(false, "reading body failed after %d bytes: %v", len(data), err)
		t.logger.Warn("reading body failed", "error", err)
	}
	t.body = string(data)
}

func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) ReferenceID() int64 {
	return t.cfg.ReferenceID
}

// IsComplete reports whether the task is terminal. On a completed task the
// first call reads the response.
func (t *Task) IsComplete() bool {
	return t.postProcess().Terminal()
}

func (t *Task) StatusLine() string {
	if t.postProcess() != Completed {
		return ""
	}
	return t.statusLine
}

func (t *Task) StatusCode() int {
	if t.State() != Completed {
		return 0
	}
	return t.resp.StatusCode
}

// Headers returns the response headers in wire format, sorted by name
func (t *Task) Headers() string {
	if t.postProcess() != Completed {
		return ""
	}
	return t.headers
}

func (t *Task) Body() string {
	if t.postProcess() != Completed {
		return ""
	}
	return t.body
}

func (t *Task) Elapsed() time.Duration {
	return t.auditor.Elapsed()
}

func (t *Task) ElapsedMillis() int64 {
	return t.auditor.ElapsedMillis()
}

// NeededClientAuth reports whether the server requested a client
// certificate, whether or not one was sent.
func (t *Task) NeededClientAuth() bool {
	return t.neededClientAuth.Load()
}

func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Task) Audit() *audit.Auditor {
	return t.auditor
}

func (t *Task) Request() Request {
	return t.cfg.Request
}

// Response snapshots the task. The envelope is only final once the task is
// terminal.
func (t *Task) Response() *Response {
	r := &Response{
		ReferenceID:      t.cfg.ReferenceID,
		State:            t.postProcess(),
		Elapsed:          t.Elapsed(),
		NeededClientAuth: t.NeededClientAuth(),
		Err:              t.Err(),
		Audit:            t.auditor.Lines(),
	}
	if r.State == Completed {
		r.StatusLine = t.statusLine
		r.StatusCode = t.resp.StatusCode
		r.Proto = t.resp.Proto
		r.Headers = t.headers
		r.Header = t.resp.Header.Clone()
		r.Body = t.body
	}
	return r
}

// exchangeCloser releases the response body and the client's connections
type exchangeCloser struct {
	body   io.Closer
	client *Client
}

func (c *exchangeCloser) Close() error {
	return errors.Join(c.body.Close(), c.client.Close())
}
