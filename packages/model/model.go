// Package model binds request descriptors to freshly started tasks.
package model

import (
	"crypto/x509"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/audit"
	"github.com/abdul-hamid-achik/hitshot/packages/bg"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/keystore"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
	"github.com/google/uuid"
)

// DefaultTimeout is the request timeout in seconds
const DefaultTimeout = 30

// Model creates tasks for one session
type Model struct {
	sessionID string
	counter   *Counter
	runner    bg.Runner
	timeout   atomic.Int64
	logger    *slog.Logger
	trustMode tlsaudit.TrustMode
	rootCAs   *x509.CertPool
	http2     bool
}

type Option func(*Model)

// WithCounter shares an id counter between models
func WithCounter(c *Counter) Option {
	return func(m *Model) {
		m.counter = c
	}
}

func WithRunner(r bg.Runner) Option {
	return func(m *Model) {
		m.runner = r
	}
}

// WithTimeout sets the default timeout in seconds
func WithTimeout(seconds int) Option {
	return func(m *Model) {
		m.timeout.Store(int64(seconds))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		m.logger = l
	}
}

func WithTrustMode(mode tlsaudit.TrustMode) Option {
	return func(m *Model) {
		m.trustMode = mode
	}
}

func WithRootCAs(pool *x509.CertPool) Option {
	return func(m *Model) {
		m.rootCAs = pool
	}
}

func WithHTTP2(enabled bool) Option {
	return func(m *Model) {
		m.http2 = enabled
	}
}

func New(opts ...Option) *Model {
	m := &Model{
		sessionID: uuid.NewString(),
		counter:   &Counter{},
		runner:    bg.Async{},
		logger:    slog.New(slog.DiscardHandler),
		trustMode: tlsaudit.TrustStrict,
	}
	m.timeout.Store(DefaultTimeout)

	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With("session", m.sessionID)
	return m
}

// RequestOptions are the optional parts of CreateRequest
type RequestOptions struct {
	Proxy *http.Proxy
	Store *keystore.Store
	Alias string
	// Timeout overrides the model default when positive, in seconds
	Timeout   int
	Auditor   *audit.Auditor
	Cancelled func() bool
}

// CreateRequest allocates a reference id, builds a task for req and starts
// it on the model's runner.
func (m *Model) CreateRequest(req http.Request, opts RequestOptions) *http.Task {
	timeout := m.Timeout()
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	ref := m.counter.Next()
	task := http.NewTask(http.TaskConfig{
		ReferenceID: ref,
		Auditor:     opts.Auditor,
		Timeout:     time.Duration(timeout) * time.Second,
		Request:     req,
		Proxy:       opts.Proxy,
		Store:       opts.Store,
		Alias:       opts.Alias,
		TrustMode:   m.trustMode,
		RootCAs:     m.rootCAs,
		HTTP2:       m.http2,
		Cancelled:   opts.Cancelled,
		Logger:      m.logger,
	})

	m.logger.Debug("request created", "ref", ref, "method", req.Method, "endpoint", req.Endpoint)
	task.Start(m.runner)
	return task
}

// SetTimeout changes the default timeout, in seconds, for later requests
func (m *Model) SetTimeout(seconds int) {
	m.timeout.Store(int64(seconds))
}

func (m *Model) Timeout() int {
	return int(m.timeout.Load())
}

func (m *Model) SessionID() string {
	return m.sessionID
}

func (m *Model) LastReferenceID() int64 {
	return m.counter.Last()
}
