package cmd

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/capture"
	"github.com/abdul-hamid-achik/hitshot/packages/core/config"
	"github.com/abdul-hamid-achik/hitshot/packages/history"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/keystore"
	"github.com/abdul-hamid-achik/hitshot/packages/model"
	"github.com/abdul-hamid-achik/hitshot/packages/output"
	"github.com/abdul-hamid-achik/hitshot/packages/repeat"
	"github.com/abdul-hamid-achik/hitshot/packages/tlsaudit"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send [request]",
	Short: "Send a request and report the exchange",
	Long: `Send one request, named in the workspace or described with flags, and
print the status line, headers, body and the TLS audit trail.

Examples:
  hitshot send --url https://api.example.com/health
  hitshot send health -v
  hitshot send --url https://mtls.local/ -s TLSv1.2 --keystore client.p12 --keystore-password changeit
  hitshot send --url https://10.0.0.5/ -s TLS --trust audit-only -v
  hitshot send create -d @item.json -H "X-Trace: 1" --capture id=body:data.id
  hitshot send health --repeat 100 --rate 20 --concurrency 5 --threshold "p95<200ms,errors<1%"
  hitshot send health --watch`,
	Args: func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	},
	RunE: sendCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for workspace watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	sendURLFlag         string
	sendMethodFlag      string
	sendHeaderFlags     []string
	sendDataFlag        string
	sendContentTypeFlag string
	sendBase64Flag      bool
	sendUserFlag        string
	sendQueryFlags      []string
	sendTimeoutFlag     int

	// TLS flags
	sendSecurityFlag         string
	sendTrustFlag            string
	sendCAFlag               string
	sendKeystoreFlag         string
	sendKeystorePasswordFlag string
	sendAliasFlag            string
	sendHTTP2Flag            bool

	// Network flags
	sendProxyFlag   string
	sendNoProxyFlag bool

	// Repeat flags
	sendRepeatFlag      int
	sendRateFlag        float64
	sendConcurrencyFlag int
	sendThresholdFlag   string
	sendMetricsFileFlag string

	// Output flags
	sendOutputFlag     string
	sendOutputFileFlag string
	sendIncludeFlag    bool
	sendNoBodyFlag     bool
	sendCaptureFlags   []string
	sendSelectFlag     string
	sendHistoryFlag    string
	sendNoHistoryFlag  bool
	sendWatchFlag      bool
)

func init() {
	// Request flags
	sendCmd.Flags().StringVarP(&sendURLFlag, "url", "u", "", "Endpoint URL (overrides the named request's)")
	sendCmd.Flags().StringVarP(&sendMethodFlag, "method", "X", "", "HTTP method (default GET)")
	sendCmd.Flags().StringArrayVarP(&sendHeaderFlags, "header", "H", nil, "Request header \"Name: value\" (repeatable)")
	sendCmd.Flags().StringVarP(&sendDataFlag, "data", "d", "", "Request body, or @file to read it from a file")
	sendCmd.Flags().StringVar(&sendContentTypeFlag, "content-type", "", "Body content type")
	sendCmd.Flags().BoolVar(&sendBase64Flag, "base64", false, "Body is base64 and is decoded before sending")
	sendCmd.Flags().StringVarP(&sendUserFlag, "user", "U", "", "Basic auth credentials user:password")
	sendCmd.Flags().StringArrayVarP(&sendQueryFlags, "query", "q", nil, "Query parameter key=value (repeatable)")
	sendCmd.Flags().IntVarP(&sendTimeoutFlag, "timeout", "t", getEnvInt("HITSHOT_TIMEOUT", 0), "Request timeout in seconds (env: HITSHOT_TIMEOUT)")

	// TLS flags
	sendCmd.Flags().StringVarP(&sendSecurityFlag, "security", "s", getEnvString("HITSHOT_SECURITY", ""), "Audit the TLS handshake using this protocol: TLS, TLSv1, TLSv1.1, TLSv1.2, TLSv1.3 (env: HITSHOT_SECURITY)")
	sendCmd.Flags().StringVar(&sendTrustFlag, "trust", getEnvString("HITSHOT_TRUST", ""), "Server trust mode: strict, audit-only (UNSAFE) (env: HITSHOT_TRUST)")
	sendCmd.Flags().StringVar(&sendCAFlag, "ca", getEnvString("HITSHOT_CA_CERT", ""), "PEM bundle of trusted roots (env: HITSHOT_CA_CERT)")
	sendCmd.Flags().StringVar(&sendKeystoreFlag, "keystore", getEnvString("HITSHOT_KEYSTORE", ""), "Client certificate store: a workspace keystore name or a .p12/.pem path (env: HITSHOT_KEYSTORE)")
	sendCmd.Flags().StringVar(&sendKeystorePasswordFlag, "keystore-password", getEnvString("HITSHOT_KEYSTORE_PASSWORD", ""), "Password of a keystore given by path (env: HITSHOT_KEYSTORE_PASSWORD)")
	sendCmd.Flags().StringVar(&sendAliasFlag, "alias", "", "Client certificate alias in the keystore")
	sendCmd.Flags().BoolVar(&sendHTTP2Flag, "http2", getEnvBool("HITSHOT_HTTP2", false), "Negotiate HTTP/2 over TLS (env: HITSHOT_HTTP2)")

	// Network flags
	sendCmd.Flags().StringVar(&sendProxyFlag, "proxy", getEnvString("HITSHOT_PROXY", ""), "Proxy: a workspace proxy name or [user[:pass]@]host:port (env: HITSHOT_PROXY)")
	sendCmd.Flags().BoolVar(&sendNoProxyFlag, "no-proxy", false, "Ignore every configured proxy")

	// Repeat flags
	sendCmd.Flags().IntVarP(&sendRepeatFlag, "repeat", "n", getEnvInt("HITSHOT_REPEAT", 1), "Send the request this many times (env: HITSHOT_REPEAT)")
	sendCmd.Flags().Float64VarP(&sendRateFlag, "rate", "r", getEnvFloat("HITSHOT_RATE", 0), "Max requests per second when repeating, 0 for unlimited (env: HITSHOT_RATE)")
	sendCmd.Flags().IntVar(&sendConcurrencyFlag, "concurrency", getEnvInt("HITSHOT_CONCURRENCY", 1), "Max requests in flight when repeating (env: HITSHOT_CONCURRENCY)")
	sendCmd.Flags().StringVar(&sendThresholdFlag, "threshold", "", "Pass/fail thresholds when repeating (e.g., \"p95<200ms,errors<1%\")")
	sendCmd.Flags().StringVar(&sendMetricsFileFlag, "metrics-file", "", "Write the repeat summary in Prometheus text format to this file")

	// Output flags
	sendCmd.Flags().StringVarP(&sendOutputFlag, "output", "o", getEnvString("HITSHOT_OUTPUT", "console"), "Output format: console, json (env: HITSHOT_OUTPUT)")
	sendCmd.Flags().StringVar(&sendOutputFileFlag, "output-file", getEnvString("HITSHOT_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITSHOT_OUTPUT_FILE)")
	sendCmd.Flags().BoolVarP(&sendIncludeFlag, "include", "i", false, "Print response headers")
	sendCmd.Flags().BoolVar(&sendNoBodyFlag, "no-body", false, "Do not print the response body")
	sendCmd.Flags().StringArrayVar(&sendCaptureFlags, "capture", nil, "Capture name=source[:path], source is body, header, status or elapsed (repeatable)")
	sendCmd.Flags().StringVar(&sendSelectFlag, "select", "", "Print only the value at this JSON path of the body")
	sendCmd.Flags().StringVar(&sendHistoryFlag, "history", getEnvString("HITSHOT_HISTORY", ""), "History database path (env: HITSHOT_HISTORY)")
	sendCmd.Flags().BoolVar(&sendNoHistoryFlag, "no-history", getEnvBool("HITSHOT_NO_HISTORY", false), "Do not record the exchange (env: HITSHOT_NO_HISTORY)")
	sendCmd.Flags().BoolVarP(&sendWatchFlag, "watch", "w", false, "Send again whenever the workspace file changes")

	registerSendCompletions()
}

// sendPlan is one descriptor with everything needed to fire it
type sendPlan struct {
	name    string
	request http.Request
	options model.RequestOptions
}

// sender fires plans. A watch session reuses one sender so reference ids
// keep increasing across re-sends.
type sender struct {
	cmd      *cobra.Command
	out      io.Writer
	logger   *slog.Logger
	counter  *model.Counter
	captures []capture.Capture

	// set by each send
	formatter Formatter
	history   *history.Store
	verbose   bool
}

func sendCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var out io.Writer = cmd.OutOrStdout()
	if sendOutputFileFlag != "" {
		f, err := os.Create(sendOutputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	s := &sender{
		cmd:     cmd,
		out:     out,
		logger:  newLogger(cmd.ErrOrStderr(), verboseFlag),
		counter: &model.Counter{},
	}
	for _, raw := range sendCaptureFlags {
		c, err := capture.ParseCapture(raw)
		if err != nil {
			return usageError(err)
		}
		s.captures = append(s.captures, c)
	}

	code, workspace, err := s.send(ctx, args)
	if err != nil {
		return err
	}
	if !sendWatchFlag {
		return exitWith(code)
	}
	if workspace == "" {
		return usageError(errors.New("--watch needs a workspace file (see hitshot init)"))
	}

	return s.watch(ctx, workspace, func() {
		if _, _, err := s.send(ctx, args); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
	})
}

func exitWith(code int) error {
	if code == ExitSuccess {
		return nil
	}
	return &ExitError{Code: code}
}

// send loads the workspace, fires the plan once or repeatedly and returns
// the exit code with the workspace file it used.
func (s *sender) send(ctx context.Context, args []string) (int, string, error) {
	start := time.Now()

	ws, err := loadWorkspace()
	if err != nil {
		return 0, "", err
	}

	plan, err := buildPlan(ws, args)
	if err != nil {
		return 0, ws.Path, err
	}

	m, err := s.newModel(ws)
	if err != nil {
		return 0, ws.Path, err
	}

	s.verbose = verboseFlag > 0 || ws.GetVerbose()
	s.formatter, err = newFormatter(formatterOptions{
		format:  sendOutputFlag,
		writer:  s.out,
		verbose: s.verbose,
		noColor: noColorFlag || ws.GetNoColor(),
		headers: sendIncludeFlag,
		noBody:  sendNoBodyFlag,
	})
	if err != nil {
		return 0, ws.Path, err
	}
	if s.verbose {
		s.formatter.FormatHeader(version)
	}

	s.history = s.openHistory(ws)
	if s.history != nil {
		defer s.history.Close()
	}

	plan.options.Cancelled = func() bool { return ctx.Err() != nil }

	var code int
	if sendRepeatFlag > 1 {
		code, err = s.fireRepeat(ctx, m, plan)
	} else {
		code = s.fireOnce(ctx, m, plan)
	}
	if err != nil {
		return 0, ws.Path, err
	}

	if sendSelectFlag != "" && sendRepeatFlag <= 1 {
		return code, ws.Path, nil
	}
	if err := flush(s.formatter, time.Since(start)); err != nil {
		return 0, ws.Path, err
	}
	return code, ws.Path, nil
}

func (s *sender) newModel(ws *config.Config) (*model.Model, error) {
	trust := ws.Defaults.TrustMode
	if sendTrustFlag != "" {
		trust = sendTrustFlag
	}
	mode, err := tlsaudit.ParseTrustMode(trust)
	if err != nil {
		return nil, usageError(err)
	}
	if mode == tlsaudit.TrustAuditOnly {
		s.logger.Warn("audit-only trust mode accepts any server certificate; use it for diagnostics only")
	}

	var pool *x509.CertPool
	if sendCAFlag != "" {
		pool, err = config.LoadCertPool(sendCAFlag)
	} else {
		pool, err = ws.RootCAs()
	}
	if err != nil {
		return nil, configError(err)
	}

	return model.New(
		model.WithCounter(s.counter),
		model.WithTimeout(ws.Defaults.Timeout),
		model.WithLogger(s.logger),
		model.WithTrustMode(mode),
		model.WithRootCAs(pool),
		model.WithHTTP2(sendHTTP2Flag || ws.GetHTTP2()),
	), nil
}

// openHistory opens the history database unless disabled. A database that
// cannot be opened is logged and skipped.
func (s *sender) openHistory(ws *config.Config) *history.Store {
	if sendNoHistoryFlag {
		return nil
	}
	path := ws.Defaults.History
	if sendHistoryFlag != "" {
		path = sendHistoryFlag
	} else {
		path = ws.ResolvePath(path)
	}
	if path == "" {
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		s.logger.Warn("history disabled", "path", path, "err", err)
		return nil
	}
	return store
}

func (s *sender) record(m *model.Model, req http.Request, resp *http.Response) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(context.Background(), m.SessionID(), req, resp); err != nil {
		s.logger.Warn("history not recorded", "ref", resp.ReferenceID, "err", err)
	}
}

func (s *sender) fireOnce(ctx context.Context, m *model.Model, plan *sendPlan) int {
	task := m.CreateRequest(plan.request, plan.options)
	if err := task.Wait(ctx); err != nil && ctx.Err() != nil {
		task.Cancel()
		<-task.Done()
	}

	resp := task.Response()
	s.record(m, plan.request, resp)
	s.logger.Info("request finished", "name", plan.name, "ref", resp.ReferenceID, "state", resp.State, "elapsed", resp.Elapsed)

	if sendSelectFlag != "" && !resp.Failed() {
		value, ok := capture.Query(resp.Body, sendSelectFlag)
		if !ok {
			s.formatter.FormatError(fmt.Errorf("no value at %q", sendSelectFlag))
			return ExitRequestFailure
		}
		fmt.Fprintln(s.out, value)
		return responseExitCode(resp)
	}

	s.formatter.FormatResponse(plan.request, resp)
	if len(s.captures) > 0 {
		s.formatter.FormatCaptures(resp.ReferenceID, capture.ExtractAll(resp, s.captures))
	}
	return responseExitCode(resp)
}

func (s *sender) fireRepeat(ctx context.Context, m *model.Model, plan *sendPlan) (int, error) {
	thresholds, err := repeat.ParseThresholds(sendThresholdFlag)
	if err != nil {
		return 0, usageError(err)
	}
	cfg := &repeat.Config{
		Count:       sendRepeatFlag,
		Rate:        sendRateFlag,
		Concurrency: sendConcurrencyFlag,
		Thresholds:  thresholds,
	}
	if err := cfg.Validate(); err != nil {
		return 0, usageError(err)
	}

	code := ExitSuccess
	runner := repeat.NewRunner(cfg, m,
		repeat.WithLogger(s.logger),
		repeat.WithOnResponse(func(resp *http.Response) {
			s.record(m, plan.request, resp)
			if s.verbose {
				s.formatter.FormatResponse(plan.request, resp)
			}
			code = max(code, responseExitCode(resp))
		}),
	)

	summary, err := runner.Run(ctx, plan.request, plan.options)
	if summary == nil {
		return 0, err
	}
	s.formatter.FormatSummary(summary)
	if sendMetricsFileFlag != "" {
		if werr := writeMetricsFile(sendMetricsFileFlag, plan.label(), summary); werr != nil {
			s.logger.Warn("metrics file not written", "path", sendMetricsFileFlag, "err", werr)
		}
	}

	if err != nil || !summary.Passed() {
		code = max(code, ExitRequestFailure)
	}
	return code, nil
}

// label names the plan in metrics: the request name or its endpoint
func (p *sendPlan) label() string {
	if p.name != "" {
		return p.name
	}
	return p.request.Endpoint
}

func writeMetricsFile(path, request string, summary *repeat.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := output.WritePrometheus(f, request, summary); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// buildPlan resolves the named request, if any, and applies flag overrides
func buildPlan(ws *config.Config, args []string) (*sendPlan, error) {
	var spec config.RequestSpec
	plan := &sendPlan{}

	if len(args) == 1 {
		plan.name = args[0]
		named, ok := ws.Requests[plan.name]
		if !ok {
			return nil, usageError(fmt.Errorf("%w: %q (see hitshot list)", config.ErrUnknownRequest, plan.name))
		}
		spec = named
	}
	spec.Headers = slices.Clone(spec.Headers)
	spec.Query = maps.Clone(spec.Query)

	if sendURLFlag != "" {
		spec.URL = sendURLFlag
	}
	if spec.URL == "" {
		return nil, usageError(errors.New("a request name or --url is required"))
	}
	if sendMethodFlag != "" {
		spec.Method = sendMethodFlag
	}
	if sendDataFlag != "" {
		body, err := readData(sendDataFlag)
		if err != nil {
			return nil, usageError(err)
		}
		spec.Body = body
	}
	if sendContentTypeFlag != "" {
		spec.ContentType = sendContentTypeFlag
	}
	if sendBase64Flag {
		spec.Base64 = true
	}
	if sendSecurityFlag != "" {
		spec.Security = sendSecurityFlag
	}
	if sendUserFlag != "" {
		user, pass, _ := strings.Cut(sendUserFlag, ":")
		spec.Auth = &config.BasicAuth{Username: user, Password: pass}
	}
	if sendTimeoutFlag > 0 {
		spec.Timeout = sendTimeoutFlag
	}
	if sendAliasFlag != "" {
		spec.Alias = sendAliasFlag
	}

	for _, h := range sendHeaderFlags {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, usageError(fmt.Errorf("invalid header %q: expected \"Name: value\"", h))
		}
		spec.Headers = append(spec.Headers, http.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	for _, q := range sendQueryFlags {
		key, value, ok := strings.Cut(q, "=")
		if !ok || key == "" {
			return nil, usageError(fmt.Errorf("invalid query parameter %q: expected key=value", q))
		}
		if spec.Query == nil {
			spec.Query = make(map[string]string)
		}
		spec.Query[key] = value
	}

	proxy, err := resolveProxy(ws, spec)
	if err != nil {
		return nil, err
	}

	store, alias, err := resolveKeystore(ws, spec)
	if err != nil {
		return nil, err
	}

	plan.request = ws.BuildRequest(spec)
	plan.options = model.RequestOptions{
		Proxy:   proxy,
		Store:   store,
		Alias:   alias,
		Timeout: spec.Timeout,
	}
	return plan, nil
}

func resolveProxy(ws *config.Config, spec config.RequestSpec) (*http.Proxy, error) {
	switch {
	case sendNoProxyFlag:
		return nil, nil
	case sendProxyFlag == "":
		proxy, err := ws.ProxyFor(spec)
		if err != nil {
			return nil, configError(err)
		}
		return proxy, nil
	}

	if _, ok := ws.Proxies[sendProxyFlag]; ok {
		proxy, err := ws.Proxy(sendProxyFlag)
		if err != nil {
			return nil, configError(err)
		}
		return proxy, nil
	}

	proxy, err := http.ParseProxy(sendProxyFlag)
	if err != nil {
		return nil, usageError(err)
	}
	return &proxy, nil
}

func resolveKeystore(ws *config.Config, spec config.RequestSpec) (*keystore.Store, string, error) {
	if sendKeystoreFlag != "" {
		if _, ok := ws.Keystores[sendKeystoreFlag]; !ok {
			return keystore.New(sendKeystoreFlag, sendKeystorePasswordFlag), spec.Alias, nil
		}
		spec.Keystore = sendKeystoreFlag
	}

	store, alias, err := ws.KeystoreFor(spec)
	if err != nil {
		return nil, "", configError(err)
	}
	return store, alias, nil
}

// readData returns s, or the contents of the file when s is @path
func readData(s string) (string, error) {
	path, ok := strings.CutPrefix(s, "@")
	if !ok {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}

// watch calls fire after every write to the workspace file until ctx ends
func (s *sender) watch(ctx context.Context, path string, fire func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	fmt.Fprintf(s.cmd.ErrOrStderr(), "\nWatching %s for changes... (press Ctrl+C to stop)\n\n", path)

	var mu sync.Mutex
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				mu.Lock()
				defer mu.Unlock()

				fmt.Fprintf(s.cmd.ErrOrStderr(), "\nFile changed: %s\nSending again...\n\n", event.Name)
				fire()
				fmt.Fprintf(s.cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "err", err)
		}
	}
}
