package output

import (
	"encoding/json"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/history"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/repeat"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Responses []JSONResponse `json:"responses,omitempty"`
	Summary   *JSONSummary   `json:"summary,omitempty"`
	History   []JSONHistory  `json:"history,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
	Duration  float64        `json:"duration"`
	Time      string         `json:"time"`
}

// JSONRequest represents request details
type JSONRequest struct {
	Method   string `json:"method"`
	URL      string `json:"url"`
	Security string `json:"security,omitempty"`
}

// JSONResponse represents one finished task
type JSONResponse struct {
	ReferenceID      int64               `json:"referenceId"`
	State            string              `json:"state"`
	Request          JSONRequest         `json:"request"`
	StatusCode       int                 `json:"statusCode,omitempty"`
	Status           string              `json:"status,omitempty"`
	Headers          map[string][]string `json:"headers,omitempty"`
	Body             any                 `json:"body,omitempty"`
	Duration         float64             `json:"duration"`
	NeededClientAuth bool                `json:"neededClientAuth"`
	Error            string              `json:"error,omitempty"`
	Audit            []string            `json:"audit,omitempty"`
	Captures         map[string]any      `json:"captures,omitempty"`
}

// JSONSummary represents a repeat run summary
type JSONSummary struct {
	Total       int64            `json:"total"`
	Completed   int64            `json:"completed"`
	Failed      int64            `json:"failed"`
	HTTPErrors  int64            `json:"httpErrors"`
	RPS         float64          `json:"rps"`
	ErrorRate   float64          `json:"errorRate"`
	P50         float64          `json:"p50"`
	P95         float64          `json:"p95"`
	P99         float64          `json:"p99"`
	Min         float64          `json:"min"`
	Max         float64          `json:"max"`
	Mean        float64          `json:"mean"`
	StatusCodes map[string]int64 `json:"statusCodes,omitempty"`
	Thresholds  []JSONThreshold  `json:"thresholds,omitempty"`
	Passed      bool             `json:"passed"`
}

type JSONThreshold struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// JSONHistory represents one history entry
type JSONHistory struct {
	SessionID   string  `json:"sessionId"`
	ReferenceID int64   `json:"referenceId"`
	RecordedAt  string  `json:"recordedAt"`
	Method      string  `json:"method"`
	URL         string  `json:"url"`
	State       string  `json:"state"`
	StatusCode  int     `json:"statusCode,omitempty"`
	Duration    float64 `json:"duration"`
	Error       string  `json:"error,omitempty"`
}

// JSONFormatter accumulates output and writes one document on Flush
type JSONFormatter struct {
	writer  io.Writer
	verbose bool
	output  JSONOutput
	index   map[int64]int
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		index:  make(map[int64]int),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// JSONWithVerbose includes the audit trail of every response
func JSONWithVerbose(v bool) JSONOption {
	return func(f *JSONFormatter) {
		f.verbose = v
	}
}

func (f *JSONFormatter) FormatResponse(req http.Request, resp *http.Response) {
	r := JSONResponse{
		ReferenceID: resp.ReferenceID,
		State:       resp.State.String(),
		Request: JSONRequest{
			Method:   req.Method,
			URL:      req.Endpoint,
			Security: req.Security,
		},
		StatusCode:       resp.StatusCode,
		Status:           resp.StatusLine,
		Headers:          resp.Header,
		Duration:         float64(resp.ElapsedMillis()),
		NeededClientAuth: resp.NeededClientAuth,
		Error:            resp.ErrString(),
	}

	if resp.Body != "" {
		if resp.IsJSON() && json.Valid([]byte(resp.Body)) {
			r.Body = json.RawMessage(resp.Body)
		} else {
			r.Body = resp.Body
		}
	}
	if f.verbose {
		r.Audit = resp.Audit
	}

	f.index[resp.ReferenceID] = len(f.output.Responses)
	f.output.Responses = append(f.output.Responses, r)
}

// FormatCaptures attaches captures to the response with the same reference id
func (f *JSONFormatter) FormatCaptures(referenceID int64, captures map[string]any) {
	i, ok := f.index[referenceID]
	if !ok || len(captures) == 0 {
		return
	}
	f.output.Responses[i].Captures = captures
}

func (f *JSONFormatter) FormatSummary(s *repeat.Summary) {
	summary := &JSONSummary{
		Total:      s.Total,
		Completed:  s.Completed,
		Failed:     s.Failed,
		HTTPErrors: s.HTTPErrors,
		RPS:        s.RPS,
		ErrorRate:  s.ErrorRate,
		P50:        millis(s.P50),
		P95:        millis(s.P95),
		P99:        millis(s.P99),
		Min:        millis(s.Min),
		Max:        millis(s.Max),
		Mean:       millis(s.Mean),
		Passed:     s.Passed(),
	}
	if len(s.StatusCodes) > 0 {
		summary.StatusCodes = make(map[string]int64, len(s.StatusCodes))
		for code, n := range s.StatusCodes {
			summary.StatusCodes[strconv.Itoa(code)] = n
		}
	}
	for _, t := range s.Thresholds {
		summary.Thresholds = append(summary.Thresholds, JSONThreshold{
			Name:     t.Name,
			Passed:   t.Passed,
			Expected: t.Expected,
			Actual:   t.Actual,
		})
	}
	f.output.Summary = summary
}

func (f *JSONFormatter) FormatHistory(entries []history.Entry) {
	for _, e := range entries {
		f.output.History = append(f.output.History, JSONHistory{
			SessionID:   e.SessionID,
			ReferenceID: e.ReferenceID,
			RecordedAt:  e.RecordedAt.Format(time.RFC3339),
			Method:      e.Method,
			URL:         e.Endpoint,
			State:       e.State,
			StatusCode:  e.StatusCode,
			Duration:    float64(e.ElapsedMillis),
			Error:       e.Error,
		})
	}
}

func (f *JSONFormatter) FormatError(err error) {
	f.output.Errors = append(f.output.Errors, err.Error())
}

func (f *JSONFormatter) FormatHeader(version string) {
	// No header needed for JSON output
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	f.output.Duration = float64(totalDuration.Milliseconds())
	f.output.Time = time.Now().Format(time.RFC3339)

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(f.output)
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
