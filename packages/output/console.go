package output

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/capture"
	"github.com/abdul-hamid-achik/hitshot/packages/history"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/repeat"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer      io.Writer
	verbose     bool
	noColor     bool
	showHeaders bool
	showBody    bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer:   os.Stdout,
		showBody: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

// WithVerbose also prints headers and the audit trail
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func WithHeaders(show bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.showHeaders = show
	}
}

func WithBody(show bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.showBody = show
	}
}

func statusColor(resp *http.Response) *color.Color {
	switch {
	case resp.Failed():
		return color.New(color.FgRed, color.Bold)
	case resp.IsSuccess():
		return color.New(color.FgGreen, color.Bold)
	case resp.IsRedirect():
		return color.New(color.FgCyan, color.Bold)
	case resp.IsClientError():
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func (f *ConsoleFormatter) FormatResponse(req http.Request, resp *http.Response) {
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	status := statusColor(resp).SprintFunc()

	fmt.Fprintf(f.writer, "%s %s %s\n", faint(fmt.Sprintf("#%d", resp.ReferenceID)), strings.ToUpper(req.Method), req.Endpoint)

	if resp.Failed() {
		fmt.Fprintf(f.writer, "%s %s\n", status("FAILED"), cyan(fmt.Sprintf("(%dms)", resp.ElapsedMillis())))
		fmt.Fprintf(f.writer, "  %s\n", red(resp.ErrString()))
	} else {
		fmt.Fprintf(f.writer, "%s %s\n", status(resp.StatusLine), cyan(fmt.Sprintf("(%dms)", resp.ElapsedMillis())))
	}

	if resp.NeededClientAuth {
		fmt.Fprintf(f.writer, "  %s\n", yellow("server requested a client certificate"))
	}

	if (f.showHeaders || f.verbose) && resp.Headers != "" {
		fmt.Fprintf(f.writer, "%s\n", faint(strings.TrimRight(resp.Headers, "\r\n")))
	}

	if f.showBody && resp.Body != "" {
		body := resp.Body
		if resp.IsJSON() {
			body = capture.Pretty(body)
		}
		fmt.Fprintf(f.writer, "\n%s\n", body)
	}

	if f.verbose && len(resp.Audit) > 0 {
		fmt.Fprintf(f.writer, "\n%s\n", faint("Audit:"))
		for _, line := range resp.Audit {
			fmt.Fprintf(f.writer, "  %s\n", line)
		}
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatCaptures(referenceID int64, captures map[string]any) {
	if len(captures) == 0 {
		return
	}
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "%s\n", bold(fmt.Sprintf("Captures (#%d):", referenceID)))
	names := make([]string, 0, len(captures))
	for name := range captures {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(f.writer, "  %s = %s\n", name, formatValue(captures[name], 100))
	}
}

func (f *ConsoleFormatter) FormatSummary(s *repeat.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "%s\n", bold("Summary"))
	fmt.Fprintf(f.writer, "Requests: ")
	if n := s.Successful(); n > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d ok", n)))
	}
	if s.HTTPErrors > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d error status", s.HTTPErrors)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", s.Failed)))
	}
	fmt.Fprintf(f.writer, "%d total\n", s.Total)

	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	if len(codes) > 0 {
		parts := make([]string, len(codes))
		for i, code := range codes {
			parts[i] = fmt.Sprintf("%d×%d", code, s.StatusCodes[code])
		}
		fmt.Fprintf(f.writer, "Status:   %s\n", strings.Join(parts, " "))
	}

	fmt.Fprintf(f.writer, "Latency:  min %s  mean %s  p50 %s  p95 %s  p99 %s  max %s\n",
		ms(s.Min), ms(s.Mean), ms(s.P50), ms(s.P95), ms(s.P99), ms(s.Max))
	fmt.Fprintf(f.writer, "Time:     %dms (%.1f req/s)\n", s.Duration.Milliseconds(), s.RPS)

	for _, r := range s.Thresholds {
		symbol := green("✓")
		if !r.Passed {
			symbol = red("✗")
		}
		fmt.Fprintf(f.writer, "  %s %s %s (actual %s)\n", symbol, r.Name, r.Expected, r.Actual)
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatHistory(entries []history.Entry) {
	faint := color.New(color.Faint).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	if len(entries) == 0 {
		fmt.Fprintf(f.writer, "No history yet\n")
		return
	}

	for _, e := range entries {
		outcome := fmt.Sprintf("%d", e.StatusCode)
		if e.Error != "" {
			outcome = red("FAILED")
		}
		fmt.Fprintf(f.writer, "%s %s #%-4d %-6s %s %s %s\n",
			faint(e.RecordedAt.Local().Format(time.DateTime)),
			shortSession(e.SessionID),
			e.ReferenceID,
			e.Method,
			e.Endpoint,
			outcome,
			faint(fmt.Sprintf("%dms", e.ElapsedMillis)))
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitshot"), version)
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
