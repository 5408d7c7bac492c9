package output

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitshot/packages/repeat"
)

// WritePrometheus writes a repeat summary in the Prometheus text exposition
// format, labelled with the request name. Durations are in milliseconds.
func WritePrometheus(w io.Writer, request string, s *repeat.Summary) error {
	pw := &promWriter{w: w, label: label("request", request)}

	pw.metric("hitshot_requests_total", "counter", "Requests sent", "", float64(s.Total))
	pw.metric("hitshot_requests_completed_total", "counter", "Requests that received a response", "", float64(s.Completed))
	pw.metric("hitshot_requests_failed_total", "counter", "Requests that failed before a response", "", float64(s.Failed))
	pw.metric("hitshot_requests_error_status_total", "counter", "Responses with status 400 or above", "", float64(s.HTTPErrors))
	pw.metric("hitshot_requests_per_second", "gauge", "Achieved request rate", "", s.RPS)

	pw.header("hitshot_request_duration_ms", "gauge", "Request latency in milliseconds")
	for _, q := range []struct {
		name  string
		value float64
	}{
		{"min", millis(s.Min)},
		{"0.50", millis(s.P50)},
		{"0.95", millis(s.P95)},
		{"0.99", millis(s.P99)},
		{"max", millis(s.Max)},
		{"mean", millis(s.Mean)},
	} {
		pw.sample("hitshot_request_duration_ms", label("quantile", q.name), q.value)
	}

	if len(s.StatusCodes) > 0 {
		pw.header("hitshot_requests_by_status_total", "counter", "Responses by status code")
		codes := make([]int, 0, len(s.StatusCodes))
		for code := range s.StatusCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			pw.sample("hitshot_requests_by_status_total", label("status", strconv.Itoa(code)), float64(s.StatusCodes[code]))
		}
	}

	if len(s.Thresholds) > 0 {
		pw.header("hitshot_threshold_passed", "gauge", "1 when the threshold held")
		for _, t := range s.Thresholds {
			v := 0.0
			if t.Passed {
				v = 1
			}
			pw.sample("hitshot_threshold_passed", label("threshold", t.Name), v)
		}
	}
	return pw.err
}

type promWriter struct {
	w     io.Writer
	label string
	err   error
}

func (p *promWriter) header(name, kind, help string) {
	p.printf("# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func (p *promWriter) metric(name, kind, help, labels string, v float64) {
	p.header(name, kind, help)
	p.sample(name, labels, v)
}

func (p *promWriter) sample(name, labels string, v float64) {
	all := p.label
	if labels != "" {
		all += "," + labels
	}
	p.printf("%s{%s} %g\n", name, all, v)
}

func (p *promWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func label(name, value string) string {
	return name + `="` + labelEscaper.Replace(value) + `"`
}
