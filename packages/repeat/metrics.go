package repeat

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
)

const maxLatencyUs = 60_000_000

// Metrics aggregates the responses of a repeat run
type Metrics struct {
	mu sync.Mutex

	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	// completed responses with a status of 400 or more
	httpErrors atomic.Int64

	// latency in microseconds
	histogram *hdrhistogram.Histogram
	statuses  map[int]int64

	startTime time.Time
	endTime   time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(1, maxLatencyUs, 3),
		statuses:  make(map[int]int64),
	}
}

func (m *Metrics) Start() {
	m.startTime = time.Now()
}

func (m *Metrics) Stop() {
	m.endTime = time.Now()
}

// Record adds one finished task envelope
func (m *Metrics) Record(resp *http.Response) {
	m.total.Add(1)

	if resp.Failed() {
		m.failed.Add(1)
	} else {
		m.completed.Add(1)
		if resp.StatusCode >= 400 {
			m.httpErrors.Add(1)
		}
	}

	latencyUs := resp.Elapsed.Microseconds()
	if latencyUs < 1 {
		latencyUs = 1
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}

	m.mu.Lock()
	_ = m.histogram.RecordValue(latencyUs)
	if !resp.Failed() {
		m.statuses[resp.StatusCode]++
	}
	m.mu.Unlock()
}

// Summary is the final outcome of a repeat run
type Summary struct {
	Duration   time.Duration
	Total      int64
	Completed  int64
	Failed     int64
	HTTPErrors int64

	RPS         float64
	SuccessRate float64
	ErrorRate   float64

	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration

	StatusCodes map[int]int64
	Thresholds  []ThresholdResult
}

// Successful counts completed tasks that did not answer with an error status
func (s *Summary) Successful() int64 {
	return s.Completed - s.HTTPErrors
}

// Passed reports whether every threshold held
func (s *Summary) Passed() bool {
	for _, r := range s.Thresholds {
		if !r.Passed {
			return false
		}
	}
	return true
}

// ThresholdResult is the outcome of one threshold check
type ThresholdResult struct {
	Name     string
	Passed   bool
	Expected string
	Actual   string
}

func (m *Metrics) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	s := &Summary{
		Duration:    duration,
		Total:       m.total.Load(),
		Completed:   m.completed.Load(),
		Failed:      m.failed.Load(),
		HTTPErrors:  m.httpErrors.Load(),
		StatusCodes: make(map[int]int64, len(m.statuses)),
	}

	if duration.Seconds() > 0 {
		s.RPS = float64(s.Total) / duration.Seconds()
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Successful()) / float64(s.Total)
		s.ErrorRate = float64(s.Failed+s.HTTPErrors) / float64(s.Total)
	}
	if s.Total > 0 {
		s.P50 = microseconds(m.histogram.ValueAtQuantile(50))
		s.P95 = microseconds(m.histogram.ValueAtQuantile(95))
		s.P99 = microseconds(m.histogram.ValueAtQuantile(99))
		s.Min = microseconds(m.histogram.Min())
		s.Max = microseconds(m.histogram.Max())
		s.Mean = microseconds(int64(m.histogram.Mean()))
	}
	for code, n := range m.statuses {
		s.StatusCodes[code] = n
	}

	return s
}

func microseconds(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

// Evaluate checks t against s and stores the results on s
func (s *Summary) Evaluate(t Thresholds) []ThresholdResult {
	var results []ThresholdResult

	latency := func(name string, limit, actual time.Duration) {
		if limit <= 0 {
			return
		}
		results = append(results, ThresholdResult{
			Name:     name,
			Passed:   actual <= limit,
			Expected: "<= " + limit.String(),
			Actual:   actual.String(),
		})
	}

	latency("p50", t.P50, s.P50)
	latency("p95", t.P95, s.P95)
	latency("p99", t.P99, s.P99)
	latency("max", t.MaxLatency, s.Max)

	if t.ErrorRate > 0 {
		results = append(results, ThresholdResult{
			Name:     "errors",
			Passed:   s.ErrorRate <= t.ErrorRate,
			Expected: formatPercent(t.ErrorRate, "<= "),
			Actual:   formatPercent(s.ErrorRate, ""),
		})
	}

	s.Thresholds = results
	return results
}

func formatPercent(f float64, prefix string) string {
	return prefix + strconv.FormatFloat(f*100, 'f', 2, 64) + "%"
}
