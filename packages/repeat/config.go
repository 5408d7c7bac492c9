// Package repeat fires one request descriptor many times through the request
// model and summarises the outcome. Each firing is an independent task with
// its own reference id; pacing is controlled by a rate limit and a
// concurrency bound.
package repeat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config holds the pacing of a repeat run
type Config struct {
	Count       int
	Rate        float64 // requests per second, 0 for unlimited
	Concurrency int     // max tasks in flight
	Thresholds  Thresholds
}

// Thresholds are pass/fail limits checked against the summary
type Thresholds struct {
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	MaxLatency time.Duration
	ErrorRate  float64 // 0.0 - 1.0
}

func (t Thresholds) IsZero() bool {
	return t == Thresholds{}
}

func DefaultConfig() *Config {
	return &Config{
		Count:       1,
		Concurrency: 1,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Count < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	if c.Rate < 0 {
		return fmt.Errorf("rate cannot be negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Thresholds.ErrorRate < 0 || c.Thresholds.ErrorRate > 1 {
		return fmt.Errorf("error rate threshold must be between 0 and 1")
	}
	return nil
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*(<=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "p95<200ms,errors<1%"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}

	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	matches := thresholdPattern.FindStringSubmatch(part)
	if len(matches) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}

	metric := strings.ToLower(matches[1])
	valueStr := strings.TrimSpace(matches[3])

	switch metric {
	case "p50", "p95", "p99", "max", "maxlatency":
		d, err := time.ParseDuration(valueStr)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %s", metric, valueStr)
		}
		switch metric {
		case "p50":
			t.P50 = d
		case "p95":
			t.P95 = d
		case "p99":
			t.P99 = d
		default:
			t.MaxLatency = d
		}

	case "errors", "error", "errorrate":
		percent := strings.HasSuffix(valueStr, "%")
		f, err := strconv.ParseFloat(strings.TrimSuffix(valueStr, "%"), 64)
		if err != nil {
			return fmt.Errorf("invalid error rate: %s", valueStr)
		}
		if percent {
			f = f / 100
		}
		t.ErrorRate = f

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}

	return nil
}
