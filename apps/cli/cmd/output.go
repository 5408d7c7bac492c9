package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/history"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/output"
	"github.com/abdul-hamid-achik/hitshot/packages/repeat"
)

// Formatter interface for all output formatters
type Formatter interface {
	FormatResponse(req http.Request, resp *http.Response)
	FormatCaptures(referenceID int64, captures map[string]any)
	FormatSummary(s *repeat.Summary)
	FormatHistory(entries []history.Entry)
	FormatError(err error)
	FormatHeader(version string)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

type formatterOptions struct {
	format  string
	writer  io.Writer
	verbose bool
	noColor bool
	headers bool
	noBody  bool
}

func newFormatter(o formatterOptions) (Formatter, error) {
	if o.writer == nil {
		o.writer = os.Stdout
	}

	switch strings.ToLower(o.format) {
	case "json":
		return output.NewJSONFormatter(
			output.JSONWithWriter(o.writer),
			output.JSONWithVerbose(o.verbose),
		), nil
	case "", "console":
		return output.NewConsoleFormatter(
			output.WithWriter(o.writer),
			output.WithVerbose(o.verbose),
			output.WithNoColor(o.noColor),
			output.WithHeaders(o.headers),
			output.WithBody(!o.noBody),
		), nil
	default:
		return nil, usageError(fmt.Errorf("unknown output format %q (use console or json)", o.format))
	}
}

func flush(f Formatter, d time.Duration) error {
	if flushable, ok := f.(Flushable); ok {
		if err := flushable.Flush(d); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}
	}
	return nil
}
