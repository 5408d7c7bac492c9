package capture

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/tidwall/gjson"
)

var ErrInvalidCapture = errors.New("invalid capture")

type Source int

const (
	SourceBody Source = iota
	SourceHeader
	SourceStatus
	SourceElapsed
)

func (s Source) String() string {
	switch s {
	case SourceBody:
		return "body"
	case SourceHeader:
		return "header"
	case SourceStatus:
		return "status"
	case SourceElapsed:
		return "elapsed"
	default:
		return "unknown"
	}
}

type Capture struct {
	Name   string
	Source Source
	Path   string
}

// ParseCapture parses name=source[:path]. A header capture needs a path.
func ParseCapture(s string) (Capture, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Capture{}, fmt.Errorf("%w: %q: expected name=source[:path]", ErrInvalidCapture, s)
	}

	source, path, _ := strings.Cut(strings.TrimSpace(rest), ":")
	c := Capture{Name: name, Path: path}

	switch strings.ToLower(source) {
	case "body":
		c.Source = SourceBody
	case "header":
		if path == "" {
			return Capture{}, fmt.Errorf("%w: %q: header capture needs a header name", ErrInvalidCapture, s)
		}
		c.Source = SourceHeader
	case "status":
		c.Source = SourceStatus
	case "elapsed", "duration":
		c.Source = SourceElapsed
	default:
		return Capture{}, fmt.Errorf("%w: %q: unknown source %q", ErrInvalidCapture, s, source)
	}
	return c, nil
}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
}

func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if gjson.Valid(resp.Body) {
		e.bodyJSON = gjson.Parse(resp.Body)
	}
	return e
}

func (e *Extractor) Extract(c Capture) (any, bool) {
	if e.response.Failed() {
		if c.Source == SourceElapsed {
			return e.response.ElapsedMillis(), true
		}
		return nil, false
	}

	switch c.Source {
	case SourceBody:
		return e.extractFromBody(c.Path)
	case SourceHeader:
		return e.extractFromHeader(c.Path)
	case SourceStatus:
		return e.response.StatusCode, true
	case SourceElapsed:
		return e.response.ElapsedMillis(), true
	default:
		return nil, false
	}
}

func (e *Extractor) extractFromBody(path string) (any, bool) {
	if !e.bodyJSON.Exists() {
		if path == "" {
			return e.response.Body, true
		}
		return nil, false
	}

	if path == "" {
		return e.bodyJSON.Value(), true
	}

	result := e.bodyJSON.Get(path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func (e *Extractor) extractFromHeader(name string) (any, bool) {
	value := e.response.HeaderValue(name)
	if value == "" {
		return nil, false
	}
	return value, true
}

func ExtractAll(resp *http.Response, captures []Capture) map[string]any {
	extractor := NewExtractor(resp)
	results := make(map[string]any)

	for _, c := range captures {
		if value, ok := extractor.Extract(c); ok {
			results[c.Name] = value
		}
	}

	return results
}

// Query runs a gjson path against a JSON body and returns the raw match.
func Query(body, path string) (string, bool) {
	if !gjson.Valid(body) {
		return "", false
	}
	result := gjson.Get(body, path)
	if !result.Exists() {
		return "", false
	}
	if result.Type == gjson.String {
		return result.Str, true
	}
	return result.Raw, true
}

// Pretty indents a JSON body; anything else comes back unchanged.
func Pretty(body string) string {
	if !gjson.Valid(body) {
		return body
	}
	return strings.TrimRight(gjson.Get(body, "@pretty").Raw, "\n")
}
