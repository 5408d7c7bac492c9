package output

import (
	"bytes"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/history"
	"github.com/abdul-hamid-achik/hitshot/packages/http"
	"github.com/abdul-hamid-achik/hitshot/packages/repeat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed() (http.Request, *http.Response) {
	req := http.NewRequest("get", "https://api.local/items")
	req.Security = "TLSv1.3"
	return req, &http.Response{
		ReferenceID: 3,
		State:       http.Completed,
		Elapsed:     12 * time.Millisecond,
		StatusLine:  "HTTP/1.1 200 OK",
		StatusCode:  200,
		Headers:     "Content-Type: application/json\r\n",
		Header:      nethttp.Header{"Content-Type": []string{"application/json"}},
		Body:        `{"id":1}`,
		Audit:       []string{"+0ms GET https://api.local/items", "+12ms response: HTTP/1.1 200 OK"},
	}
}

func failed() (http.Request, *http.Response) {
	return http.NewRequest("POST", "http://10.255.255.1/"), &http.Response{
		ReferenceID:      4,
		State:            http.Failed,
		Elapsed:          time.Millisecond,
		NeededClientAuth: true,
		Err:              errors.New("request 4: execution failed: dial timeout"),
	}
}

func TestConsoleFormatter_Response(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatResponse(completed())
	out := buf.String()

	assert.Contains(t, out, "#3 GET https://api.local/items")
	assert.Contains(t, out, "HTTP/1.1 200 OK (12ms)")
	assert.Contains(t, out, "{\n  \"id\": 1\n}")
	assert.NotContains(t, out, "Content-Type")
	assert.NotContains(t, out, "Audit:")
}

func TestConsoleFormatter_VerboseResponse(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true), WithVerbose(true), WithBody(false))

	f.FormatResponse(completed())
	out := buf.String()

	assert.Contains(t, out, "Content-Type: application/json")
	assert.Contains(t, out, "Audit:")
	assert.Contains(t, out, "+12ms response: HTTP/1.1 200 OK")
	assert.NotContains(t, out, `"id"`)
}

func TestConsoleFormatter_FailedResponse(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatResponse(failed())
	out := buf.String()

	assert.Contains(t, out, "FAILED (1ms)")
	assert.Contains(t, out, "dial timeout")
	assert.Contains(t, out, "server requested a client certificate")
}

func TestConsoleFormatter_CapturesAndSummary(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatCaptures(3, map[string]any{"b": "two", "a": 1, "list": []any{1, 2}})
	f.FormatSummary(&repeat.Summary{
		Total:       4,
		Completed:   3,
		Failed:      1,
		HTTPErrors:  1,
		StatusCodes: map[int]int64{200: 2, 500: 1},
		Thresholds:  []repeat.ThresholdResult{{Name: "p95", Passed: true, Expected: "<= 200ms", Actual: "20ms"}},
	})
	out := buf.String()

	assert.Regexp(t, `(?s)a = 1.*b = two.*list = \[array with 2 items\]`, out)
	assert.Contains(t, out, "2 ok, 1 error status, 1 failed, 4 total")
	assert.Contains(t, out, "200×2 500×1")
	assert.Contains(t, out, "✓ p95 <= 200ms (actual 20ms)")
}

func TestConsoleFormatter_History(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatHistory(nil)
	assert.Contains(t, buf.String(), "No history yet")

	buf.Reset()
	f.FormatHistory([]history.Entry{{
		SessionID:     "0123456789abcdef",
		ReferenceID:   9,
		RecordedAt:    time.Now(),
		Method:        "GET",
		Endpoint:      "http://localhost/",
		StatusCode:    204,
		ElapsedMillis: 5,
	}})
	assert.Contains(t, buf.String(), "01234567 #9")
	assert.Contains(t, buf.String(), "http://localhost/ 204 5ms")
}

func TestConsoleFormatter_ErrorAndHeader(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleFormatter(WithWriter(&buf), WithNoColor(true))

	f.FormatHeader("1.0.0")
	f.FormatError(errors.New("boom"))

	assert.Equal(t, "hitshot 1.0.0\nError: boom\n", buf.String())
}

func TestJSONFormatter_Flush(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf))

	f.FormatResponse(completed())
	f.FormatCaptures(3, map[string]any{"id": 1})
	f.FormatCaptures(99, map[string]any{"ignored": true})
	f.FormatResponse(failed())
	f.FormatSummary(&repeat.Summary{Total: 2, Completed: 1, Failed: 1, StatusCodes: map[int]int64{200: 1}, P95: 1500 * time.Microsecond})
	f.FormatError(errors.New("boom"))
	require.NoError(t, f.Flush(20*time.Millisecond))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	require.Len(t, out.Responses, 2)
	first := out.Responses[0]
	assert.Equal(t, int64(3), first.ReferenceID)
	assert.Equal(t, "completed", first.State)
	assert.Equal(t, "TLSv1.3", first.Request.Security)
	assert.Equal(t, map[string]any{"id": float64(1)}, first.Body)
	assert.Equal(t, map[string]any{"id": float64(1)}, first.Captures)
	assert.Empty(t, first.Audit)

	second := out.Responses[1]
	assert.Equal(t, "failed", second.State)
	assert.True(t, second.NeededClientAuth)
	assert.Contains(t, second.Error, "dial timeout")

	require.NotNil(t, out.Summary)
	assert.Equal(t, int64(2), out.Summary.Total)
	assert.Equal(t, 1.5, out.Summary.P95)
	assert.Equal(t, map[string]int64{"200": 1}, out.Summary.StatusCodes)
	assert.Equal(t, []string{"boom"}, out.Errors)
	assert.Equal(t, float64(20), out.Duration)
}

func TestJSONFormatter_VerboseAndPlainBody(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(JSONWithWriter(&buf), JSONWithVerbose(true))

	req, resp := completed()
	resp.Header = nethttp.Header{"Content-Type": []string{"text/plain"}}
	resp.Body = "hello"
	f.FormatResponse(req, resp)
	require.NoError(t, f.Flush(0))

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "hello", out.Responses[0].Body)
	assert.Len(t, out.Responses[0].Audit, 2)
}

func TestWritePrometheus(t *testing.T) {
	var buf bytes.Buffer
	summary := &repeat.Summary{
		Total:       3,
		Completed:   3,
		HTTPErrors:  1,
		RPS:         1.5,
		P95:         250 * time.Millisecond,
		StatusCodes: map[int]int64{500: 1, 200: 2},
		Thresholds:  []repeat.ThresholdResult{{Name: "p95", Passed: false}},
	}

	require.NoError(t, WritePrometheus(&buf, `say "hi"`, summary))
	out := buf.String()

	assert.Contains(t, out, "# TYPE hitshot_requests_total counter\n")
	assert.Contains(t, out, `hitshot_requests_total{request="say \"hi\""} 3`)
	assert.Contains(t, out, `hitshot_requests_error_status_total{request="say \"hi\""} 1`)
	assert.Contains(t, out, `hitshot_request_duration_ms{request="say \"hi\"",quantile="0.95"} 250`)
	assert.Contains(t, out, `hitshot_threshold_passed{request="say \"hi\"",threshold="p95"} 0`)
	assert.Less(t, strings.Index(out, `status="200"`), strings.Index(out, `status="500"`))
}
