package history

import (
	"bufio"
	"errors"
	nethttp "net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitshot/packages/http"
)

// Request rebuilds the descriptor fields the entry kept
func (e Entry) Request() http.Request {
	req := http.NewRequest(e.Method, e.Endpoint)
	req.Security = e.Security
	return req
}

// Response rebuilds the envelope of the recorded task so it can be rendered
// like a live one. The header block is parsed back into a header map.
func (e Entry) Response() *http.Response {
	resp := &http.Response{
		ReferenceID:      e.ReferenceID,
		State:            http.Completed,
		Elapsed:          time.Duration(e.ElapsedMillis) * time.Millisecond,
		StatusLine:       e.StatusLine,
		StatusCode:       e.StatusCode,
		Headers:          e.Headers,
		Body:             e.Body,
		NeededClientAuth: e.NeededClientAuth,
		Audit:            e.Audit,
	}
	if proto, _, ok := strings.Cut(e.StatusLine, " "); ok {
		resp.Proto = proto
	}

	if e.State == http.Failed.String() {
		resp.State = http.Failed
		if e.Error != "" {
			resp.Err = errors.New(e.Error)
		}
	}

	if e.Headers != "" {
		r := textproto.NewReader(bufio.NewReader(strings.NewReader(e.Headers + "\r\n")))
		if h, err := r.ReadMIMEHeader(); err == nil || len(h) > 0 {
			resp.Header = nethttp.Header(h)
		}
	}
	return resp
}
