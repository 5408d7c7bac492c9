package http

import (
	"net/http"
	"strings"
	"time"
)

// Response is the immutable envelope of a finished task. Failed tasks carry
// their reference id, elapsed time and error with empty status, headers and
// body.
type Response struct {
	ReferenceID      int64
	State            TaskState
	Elapsed          time.Duration
	StatusLine       string
	StatusCode       int
	Proto            string
	Headers          string
	Header           http.Header
	Body             string
	NeededClientAuth bool
	Err              error
	Audit            []string
}

func (r *Response) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// HeaderValue looks a response header up case-insensitively
func (r *Response) HeaderValue(key string) string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get(key)
}

func (r *Response) ContentType() string {
	return r.HeaderValue("Content-Type")
}

func (r *Response) IsJSON() bool {
	ct := r.ContentType()
	return strings.Contains(ct, "application/json") || strings.HasSuffix(strings.SplitN(ct, ";", 2)[0], "+json")
}

func (r *Response) Failed() bool {
	return r.State == Failed
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) IsRedirect() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

func (r *Response) IsServerError() bool {
	return r.StatusCode >= 500
}

// ErrString returns the error text, or "" when there is none
func (r *Response) ErrString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
