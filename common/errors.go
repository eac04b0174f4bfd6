package common

import (
	"fmt"
	"net/http"
)

// RequestError is returned when the authservice answers with an unexpected
// status code.
type RequestError struct {
	// Response is the HTTP Response struct
	Response *http.Response
	// Body is the bytes parsed from the Response struct. This must be done
	// by the party making the HTTP request.
	Body []byte
}

var _ error = &RequestError{}

func NewRequestError(resp *http.Response, body []byte) error {
	return &RequestError{
		Body:     body,
		Response: resp,
	}
}

// StatusCode returns the status code of the failed response.
func (e *RequestError) StatusCode() int {
	return e.Response.StatusCode
}

func (e *RequestError) Error() string {
	// We don't log the body by default, because it can potentially contain
	// security-sensitive information.
	target := ""
	if e.Response.Request != nil && e.Response.Request.URL != nil {
		target = fmt.Sprintf("%s %s: ", e.Response.Request.Method, e.Response.Request.URL.Path)
	}
	return fmt.Sprintf("%sunexpected status code: %d", target, e.Response.StatusCode)
}
