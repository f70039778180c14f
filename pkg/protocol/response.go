package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Status tokens of a control response.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Defaults used when a response is shorter than expected.
const (
	DefaultErrorDetail  = "unknown error"
	DefaultConfirmation = "Registration complete."
)

const maxResponseFields = 3

// ErrMalformedResponse is returned when a required response field is missing
// or cannot be parsed.
var ErrMalformedResponse = errors.New("malformed control response")

// Response is a parsed control channel reply: a status token followed by
// positional, operation specific fields.
type Response struct {
	Status string
	Fields []string
}

// ParseResponse parses a '|' separated control response. It never fails;
// missing fields are reported as empty by the accessors.
func ParseResponse(body string) Response {
	parts := strings.SplitN(strings.TrimSpace(body), FieldSeparator, maxResponseFields)
	return Response{Status: strings.TrimSpace(parts[0]), Fields: parts[1:]}
}

// OKResponse builds a success response.
func OKResponse(fields ...string) Response {
	return Response{Status: StatusOK, Fields: fields}
}

// ErrorResponse builds a failure response.
func ErrorResponse(detail string) Response {
	return Response{Status: StatusError, Fields: []string{detail}}
}

// OK reports whether the status token is OK.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// Rejected reports whether the server answered with an explicit ERROR.
// Acknowledgements that carry no status token are not rejections.
func (r Response) Rejected() bool {
	return r.Status == StatusError
}

// Field returns the i-th positional field, or "" when absent.
func (r Response) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}

// Detail returns the failure detail, never empty.
func (r Response) Detail() string {
	if d := strings.TrimSpace(strings.Join(r.Fields, FieldSeparator)); d != "" {
		return d
	}
	return DefaultErrorDetail
}

// PushPort returns the push channel port of a login response.
func (r Response) PushPort() (int, error) {
	raw := strings.TrimSpace(r.Field(0))
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: push port %q", ErrMalformedResponse, raw)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: push port %d out of range", ErrMalformedResponse, port)
	}
	return port, nil
}

// Welcome returns the welcome text of a login response.
func (r Response) Welcome() string {
	return r.Field(1)
}

// Confirmation returns the confirmation text of a register response.
func (r Response) Confirmation() string {
	if c := strings.TrimSpace(strings.Join(r.Fields, FieldSeparator)); c != "" {
		return c
	}
	return DefaultConfirmation
}

// String encodes the response in its wire form.
func (r Response) String() string {
	return strings.Join(append([]string{r.Status}, r.Fields...), FieldSeparator)
}
