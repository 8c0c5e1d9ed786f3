package contracts

import (
	"encoding/json"
	"fmt"
)

// Result types carried in the "type" field
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Result is the uniform response body used by service APIs.
// The sync bridge client also returns it when a call fails for any reason.
type Result struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// SuccessResult builds a success body
func SuccessResult(data any, message string) Result {
	return Result{Type: ResultSuccess, Message: message, Data: data}
}

// ErrorResult builds an error body
func ErrorResult(message string) Result {
	return Result{Type: ResultError, Message: message}
}

// IsError reports whether the result is an error body
func (r Result) IsError() bool {
	return r.Type == ResultError
}

// DecodeData re-marshals Data into v. Useful when Data came off the wire as a map.
func (r Result) DecodeData(v any) error {
	if r.IsError() {
		return fmt.Errorf("%w: %s", ErrNotSuccess, r.Message)
	}
	raw, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("decode result data: %w", err)
	}
	return json.Unmarshal(raw, v)
}
