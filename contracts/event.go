package contracts

import (
	"fmt"
	"strings"
)

// EventName identifies a handler in a service's registry
type EventName string

// Well-known events served by the reference services
const (
	EventGetProfile    EventName = "GET_PROFILE"
	EventProductViewed EventName = "PRODUCT_VIEWED"
)

// String implements fmt.Stringer
func (e EventName) String() string {
	return string(e)
}

// Validate reports whether the name can be used as a route segment and a map key
func (e EventName) Validate() error {
	name := string(e)
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEventName)
	}
	if strings.ContainsAny(name, "/ \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidEventName, name)
	}
	return nil
}
