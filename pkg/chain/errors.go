package chain

import (
	"fmt"
	"strings"
)

// ValidationError is returned when the pre-append integrity gate finds
// the existing chain corrupt. It carries the full violation list; the
// append it rejected left the chain untouched.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chain validation failed: %s", strings.Join(e.Violations, "; "))
}
