// package shared defines helpers used across the application: logging, IDs, configuration, and the error taxonomy.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// GenerateID generates a new v4 [uuid.UUID] as a string.
//
// Used for OAuth anti-forgery state values and transfer record IDs.
func GenerateID() string {
	return uuid.New().String()
}
