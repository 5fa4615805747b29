package activities

import (
	"strings"

	"github.com/affandar/toygres/pkg/types"
)

const (
	conflictPrefix = "conflict: "
	fatalPrefix    = "fatal: "
)

// Classify buckets an activity error into the three classes spec.md §6.5
// distinguishes on the wire. Activities that want conflict/fatal treatment
// prefix their error string accordingly; everything else is assumed
// transient and therefore retryable.
func Classify(err error) types.ErrorClass {
	if err == nil {
		return types.ErrorTransient
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, conflictPrefix):
		return types.ErrorConflict
	case strings.HasPrefix(msg, fatalPrefix):
		return types.ErrorFatal
	default:
		return types.ErrorTransient
	}
}
