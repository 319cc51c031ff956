package modules

import (
	"errors"
	"fmt"
)

// Stage is the step of a module load that failed
type Stage int

const (
	StageMarkup Stage = iota
	StageCode
	StageExecute
)

func (s Stage) String() string {
	switch s {
	case StageMarkup:
		return "markup"
	case StageCode:
		return "code"
	case StageExecute:
		return "execute"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// LoadError reports a module whose assets could not be loaded. It is shown
// in the module's placeholder and never affects the connection state.
type LoadError struct {
	Module Name
	Stage  Stage
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s module (%s): %v", e.Module, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsLoadError checks if an error is a module load failure
func IsLoadError(err error) bool {
	var lErr *LoadError
	return errors.As(err, &lErr)
}
