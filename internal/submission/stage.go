package submission

import (
	"fmt"
	"strings"
)

// Stage selects which part of the queue lifecycle this hook drives.
type Stage string

// Stage constants
const (
	StageValidation Stage = "VALIDATION"
	StageExecution  Stage = "EXECUTION"
	StageAll        Stage = "ALL"
)

// ParseStage parses EXECUTION_STAGE. Empty means ALL.
func ParseStage(s string) (Stage, error) {
	switch Stage(strings.ToUpper(strings.TrimSpace(s))) {
	case "", StageAll:
		return StageAll, nil
	case StageValidation:
		return StageValidation, nil
	case StageExecution:
		return StageExecution, nil
	default:
		return "", fmt.Errorf("unknown execution stage %q", s)
	}
}

// Initial is the state of items waiting to be admitted.
func (s Stage) Initial() State {
	if s == StageExecution {
		return StateValidated
	}
	return StateReceived
}

// InProgress is the state of items with a running job.
func (s Stage) InProgress() State {
	if s == StageValidation {
		return StateOpen
	}
	return StateEvaluationInProgress
}

// Final is the state of items whose job finished successfully.
func (s Stage) Final() State {
	if s == StageValidation {
		return StateValidated
	}
	return StateAccepted
}
