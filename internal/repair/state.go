package repair

// State identifies the phase of an orchestration run.
type State int32

// Orchestration states.
const (
	StateIdle State = iota
	StateProbing
	StateSettingUp
	StateSucceeded
	StateFailed
)

const (
	stateIdleNameConstant      = "idle"
	stateProbingNameConstant   = "probing"
	stateSettingUpNameConstant = "setting-up"
	stateSucceededNameConstant = "succeeded"
	stateFailedNameConstant    = "failed"
	stateUnknownNameConstant   = "unknown"
)

// String returns the human-readable state name.
func (state State) String() string {
	switch state {
	case StateIdle:
		return stateIdleNameConstant
	case StateProbing:
		return stateProbingNameConstant
	case StateSettingUp:
		return stateSettingUpNameConstant
	case StateSucceeded:
		return stateSucceededNameConstant
	case StateFailed:
		return stateFailedNameConstant
	default:
		return stateUnknownNameConstant
	}
}

// Active reports whether a run is in progress.
func (state State) Active() bool {
	return state == StateProbing || state == StateSettingUp
}

// Terminal reports whether a run has finished.
func (state State) Terminal() bool {
	return state == StateSucceeded || state == StateFailed
}
