package orchestrator

// State is a stage of a run.
type State int

const (
	StateIdle State = iota
	StateLocking
	StateConfigValidating
	StateScanning
	StateClassifying
	StateParsing
	StateEmitting
	StateArchiving
	StateDone
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateLocking:          "locking",
	StateConfigValidating: "config_validating",
	StateScanning:         "scanning",
	StateClassifying:      "classifying",
	StateParsing:          "parsing",
	StateEmitting:         "emitting",
	StateArchiving:        "archiving",
	StateDone:             "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
