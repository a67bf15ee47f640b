package domain

// TriState is a boolean that may not be known yet.
type TriState int

const (
	Unknown TriState = iota
	True
	False
)

func TriStateOf(b bool) TriState {
	if b {
		return True
	}
	return False
}

// TriStateFromCode maps a stored column value back to a TriState.
// Unexpected codes are treated as Unknown.
func TriStateFromCode(code int64) TriState {
	switch TriState(code) {
	case True:
		return True
	case False:
		return False
	default:
		return Unknown
	}
}

func (t TriState) Code() int64 {
	return int64(t)
}

func (t TriState) IsTrue() bool {
	return t == True
}

func (t TriState) IsFalse() bool {
	return t == False
}

func (t TriState) IsKnown() bool {
	return t != Unknown
}

// ToBool returns the known value or the given default.
func (t TriState) ToBool(defaultValue bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return defaultValue
	}
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}
