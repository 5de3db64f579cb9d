package page

// Mode identifies the source a response came from. Higher modes take
// precedence: a response may never replace what a higher mode already put
// on screen for the same navigation.
type Mode int

const (
	ModeNothing Mode = iota
	ModeCache
	ModePure
	ModeAuthenticated
)

func (m Mode) String() string {
	switch m {
	case ModeNothing:
		return "nothing"
	case ModeCache:
		return "cache"
	case ModePure:
		return "pure"
	case ModeAuthenticated:
		return "ised"
	default:
		return "unknown"
	}
}

// Max returns the higher of two modes.
func Max(a, b Mode) Mode {
	if a > b {
		return a
	}
	return b
}
