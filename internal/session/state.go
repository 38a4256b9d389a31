package session

type State int32

const (
	Connecting State = iota
	Listening
	Speaking
	Ending
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Listening:
		return "listening"
	case Speaking:
		return "speaking"
	case Ending:
		return "ending"
	case Closed:
		return "closed"
	}
	return "unknown"
}
