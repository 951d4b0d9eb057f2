package exporter

// Phase is the export state machine. Idle is initial; Complete and Failed
// are terminal, and Failed absorbs from every non-terminal phase on an
// unrecoverable error.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseResolvingDimensions
	PhaseCapturing
	PhaseEncoding
	PhaseComplete
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseResolvingDimensions:
		return "resolving"
	case PhaseCapturing:
		return "capturing"
	case PhaseEncoding:
		return "encoding"
	case PhaseComplete:
		return "complete"
	case PhaseFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the phase ends the state machine.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}
