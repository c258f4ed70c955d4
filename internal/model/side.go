package model

// Side is the direction of a position.
// Keep these values stable; they are written to trade logs.
type Side int

const (
	Short Side = -1
	Long  Side = 1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "NONE"
	}
}
