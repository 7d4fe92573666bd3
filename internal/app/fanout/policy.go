package fanout

// Action is what the fan-out does with a sink that cannot keep up.
type Action int

const (
	NoAction Action = iota
	DropFrame
	DetachSink
)

// Policy decides how back-pressure from a sink is handled.
type Policy interface {
	OnBackPressure(sink string) Action
}

// DropPolicy sheds frames for slow sinks instead of stalling the mirror
// stream. The browser re-syncs on the next keyframe.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(string) Action { return DropFrame }
