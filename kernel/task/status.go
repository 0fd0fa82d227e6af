package task

// Status is the lifecycle state of a task slot.
type Status uint32

const (
	UnInit Status = iota
	Ready
	Running
	Exited
)

func (s Status) String() string {
	switch s {
	case UnInit:
		return "uninit"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}
