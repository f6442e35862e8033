package model

// RouteStatus is the runtime status of a registered route.
type RouteStatus int

const (
	StatusUnknown RouteStatus = iota
	StatusStopped
	StatusStarted
)

func (s RouteStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarted:
		return "started"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON responses.
func (s RouteStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name. Unrecognized names become StatusUnknown.
func (s *RouteStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "stopped":
		*s = StatusStopped
	case "started":
		*s = StatusStarted
	default:
		*s = StatusUnknown
	}
	return nil
}

// RouteDescriptor pairs a listen endpoint with a forward endpoint.
// Both URIs already carry their engine options.
type RouteDescriptor struct {
	FromURI string `json:"from"`
	ToURI   string `json:"to"`
}

// RouteHandle is the engine's live representation of a registered route.
type RouteHandle struct {
	ID         string          `json:"id"`
	Status     RouteStatus     `json:"status"`
	Descriptor RouteDescriptor `json:"descriptor"`
}
