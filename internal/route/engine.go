package route

import "proxy-http-go/internal/model"

// Engine is the shared routing engine a Controller registers routes with.
//
// One Engine is shared by every proxy instance in the process, and
// ListRoutes returns routes of all of them. Implementations must serialize
// AddRoute, StartRoute, StopRoute and RemoveRoute internally. Engines that
// cannot must be paired with WithEngineLock on every Controller.
type Engine interface {
	// AddRoute registers d and starts it if the engine is running.
	AddRoute(d model.RouteDescriptor) (model.RouteHandle, error)
	ListRoutes() []model.RouteHandle
	RouteStatus(id string) model.RouteStatus
	StartRoute(id string) error
	StopRoute(id string) error
	// RemoveRoute drops a stopped route and its descriptor. It returns false
	// when nothing was removed.
	RemoveRoute(id string) (bool, error)
}
