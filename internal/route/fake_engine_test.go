package route

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"proxy-http-go/internal/model"
)

var errEngine = errors.New("engine failure")

// fakeEngine is an in-memory Engine that records calls and injects failures.
type fakeEngine struct {
	mu      sync.Mutex
	running bool
	seq     int
	routes  []model.RouteHandle

	failAdd    error
	failStart  map[string]error
	failStop   map[string]error
	failRemove map[string]error

	calls []string
}

func newFakeEngine(running bool) *fakeEngine {
	return &fakeEngine{
		running:    running,
		failStart:  map[string]error{},
		failStop:   map[string]error{},
		failRemove: map[string]error{},
	}
}

func (e *fakeEngine) AddRoute(d model.RouteDescriptor) (model.RouteHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "add")
	if e.failAdd != nil {
		return model.RouteHandle{}, e.failAdd
	}
	e.seq++
	h := model.RouteHandle{
		ID:         fmt.Sprintf("route%d", e.seq),
		Status:     model.StatusStopped,
		Descriptor: d,
	}
	if e.running {
		h.Status = model.StatusStarted
	}
	e.routes = append(e.routes, h)
	return h, nil
}

func (e *fakeEngine) ListRoutes() []model.RouteHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.routes)
}

func (e *fakeEngine) RouteStatus(id string) model.RouteStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i := e.index(id); i >= 0 {
		return e.routes[i].Status
	}
	return model.StatusUnknown
}

func (e *fakeEngine) StartRoute(id string) error {
	return e.setStatus("start:"+id, id, model.StatusStarted, e.failStart)
}

func (e *fakeEngine) StopRoute(id string) error {
	return e.setStatus("stop:"+id, id, model.StatusStopped, e.failStop)
}

func (e *fakeEngine) RemoveRoute(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "remove:"+id)
	if err := e.failRemove[id]; err != nil {
		return false, err
	}
	i := e.index(id)
	if i < 0 || e.routes[i].Status == model.StatusStarted {
		return false, nil
	}
	e.routes = slices.Delete(e.routes, i, i+1)
	return true, nil
}

func (e *fakeEngine) setStatus(call, id string, s model.RouteStatus, fail map[string]error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
	if err := fail[id]; err != nil {
		return err
	}
	i := e.index(id)
	if i < 0 {
		return fmt.Errorf("route %s not found", id)
	}
	e.routes[i].Status = s
	return nil
}

func (e *fakeEngine) index(id string) int {
	return slices.IndexFunc(e.routes, func(h model.RouteHandle) bool { return h.ID == id })
}

func (e *fakeEngine) callCount(prefix string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
