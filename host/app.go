package host

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

var _ Host = (*App)(nil)

// View is the observable state produced by a render.
type View map[string]string

// RenderFunc builds a view from persisted state.
type RenderFunc func(ctx context.Context, store Store) (View, error)

// App is a Host backed by a Store. Tests mutate the store and re-render to
// observe the result.
type App struct {
	store  Store
	render RenderFunc
	log    log.Logger

	mu      sync.RWMutex
	view    View
	renders uint64
}

func NewApp(store Store, render RenderFunc, logger log.Logger) (*App, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if render == nil {
		return nil, fmt.Errorf("render function is required")
	}
	if logger == nil {
		logger = log.New()
	}
	return &App{
		store:  store,
		render: render,
		log:    logger,
		view:   View{},
	}, nil
}

// Store returns the persisted state of the app.
func (a *App) Store() Store {
	return a.store
}

// Clear wipes persisted state and drops the current view.
func (a *App) Clear(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing app state: %w", err)
	}
	a.mu.Lock()
	a.view = View{}
	a.mu.Unlock()
	a.log.Trace("app state cleared")
	return nil
}

// ReRender rebuilds the view from the store.
func (a *App) ReRender(ctx context.Context) error {
	view, err := a.render(ctx, a.store)
	if err != nil {
		return fmt.Errorf("rendering app: %w", err)
	}
	if view == nil {
		view = View{}
	}
	a.mu.Lock()
	a.view = view
	a.renders++
	n := a.renders
	a.mu.Unlock()
	a.log.Trace("app re-rendered", "render", n)
	return nil
}

// View returns a copy of the current view.
func (a *App) View() View {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.view)
}

// Lookup returns one entry of the current view.
func (a *App) Lookup(key string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.view[key]
	return v, ok
}

// Renders returns how many times the app has rendered.
func (a *App) Renders() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.renders
}

func (a *App) Close() error {
	return a.store.Close()
}
