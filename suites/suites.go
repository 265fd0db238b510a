// Package suites contains the cavy suites shipped with op-cavy. They drive a
// small counter/preferences/session app through host.App and double as a
// smoke test of the host store in use.
package suites

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/op-cavy/host"
	"github.com/ethereum-optimism/infra/op-cavy/registry"
	"github.com/ethereum-optimism/infra/op-cavy/types"
)

// Store keys and view keys of the demo app.
const (
	KeyCount = "count"
	KeyTheme = "theme"
	KeyUser  = "user"

	ViewGreeting = "greeting"

	DefaultTheme = "light"
)

// Render is the render function of the demo app.
func Render(ctx context.Context, store host.Store) (host.View, error) {
	view := host.View{KeyCount: "0", KeyTheme: DefaultTheme, ViewGreeting: "Please sign in"}
	if v, ok, err := store.Get(ctx, KeyCount); err != nil {
		return nil, err
	} else if ok {
		view[KeyCount] = v
	}
	if v, ok, err := store.Get(ctx, KeyTheme); err != nil {
		return nil, err
	} else if ok {
		view[KeyTheme] = v
	}
	if v, ok, err := store.Get(ctx, KeyUser); err != nil {
		return nil, err
	} else if ok && v != "" {
		view[ViewGreeting] = "Hello, " + v
	}
	return view, nil
}

// Register adds every demo suite to reg.
func Register(reg *registry.Registry) error {
	for _, s := range All() {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// All returns the demo suites in their default order.
func All() []*types.TestScope {
	return []*types.TestScope{Counter(), Preferences(), Session()}
}

func app(sc *types.Scope) (*host.App, error) {
	a, ok := sc.Host.(*host.App)
	if !ok {
		return nil, errors.Errorf("suite %s needs a *host.App, got %T", sc.Suite.Name, sc.Host)
	}
	return a, nil
}

func expect(a *host.App, key, want string) error {
	got, ok := a.Lookup(key)
	if !ok {
		return errors.Errorf("view has no %q", key)
	}
	if got != want {
		return errors.Errorf("expected %s to be %q, got %q", key, want, got)
	}
	return nil
}

// set writes a value and re-renders so the change becomes observable.
func set(ctx context.Context, a *host.App, key, value string) error {
	if err := a.Store().Set(ctx, key, value); err != nil {
		return err
	}
	return a.ReRender(ctx)
}

func Counter() *types.TestScope {
	increment := func(ctx context.Context, a *host.App) error {
		v, _, err := a.Store().Get(ctx, KeyCount)
		if err != nil {
			return err
		}
		n, _ := strconv.Atoi(v)
		return set(ctx, a, KeyCount, strconv.Itoa(n+1))
	}

	return &types.TestScope{
		Name: "counter",
		Cases: []types.TestCase{
			{
				Description: "Counter: starts at zero",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					return expect(a, KeyCount, "0")
				},
			},
			{
				Description: "Counter: increments",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					for i := 0; i < 3; i++ {
						if err := increment(ctx, a); err != nil {
							return err
						}
					}
					return expect(a, KeyCount, "3")
				},
			},
			{
				Description: "Counter: is reset between tests",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					return expect(a, KeyCount, "0")
				},
			},
		},
	}
}

func Preferences() *types.TestScope {
	return &types.TestScope{
		Name: "preferences",
		// seeded before the render, so every case starts dark
		BeforeEach: func(ctx context.Context, sc *types.Scope) error {
			a, err := app(sc)
			if err != nil {
				return err
			}
			return a.Store().Set(ctx, KeyTheme, "dark")
		},
		Cases: []types.TestCase{
			{
				Description: "Preferences: applies the stored theme",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					return expect(a, KeyTheme, "dark")
				},
			},
			{
				Description: "Preferences: switches back to light",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					if err := set(ctx, a, KeyTheme, DefaultTheme); err != nil {
						return err
					}
					return expect(a, KeyTheme, DefaultTheme)
				},
			},
		},
	}
}

func Session() *types.TestScope {
	return &types.TestScope{
		Name: "session",
		BeforeEach: func(ctx context.Context, sc *types.Scope) error {
			a, err := app(sc)
			if err != nil {
				return err
			}
			sc.Set(KeyUser, "ada")
			return a.Store().Set(ctx, KeyUser, "ada")
		},
		Cases: []types.TestCase{
			{
				Description: "Session: greets the signed in user",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					user, ok := sc.Get(KeyUser)
					if !ok {
						return errors.New("setup did not record a user")
					}
					return expect(a, ViewGreeting, fmt.Sprintf("Hello, %s", user))
				},
			},
			{
				Description: "Session: signs out",
				Body: func(ctx context.Context, sc *types.Scope) error {
					a, err := app(sc)
					if err != nil {
						return err
					}
					if err := set(ctx, a, KeyUser, ""); err != nil {
						return err
					}
					return expect(a, ViewGreeting, "Please sign in")
				},
			},
		},
	}
}
