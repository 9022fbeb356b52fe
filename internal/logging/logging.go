// Package logging provides the component-tagged slog helper shared by every
// actor-shaped component in this module, generalizing the teacher's
// actors.L(a) helper (log/slog, "actor" => %T) to any named component.
package logging

import (
	"fmt"
	"log/slog"
)

// LevelTrace is a custom, more-chatty-than-Debug level, used for raw
// transport events before the Registry's debounce has had a say.
const LevelTrace slog.Level = -8

// For returns a logger tagged with the concrete type of component.
func For(component any) *slog.Logger {
	return slog.With("component", fmt.Sprintf("%T", component))
}

// Named returns a logger tagged with an explicit component name, for
// components that aren't a single concrete Go type (e.g. a package-level
// singleton or a named actor instance).
func Named(name string) *slog.Logger {
	return slog.With("component", name)
}
