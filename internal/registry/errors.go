package registry

import "errors"

// ErrAmbiguousGenerationRollover is raised instead of guessed when a
// Bluetooth peer's 8-bit generation counter appears to have wrapped more
// than once within a single UPDATE_WINDOWS_FOREGROUND_MS quiescence
// window: the true number of elapsed advertisement cycles can't be
// recovered from the counter alone, and spec.md §9's Open Question (ii)
// says not to guess at it.
var ErrAmbiguousGenerationRollover = errors.New("registry: ambiguous bluetooth generation rollover within one quiescence window")
