package frames

import (
	"fmt"
	"sort"
)

var backends = map[string]func(ffmpeg string) Backend{
	"ffmpeg": func(ffmpeg string) Backend { return NewFFmpeg(ffmpeg) },
}

// Backends lists the compiled-in backend names.
func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend returns the named backend. ffmpeg is the binary used by the
// ffmpeg backend.
func NewBackend(name, ffmpeg string) (Backend, error) {
	factory, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown frame backend %q (available: %v)", name, Backends())
	}
	return factory(ffmpeg), nil
}
