package capability

import "time"

// Preopen is one directory exposed to a wasm guest, with explicit
// read/write permission. Nothing outside the preopen set is visible.
type Preopen struct {
	HostPath  string
	GuestPath string
	ReadOnly  bool
}

const (
	// DefaultMemoryPages is 256 64 KiB pages (16 MiB), the default linear
	// memory cap for a wasm guest instance.
	DefaultMemoryPages = 256
	WasmPageSize       = 64 * 1024

	// DefaultWasmTimeout is the default wall-clock budget for one call.
	DefaultWasmTimeout = 30 * time.Second

	// DefaultCancelGrace is how long a cooperative cancellation is given
	// before the core escalates to forced termination.
	DefaultCancelGrace = 5 * time.Second
)

// Preopens translates allowed_paths into a wasm preopen list. Every path is
// granted read/write, matching the "read/write permission" wording of
// spec.md §4.3 — narrower per-path modes are an extension point, not yet
// exposed by the manifest grammar.
func Preopens(allowedPaths []string, sessionTempDir string) []Preopen {
	preopens := make([]Preopen, 0, len(allowedPaths)+1)
	for _, p := range allowedPaths {
		preopens = append(preopens, Preopen{HostPath: p, GuestPath: p})
	}
	if sessionTempDir != "" {
		preopens = append(preopens, Preopen{HostPath: sessionTempDir, GuestPath: sessionTempDir})
	}
	return preopens
}

// MemoryLimitBytes returns the guest linear memory cap in bytes. The
// manifest grammar has no per-instance override, so this is always
// DefaultMemoryPages * WasmPageSize.
func MemoryLimitBytes() int64 {
	return int64(DefaultMemoryPages) * WasmPageSize
}
