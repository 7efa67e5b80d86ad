package telemetry

import (
	"fmt"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/grafana/pyroscope-go"
)

var profileTypes = map[string]pyroscope.ProfileType{
	"cpu":            pyroscope.ProfileCPU,
	"alloc_objects":  pyroscope.ProfileAllocObjects,
	"alloc_space":    pyroscope.ProfileAllocSpace,
	"inuse_objects":  pyroscope.ProfileInuseObjects,
	"inuse_space":    pyroscope.ProfileInuseSpace,
	"goroutines":     pyroscope.ProfileGoroutines,
	"mutex_count":    pyroscope.ProfileMutexCount,
	"mutex_duration": pyroscope.ProfileMutexDuration,
	"block_count":    pyroscope.ProfileBlockCount,
	"block_duration": pyroscope.ProfileBlockDuration,
}

// DefaultProfileTypes is collected when none are configured. Mutex
// profiles matter here: the state and lock tables are mutex heavy.
var DefaultProfileTypes = []string{"cpu", "inuse_space", "goroutines", "mutex_duration"}

var profilingEnabled atomic.Bool

// ProfileTypeNames returns the accepted profile type names, sorted.
func ProfileTypeNames() []string {
	names := make([]string, 0, len(profileTypes))
	for n := range profileTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// InitProfiling starts the Pyroscope agent. The returned function stops it.
func InitProfiling(cfg ProfilingConfig) (shutdown func() error, err error) {
	if !cfg.Enabled {
		profilingEnabled.Store(false)
		return func() error { return nil }, nil
	}

	names := cfg.ProfileTypes
	if len(names) == 0 {
		names = DefaultProfileTypes
	}
	types, err := parseProfileTypes(names)
	if err != nil {
		return nil, err
	}

	for _, t := range types {
		switch t {
		case pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration:
			runtime.SetMutexProfileFraction(5)
		case pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration:
			runtime.SetBlockProfileRate(5)
		}
	}

	tags := map[string]string{"version": cfg.ServiceVersion}
	for k, v := range cfg.Tags {
		tags[k] = v
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ServiceName,
		ServerAddress:   cfg.Endpoint,
		Tags:            tags,
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	profilingEnabled.Store(true)

	return func() error {
		profilingEnabled.Store(false)
		return profiler.Stop()
	}, nil
}

// IsProfilingEnabled reports whether the Pyroscope agent is running.
func IsProfilingEnabled() bool {
	return profilingEnabled.Load()
}

func parseProfileTypes(names []string) ([]pyroscope.ProfileType, error) {
	seen := make(map[pyroscope.ProfileType]bool, len(names))
	types := make([]pyroscope.ProfileType, 0, len(names))
	for _, n := range names {
		t, ok := profileTypes[n]
		if !ok {
			return nil, fmt.Errorf("invalid profile type %q (valid: %v)", n, ProfileTypeNames())
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types, nil
}
