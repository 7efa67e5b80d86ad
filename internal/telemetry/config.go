package telemetry

// Config holds OpenTelemetry tracing configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of root traces kept, 0.0 to 1.0. Child
	// spans follow their parent's decision.
	SampleRate float64
}

// DefaultConfig returns tracing disabled, pointing at a local collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "nfs4stated",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// ProfilingConfig holds Pyroscope continuous profiling configuration.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the Pyroscope server URL, e.g. "http://localhost:4040".
	Endpoint string

	// ProfileTypes lists the profiles to collect; see ProfileTypeNames.
	// Empty means DefaultProfileTypes.
	ProfileTypes []string

	// Tags are attached to every uploaded profile.
	Tags map[string]string
}
