// Package health provides shared types for health check responses.
package health

// Response represents the API health response structure. Liveness fills the
// service fields, readiness the engine fields.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Service   string `json:"service,omitempty"`
		StartedAt string `json:"started_at,omitempty"`
		Uptime    string `json:"uptime,omitempty"`
		UptimeSec int64  `json:"uptime_sec,omitempty"`

		Clients       int    `json:"clients"`
		LockedObjects int    `json:"locked_objects"`
		Distributed   bool   `json:"distributed"`
		InGrace       bool   `json:"in_grace"`
		BootEpoch     uint32 `json:"boot_epoch"`
		Latency       string `json:"latency,omitempty"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
}

// Healthy reports whether the server answered healthy.
func (r *Response) Healthy() bool {
	return r.Status == "healthy"
}
