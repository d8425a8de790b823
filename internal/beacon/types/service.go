package types

// Health is the verdict on a registered service's latest beat.
type Health string

const (
	HealthOK   Health = "ok"
	HealthFail Health = "fail"
)

type RegisterServiceRequest struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	// Timeout is a Go duration string ("90s", "6h"). Empty means the default.
	Timeout string `json:"timeout,omitempty"`
}

// ServiceInfo is a registered service together with its current status.
type ServiceInfo struct {
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at"`
	Timestamp string `json:"timestamp"`
	Timeout   string `json:"timeout"`
	Health    Health `json:"health"`
}
