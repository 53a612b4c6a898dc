// Package drivers adapts the controlled router tools (init.d services,
// opkg, the AWG manager API) to small capability interfaces over the shell
// runner. New tools are added by implementing Service, not by branching on
// names.
package drivers

import "context"

// ServiceStatus is the common probe result for a controlled tool.
type ServiceStatus struct {
	Installed bool   `json:"installed"`
	Running   bool   `json:"running"`
	Version   string `json:"version,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Service is the start/stop/status contract every controlled tool satisfies.
// Status probes must be cheap; action methods may take tens of seconds and
// are bounded by the runner's timeouts.
type Service interface {
	Name() string
	Status(ctx context.Context) ServiceStatus
	Start(ctx context.Context) ServiceStatus
	Stop(ctx context.Context) ServiceStatus
	Restart(ctx context.Context) ServiceStatus
}
