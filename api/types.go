// Package api defines the wire types of the codeflowd HTTP surface.
package api

// InstallRequest asks for a package to be installed for a language's
// subprocess runtime before future executions use it.
type InstallRequest struct {
	Language string `json:"language"`
	Package  string `json:"package"`
}

// InstallResponse reports one install outcome.
type InstallResponse struct {
	Language string `json:"language"`
	Package  string `json:"package"`
	Status   string `json:"status"`
}
