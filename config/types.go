package config

// Pauses toggles the runtime circuit breakers for the native modules.
type Pauses struct {
	Drop  bool `toml:"Drop"`
	Token bool `toml:"Token"`
}

// Modules returns the pause switches keyed by module name, matching the
// names the runtime guard checks before dispatching an operation.
func (p Pauses) Modules() map[string]bool {
	return map[string]bool{
		"drop":  p.Drop,
		"token": p.Token,
	}
}

// Telemetry configures the optional OTLP exporters. Telemetry stays off
// until an endpoint is configured.
type Telemetry struct {
	OTLPEndpoint string `toml:"OTLPEndpoint,omitempty"`
	OTLPInsecure bool   `toml:"OTLPInsecure,omitempty"`
	// OTLPHeaders is a comma-separated key=value list forwarded to the
	// exporters, typically for collector authentication.
	OTLPHeaders string `toml:"OTLPHeaders,omitempty"`
}
