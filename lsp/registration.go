package lsp

// Registration is one entry of a client/registerCapability request.
type Registration struct {
	ID              string `json:"id"`
	Method          Method `json:"method"`
	RegisterOptions any    `json:"registerOptions,omitempty"`
}

// RegistrationParams is the payload of client/registerCapability.
type RegistrationParams struct {
	Registrations []Registration `json:"registrations"`
}

// Unregistration is one entry of a client/unregisterCapability request.
type Unregistration struct {
	ID     string `json:"id"`
	Method Method `json:"method"`
}

// UnregistrationParams is the payload of client/unregisterCapability. The
// misspelled wire name is part of the protocol.
type UnregistrationParams struct {
	Unregisterations []Unregistration `json:"unregisterations"`
}
