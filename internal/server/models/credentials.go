package models

// Credentials scope object-store calls to the caller's identity. They are
// borrowed for a single call and never written to the catalog.
type Credentials struct {
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token,omitempty"`
}

// Valid reports whether both key parts are present.
func (c *Credentials) Valid() bool {
	return c != nil && c.AccessKey != "" && c.SecretKey != ""
}
