package erpclient

import "errors"

// Errors for ERP client configuration
var (
	ErrConfigMissingBaseURL  = errors.New("erpclient: base URL is required")
	ErrConfigMissingDatabase = errors.New("erpclient: database name is required")
	ErrConfigMissingUsername = errors.New("erpclient: username is required")
	ErrConfigMissingAPIKey   = errors.New("erpclient: API key is required")
)

// Config holds connection settings for the ERP JSON-RPC endpoint.
type Config struct {
	// BaseURL is the root URL of the ERP instance
	BaseURL string
	// Database is the ERP database name passed on every call
	Database string
	// Username authenticates the integration user
	Username string
	// APIKey is the integration user's API key, used in place of a password
	APIKey string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// NewConfig creates an ERP client configuration with defaults.
func NewConfig(baseURL, database, username, apiKey string) *Config {
	return &Config{
		BaseURL:        baseURL,
		Database:       database,
		Username:       username,
		APIKey:         apiKey,
		TimeoutSeconds: 30,
	}
}

// Validate validates the ERP client configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	if c.Database == "" {
		return ErrConfigMissingDatabase
	}
	if c.Username == "" {
		return ErrConfigMissingUsername
	}
	if c.APIKey == "" {
		return ErrConfigMissingAPIKey
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
