package types

import "time"

// HealingConfig holds every tunable of the healing engine. Zero values are
// replaced with defaults by Normalize.
type HealingConfig struct {
	// Consecutive successful validations before an automation is considered
	// validated healthy.
	SuccessThreshold int `yaml:"successThreshold" json:"successThreshold"`

	// Circuit breaker for integration reloads.
	BreakerFailureThreshold int `yaml:"breakerFailureThreshold" json:"breakerFailureThreshold"`
	BreakerCooldownSeconds  int `yaml:"breakerCooldownSeconds" json:"breakerCooldownSeconds"`

	// Entity healer retry strategy.
	MaxRetryAttempts     int `yaml:"maxRetryAttempts" json:"maxRetryAttempts"`
	RetryBaseDelayMillis int `yaml:"retryBaseDelayMillis" json:"retryBaseDelayMillis"`
	ServiceCallTimeout   int `yaml:"serviceCallTimeoutSeconds" json:"serviceCallTimeoutSeconds"`

	// Cascade budget.
	CascadeTimeoutSeconds int `yaml:"cascadeTimeoutSeconds" json:"cascadeTimeoutSeconds"`

	// Device healer.
	RebootTimeoutSeconds     int     `yaml:"rebootTimeoutSeconds" json:"rebootTimeoutSeconds"`
	VerificationDelaySeconds int     `yaml:"verificationDelaySeconds" json:"verificationDelaySeconds"`
	PartialSuccessThreshold  float64 `yaml:"partialSuccessThreshold" json:"partialSuccessThreshold"`

	// Outcome validation.
	ValidationWindowSeconds int `yaml:"validationWindowSeconds" json:"validationWindowSeconds"`

	// Shutdown grace for in-flight cascades.
	DrainGraceSeconds int `yaml:"drainGraceSeconds" json:"drainGraceSeconds"`
}

// DefaultHealingConfig returns the engine defaults.
func DefaultHealingConfig() HealingConfig {
	return HealingConfig{
		SuccessThreshold:         3,
		BreakerFailureThreshold:  10,
		BreakerCooldownSeconds:   300,
		MaxRetryAttempts:         3,
		RetryBaseDelayMillis:     500,
		ServiceCallTimeout:       10,
		CascadeTimeoutSeconds:    120,
		RebootTimeoutSeconds:     30,
		VerificationDelaySeconds: 5,
		PartialSuccessThreshold:  0.5,
		ValidationWindowSeconds:  30,
		DrainGraceSeconds:        30,
	}
}

// Normalize replaces zero or out-of-range values with defaults.
func (c *HealingConfig) Normalize() {
	def := DefaultHealingConfig()
	if c.SuccessThreshold < 1 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.BreakerFailureThreshold <= 0 {
		c.BreakerFailureThreshold = def.BreakerFailureThreshold
	}
	if c.BreakerCooldownSeconds <= 0 {
		c.BreakerCooldownSeconds = def.BreakerCooldownSeconds
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = def.MaxRetryAttempts
	}
	if c.RetryBaseDelayMillis <= 0 {
		c.RetryBaseDelayMillis = def.RetryBaseDelayMillis
	}
	if c.ServiceCallTimeout <= 0 {
		c.ServiceCallTimeout = def.ServiceCallTimeout
	}
	if c.CascadeTimeoutSeconds <= 0 {
		c.CascadeTimeoutSeconds = def.CascadeTimeoutSeconds
	}
	if c.RebootTimeoutSeconds <= 0 {
		c.RebootTimeoutSeconds = def.RebootTimeoutSeconds
	}
	if c.VerificationDelaySeconds <= 0 {
		c.VerificationDelaySeconds = def.VerificationDelaySeconds
	}
	if c.PartialSuccessThreshold <= 0 || c.PartialSuccessThreshold > 1 {
		c.PartialSuccessThreshold = def.PartialSuccessThreshold
	}
	if c.ValidationWindowSeconds <= 0 {
		c.ValidationWindowSeconds = def.ValidationWindowSeconds
	}
	if c.DrainGraceSeconds <= 0 {
		c.DrainGraceSeconds = def.DrainGraceSeconds
	}
}

// BreakerCooldown returns the breaker cooldown as a duration.
func (c HealingConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

// RetryBaseDelay returns the entity retry base delay as a duration.
func (c HealingConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMillis) * time.Millisecond
}

// VerificationDelay returns the device state-verification delay.
func (c HealingConfig) VerificationDelay() time.Duration {
	return time.Duration(c.VerificationDelaySeconds) * time.Second
}

// WatcherConfig controls the validation sweep loop.
type WatcherConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"` // e.g. "15s"
}

// PlatformConfig locates the remote home-automation platform API.
type PlatformConfig struct {
	BaseURL        string `yaml:"baseUrl" json:"baseUrl"`
	Token          string `yaml:"token,omitempty" json:"token,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" json:"timeoutSeconds,omitempty"`
}

// AlertConfig configures one alert sink.
type AlertConfig struct {
	Type AlertType `yaml:"type" json:"type"`
	URL  string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path string    `yaml:"path,omitempty" json:"path,omitempty"`
}

// ServerConfig configures the HTTP status API.
type ServerConfig struct {
	Addr   string `yaml:"addr,omitempty" json:"addr,omitempty"`
	APIKey string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
}

// ProjectConfig is the top-level halcyon.yaml structure. Provider-specific
// sections are decoded in a second pass by the config package to avoid an
// import cycle with the provider implementations.
type ProjectConfig struct {
	InstanceID string         `yaml:"instanceId" json:"instanceId"`
	Provider   string         `yaml:"provider" json:"provider"` // memory | redis | dynamodb
	Platform   PlatformConfig `yaml:"platform" json:"platform"`
	Healing    HealingConfig  `yaml:"healing" json:"healing"`
	Watcher    WatcherConfig  `yaml:"watcher,omitempty" json:"watcher,omitempty"`
	Alerts     []AlertConfig  `yaml:"alerts,omitempty" json:"alerts,omitempty"`
	Server     ServerConfig   `yaml:"server,omitempty" json:"server,omitempty"`

	// Decoded provider sections (concrete types owned by the providers).
	Redis    interface{} `yaml:"-" json:"-"`
	DynamoDB interface{} `yaml:"-" json:"-"`
}
