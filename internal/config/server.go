package config

import "fmt"

// ServerConfig configures the drafting service.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	Provider  string `yaml:"provider"` // anthropic, gemini
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	APISecret string `yaml:"api_secret"` // bearer secret clients must present
	Persona   string `yaml:"persona"`    // who the drafts speak for, e.g. "Alex Kim, founder of Acme"

	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig describes how the persona writes. Every field is optional; an
// empty profile drafts with a plain default style.
type VoiceConfig struct {
	Summary   string   `yaml:"summary"` // e.g. "Direct, warm, specific"
	Greetings []string `yaml:"greetings"`
	Closings  []string `yaml:"closings"`
	Tone      []string `yaml:"tone"`
	Formality int      `yaml:"formality"` // 1-5, 0 for unset
	Length    string   `yaml:"length"`    // e.g. "2-3 sentences"
	Avoid     []string `yaml:"avoid"`     // words and phrases never to use

	// Examples are replies the persona actually sent.
	Examples []string `yaml:"examples"`
	// Feedback holds notes on earlier drafts, oldest first.
	Feedback []string `yaml:"feedback"`
}

// IsZero reports whether no style has been described.
func (v VoiceConfig) IsZero() bool {
	return v.Summary == "" && len(v.Greetings) == 0 && len(v.Closings) == 0 &&
		len(v.Tone) == 0 && v.Formality == 0 && v.Length == "" && len(v.Avoid) == 0
}

// ValidProviders lists the supported drafting backends.
var ValidProviders = []string{"anthropic", "gemini"}

// ValidateServer checks the settings the serve command needs.
func (c *Config) ValidateServer() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY or GEMINI_API_KEY)")
	}
	valid := false
	for _, p := range ValidProviders {
		if c.Server.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid provider: %s (valid: %v)", c.Server.Provider, ValidProviders)
	}
	if c.Server.APISecret == "" {
		return fmt.Errorf("api_secret not configured (set API_SECRET); every draft request would be rejected")
	}
	return nil
}
