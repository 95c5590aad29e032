package models

import "time"

// Model provider constants.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ModelTier is one entry in the promotion chain: a model plus the maximum
// wait for its first streamed token before the promoter moves on to the
// next tier. Pure configuration, no lifecycle beyond config load.
type ModelTier struct {
	Provider          string        `json:"provider"`
	Model             string        `json:"model"`
	FirstTokenTimeout time.Duration `json:"first_token_timeout"`
}
