package constants

// Bot constants
const (
	// DefaultBotName is the default assistant identifier
	DefaultBotName = "chimp"
)

// Discord constants
const (
	// DiscordMaxMessageLength is the hard character limit for Discord messages
	DiscordMaxMessageLength = 2000

	// WorkingMessageLimit is the internal formatting budget, leaving
	// headroom under the hard limit for part indicators and notices
	WorkingMessageLimit = 1950
)

// Pipeline constants
const (
	// MaxSearchResults caps how many web results one gather requests
	MaxSearchResults = 5

	// MaxGatherConcurrency bounds the information-gathering fan-out
	MaxGatherConcurrency = 4
)
