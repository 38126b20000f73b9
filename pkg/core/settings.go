package core

// Settings represents the main configuration for the application
type Settings struct {
	Pairs     []string         // Trading pairs tracked at startup
	Timeframe string           // Candle timeframe, e.g. "15m"
	Telegram  TelegramSettings // Telegram control surface settings
}

// TelegramSettings holds configuration for Telegram integration
type TelegramSettings struct {
	Enabled bool   // Whether the Telegram controller is enabled
	Token   string // Telegram bot token
	Users   []int  // List of authorized user IDs
}
