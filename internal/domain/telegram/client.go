package telegram

// Client sends plain-text messages to the operations chat. It decouples the
// job reporting logic from the bot library.
type Client interface {
	SendText(chatID int64, text string) error
}
