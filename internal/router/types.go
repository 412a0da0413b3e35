package router

// Platform names used in InboundMessage.Platform and as correlation ID prefixes.
const (
	PlatformTelegram = "telegram"
	PlatformSlack    = "slack"
	PlatformConsole  = "console"
)

// InboundMessage is a user message delivered by a transport.
type InboundMessage struct {
	Platform string
	// ChatID identifies the conversation replies go to: a Telegram chat ID
	// rendered in base 10, or a Slack channel ID.
	ChatID   string
	UserID   string
	Username string
	Text     string
}

// ActionKind is the kind of reply a transport must send.
type ActionKind int

const (
	SendText ActionKind = iota
	SendPhoto
)

// String returns a short label for logs.
func (k ActionKind) String() string {
	switch k {
	case SendText:
		return "send_text"
	case SendPhoto:
		return "send_photo"
	default:
		return "unknown"
	}
}

// Action is a single reply instruction. Transports execute actions in order.
type Action struct {
	Kind     ActionKind
	ChatID   string
	Text     string
	PhotoURL string
	// Keyboard is an optional reply keyboard, one inner slice per row.
	// Transports without reply keyboards ignore it.
	Keyboard [][]string
}

func textAction(chatID, text string) Action {
	return Action{Kind: SendText, ChatID: chatID, Text: text}
}

func photoAction(chatID, url string) Action {
	return Action{Kind: SendPhoto, ChatID: chatID, PhotoURL: url}
}
