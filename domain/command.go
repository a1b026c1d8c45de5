package domain

// ChatMessageEvent is the only event name exchanged with clients.
const ChatMessageEvent = "chat message"

// Frame is one event on a client connection.
type Frame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

func ChatMessage(data string) Frame {
	return Frame{Event: ChatMessageEvent, Data: data}
}

func (f Frame) IsChatMessage() bool {
	return f.Event == ChatMessageEvent
}
