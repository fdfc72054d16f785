package models

// Channel is a named message stream, either a standing group channel
// known at startup or a direct-message pairing created on demand.
type Channel struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DirectMessageBinding maps a resolved counterpart into the sidebar
// list of direct-message channels.
type DirectMessageBinding struct {
	ChannelID string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}
