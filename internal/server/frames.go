package server

// Frame types exchanged over the websocket.
const (
	FrameChat   = "chat"   // client -> server: player message; server -> client: published line
	FrameNotice = "notice" // server -> client: private notice
	FrameJoin   = "join"   // server -> client: a player joined
	FrameLeave  = "leave"  // server -> client: a player left
)

// Frame is one JSON websocket message.
type Frame struct {
	Type    string `json:"type"`
	Player  string `json:"player,omitempty"`
	Message string `json:"message,omitempty"`
}
