package voice

// Conn is the bidirectional frame transport of one client connection.
// *websocket.Conn satisfies it. Reads happen on the input gateway's loop,
// writes on the output gateway's loop, so the single-reader single-writer
// contract of gorilla/websocket holds.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}
