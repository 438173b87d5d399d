package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// socketClient wraps a single upgraded connection. Gorilla permits only one
// concurrent writer per connection, so sends are serialised with a mutex.
type socketClient struct {
	id         *uuid.UUID
	socket     *websocket.Conn
	writeMutex sync.Mutex
}

func (client *socketClient) SendMessage(message *SocketMessage) error {
	client.writeMutex.Lock()
	defer client.writeMutex.Unlock()

	return client.socket.WriteJSON(message)
}

// Read pumps the connection until the peer disconnects. Inbound payloads
// are discarded; the activity socket is a one-way announcement channel, but
// the read loop must run for close/ping control frames to be processed.
func (client *socketClient) Read() error {
	for {
		if _, _, err := client.socket.ReadMessage(); err != nil {
			return err
		}
	}
}

func (client *socketClient) Close() error {
	return client.socket.Close()
}
