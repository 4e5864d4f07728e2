package transport

import "net"

// rmcpVersion is the first byte of every RMCP datagram (ASF 2.0 Section
// 3.2.2.1). The read loop discards datagrams starting with anything else.
const rmcpVersion = 0x06

// ReceivedMessage is one RMCP datagram read from the socket, header
// included. Decoding is left to the session layer.
type ReceivedMessage struct {
	Data     []byte
	PeerAddr net.Addr
}

// MessageHandler is called on the read goroutine for each datagram. It must
// not block; the next datagram is read only after it returns.
type MessageHandler func(msg *ReceivedMessage)

// isRMCP reports whether b can be an RMCP datagram.
func isRMCP(b []byte) bool {
	return len(b) >= 4 && b[0] == rmcpVersion
}
