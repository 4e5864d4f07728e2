package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/backkem/ipmi/pkg/message"
	"github.com/backkem/ipmi/pkg/transport"
)

// DefaultPingTimeout bounds a Presence Ping without a context deadline.
const DefaultPingTimeout = time.Second

// Ping sends an ASF Presence Ping with tag to addr over conn and waits for
// the matching Presence Pong. Datagrams from other senders, with another
// tag or of another kind are skipped. Without a context deadline the wait
// is bounded by DefaultPingTimeout.
//
// Ping uses the read deadline of conn; conn must not be read concurrently.
func Ping(ctx context.Context, conn net.PacketConn, addr net.Addr, tag uint8) (*message.PresencePong, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultPingTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	defer conn.SetReadDeadline(time.Time{})

	// Unblock the read on cancellation.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.WriteTo(message.EncodePresencePing(tag), addr); err != nil {
		return nil, fmt.Errorf("discovery: sending ping to %v: %w", addr, err)
	}

	buf := make([]byte, transport.MaxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, ErrTimeout
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrTimeout
			}
			return nil, err
		}
		if !transport.SameAddr(addr, from) {
			continue
		}
		pong, err := message.DecodePresencePong(buf[:n])
		if err != nil || pong.Tag != tag {
			continue
		}
		return pong, nil
	}
}
