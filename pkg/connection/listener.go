package connection

import "github.com/backkem/ipmi/pkg/commands"

// Listener receives the outcome of commands sent with SendIpmiCommand.
// Exactly one of response and err is set. err is ErrTimeout when the BMC
// did not answer in time, or a *message.CompletionError when it rejected
// the command.
//
// Listeners are called from the transport's receive goroutine or from the
// queue sweep, and must not block.
type Listener interface {
	Notify(tag uint8, cmd commands.Coder, response any, err error)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(tag uint8, cmd commands.Coder, response any, err error)

// Notify calls f.
func (f ListenerFunc) Notify(tag uint8, cmd commands.Coder, response any, err error) {
	f(tag, cmd, response, err)
}
