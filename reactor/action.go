package reactor

import "fmt"

// Action is a unit of work a Handler asks the reactor to perform.
type Action interface {
	isAction()
	fmt.Stringer
}

// RegisterListener starts accepting on a listener.
type RegisterListener struct {
	Listener Listener
}

// RegisterTransport starts serving a transport.
type RegisterTransport struct {
	Transport Transport
}

// Send writes Data to the transport with ID.
type Send struct {
	ID   ID
	Data []byte
}

// UnregisterListener stops a listener and hands it back to the Handler.
type UnregisterListener struct {
	ID ID
}

// UnregisterTransport stops a transport and hands it back to the Handler.
type UnregisterTransport struct {
	ID ID
}

func (RegisterListener) isAction()    {}
func (RegisterTransport) isAction()   {}
func (Send) isAction()                {}
func (UnregisterListener) isAction()  {}
func (UnregisterTransport) isAction() {}

func (a RegisterListener) String() string {
	return fmt.Sprintf("RegisterListener(%s)", a.Listener.ID())
}

func (a RegisterTransport) String() string {
	return fmt.Sprintf("RegisterTransport(%s)", a.Transport.ID())
}

func (a Send) String() string {
	return fmt.Sprintf("Send(%s, %d bytes)", a.ID, len(a.Data))
}

func (a UnregisterListener) String() string {
	return fmt.Sprintf("UnregisterListener(%s)", a.ID)
}

func (a UnregisterTransport) String() string {
	return fmt.Sprintf("UnregisterTransport(%s)", a.ID)
}
