package wslink

// Dispatcher executes command messages pushed by the peer. It is an external
// collaborator: the core delivers at most one Handle call per inbound action
// message and never waits for it to finish.
//
// If id is non-empty the dispatcher is expected to eventually answer with
// Client.Send of a message carrying that id and a success field. Handle may
// defer the work onto a host-owned execution context, for example a UI
// thread; the only requirement is that Send is reachable from wherever the
// result is produced.
type Dispatcher interface {
	Handle(action string, params map[string]interface{}, id string)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(action string, params map[string]interface{}, id string)

func (f DispatcherFunc) Handle(action string, params map[string]interface{}, id string) {
	f(action, params, id)
}
