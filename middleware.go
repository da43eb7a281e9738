package redkit

/*
Middleware chain

Middleware wraps command dispatch the same way an HTTP middleware stack
wraps a handler: each layer gets to run code before and after the next
layer (and the final CommandHandler), rewrite the Command on the way in,
rewrite the RedisValue on the way out, or refuse to call next at all and
short-circuit the chain. This file was absent from the teacher snapshot
this module started from — middleware_test.go already specified the
exact contract, reconstructed here.
*/

// Middleware is one link in a MiddlewareChain. next is either the next
// middleware in the chain or, for the last one, the command's real
// handler.
type Middleware interface {
	Handle(conn *Connection, cmd *Command, next CommandHandler) RedisValue
}

// MiddlewareFunc adapts a plain function to Middleware.
type MiddlewareFunc func(conn *Connection, cmd *Command, next CommandHandler) RedisValue

// Handle implements Middleware.
func (f MiddlewareFunc) Handle(conn *Connection, cmd *Command, next CommandHandler) RedisValue {
	return f(conn, cmd, next)
}

// MiddlewareChain holds an ordered list of Middleware and wraps a final
// CommandHandler in all of them, outermost first.
type MiddlewareChain struct {
	layers []Middleware
}

// NewMiddlewareChain returns an empty chain.
func NewMiddlewareChain() *MiddlewareChain {
	return &MiddlewareChain{}
}

// Add appends m to the end of the chain. Middleware added earlier runs
// closer to the edges (first to see the request, last to see the
// response); middleware added later runs closer to the handler.
func (c *MiddlewareChain) Add(m Middleware) {
	c.layers = append(c.layers, m)
}

// Execute runs the chain around handler. With layers [A, B, C] the call
// order is A-before, B-before, C-before, handler, C-after, B-after,
// A-after — each layer's next.Handle call is what lets the next layer
// (or the handler) run at all, so a layer that returns without calling
// next short-circuits everything inside it.
func (c *MiddlewareChain) Execute(conn *Connection, cmd *Command, handler CommandHandler) RedisValue {
	wrapped := handler
	for i := len(c.layers) - 1; i >= 0; i-- {
		layer := c.layers[i]
		next := wrapped
		wrapped = CommandHandlerFunc(func(conn *Connection, cmd *Command) RedisValue {
			return layer.Handle(conn, cmd, next)
		})
	}
	return wrapped.Handle(conn, cmd)
}

// Use registers a Middleware to wrap every command dispatched through
// the server, in addition to any handler-specific logic.
func (s *Server) Use(m Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.middleware == nil {
		s.middleware = NewMiddlewareChain()
	}
	s.middleware.Add(m)
}

// UseFunc is the function-literal convenience form of Use.
func (s *Server) UseFunc(f func(conn *Connection, cmd *Command, next CommandHandler) RedisValue) {
	s.Use(MiddlewareFunc(f))
}
