package reactor

// DecodeStatus is the tri-valued result of Handler.Decode.
type DecodeStatus int

const (
	// DecodeOK indicates a full request frame was extracted.
	DecodeOK DecodeStatus = iota
	// DecodeAgain indicates not enough bytes are buffered yet; the bytes
	// are left intact for the next read.
	DecodeAgain
	// DecodeErr indicates the buffered bytes can never form a valid
	// frame; the connection is closed.
	DecodeErr
)

// Handler is the user-supplied vtable registered per listen endpoint.
// All methods except Decode/Encode/Process are optional; embed BaseHandler
// to get no-op defaults.
type Handler interface {
	// Decode extracts one framed request from buf. On DecodeAgain the
	// buffer must be left untouched. On DecodeOK, req is the parsed
	// request and is attached to a new Message.
	Decode(buf *Buffer) (req any, status DecodeStatus)

	// Encode appends the encoded form of resp to buf. Called only when a
	// Message carries a non-nil response.
	Encode(buf *Buffer, resp any)

	// Process runs user logic for msg. It may call msg.Request/
	// msg.SetResponse. Runs on a worker pool goroutine if one is
	// configured, otherwise inline on the owning follower.
	Process(msg *Message)

	// Cleanup releases a request or response payload when a Message is
	// destroyed without a handler-specific destructor. May be a no-op.
	Cleanup(payload any)

	// OnConnect fires on the leader after a connection is registered and
	// before placement.
	OnConnect(conn *Connection)

	// OnDisconnect fires on the owning follower when close(conn) runs.
	OnDisconnect(conn *Connection)
}

// BaseHandler provides no-op implementations of the optional Handler
// methods (OnConnect/OnDisconnect/Cleanup) so implementations only need to
// supply Decode/Encode/Process. Mirrors a dependency-injected
// MessageHandler pattern, generalized to the full vtable.
type BaseHandler struct{}

func (BaseHandler) Cleanup(any)             {}
func (BaseHandler) OnConnect(*Connection)    {}
func (BaseHandler) OnDisconnect(*Connection) {}
