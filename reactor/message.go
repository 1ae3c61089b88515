package reactor

// Message is the envelope pairing a decoded request and an optional
// response with its owning Connection. It is the
// hand-off unit between followers and workers.
//
// Construction increments the owning connection's refcount; destroy
// decrements it. A Message is exclusively owned by the single thread
// currently holding it -- the follower that created it, or the worker it
// was dispatched to -- never both at once.
type Message struct {
	conn     *Connection
	request  any
	response any
}

// newMessage creates a Message bound to conn, incrementing its refcount.
func newMessage(conn *Connection) *Message {
	conn.retain()
	return &Message{conn: conn}
}

// Connection returns the owning connection.
func (m *Message) Connection() *Connection { return m.conn }

// Request returns the decoded request payload, or nil.
func (m *Message) Request() any { return m.request }

// Response returns the attached response payload, or nil.
func (m *Message) Response() any { return m.response }

// SetRequest attaches a decoded request. Called by the decode stage.
func (m *Message) SetRequest(req any) { m.request = req }

// SetResponse attaches a response payload. Called by user Process logic, or
// by SendMessage for a server-initiated push.
func (m *Message) SetResponse(resp any) { m.response = resp }

// destroy releases the request/response via the handler's Cleanup callback
// and drops the reference this message held on its connection. Must be
// called exactly once, by the follower that owns the originating
// connection (never from a worker goroutine).
func (m *Message) destroy(h Handler) {
	if h != nil {
		if m.request != nil {
			h.Cleanup(m.request)
		}
		if m.response != nil {
			h.Cleanup(m.response)
		}
	}
	m.conn.release()
}
