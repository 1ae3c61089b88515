package reactor

import (
	"golang.org/x/sys/unix"
)

const readChunk = 4096

// onConnectionRead is the read stage.
func onConnectionRead(c *Connection, l *loop, workers *workerPool) {
	if c.IsClosed() {
		return // spurious wakeup defense
	}

	dst := c.readBuf.EnsureWritable(readChunk)
	n, err := unix.Read(c.fd, dst)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.close(l)
		return
	}
	if n == 0 {
		c.close(l)
		return
	}
	c.readBuf.AdvanceWrite(n)
	processReadBuffer(c, l, workers)
}

// processReadBuffer decodes as many complete frames as are buffered and
// dispatches each to a worker, or runs Process inline if none is configured.
func processReadBuffer(c *Connection, l *loop, workers *workerPool) {
	h := c.handler
	if h == nil {
		c.readBuf.Reset()
		return
	}

	for {
		req, status := h.Decode(c.readBuf)
		switch status {
		case DecodeAgain:
			return
		case DecodeErr:
			c.close(l)
			return
		case DecodeOK:
			msg := newMessage(c)
			msg.SetRequest(req)
			if workers == nil {
				h.Process(msg)
				processMessage(c, l, msg)
				msg.destroy(h)
				if c.IsClosed() {
					// A failed write closed the connection while msg held
					// a reference; this drop completes the deferred close.
					if c.refcount() == 1 {
						c.terminalClose()
					}
					return
				}
			} else {
				workers.submit(task{conn: c, msg: msg, process: h.Process})
			}
		}
		if c.readBuf.IsEmpty() {
			return
		}
	}
}

// processMessage is the encode/write stage.
func processMessage(c *Connection, l *loop, m *Message) {
	h := c.handler
	if m.Response() != nil && h != nil {
		h.Encode(c.writeBuf, m.Response())
	}
	if c.writeBuf.IsEmpty() {
		return
	}
	writeOnce(c, l)
}

// writeOnce issues a single non-blocking write of the write buffer's
// readable range and arms the write-readiness registration on partial
// writes.
func writeOnce(c *Connection, l *loop) {
	data := c.writeBuf.Readable()
	n, err := unix.Write(c.fd, data)
	if err != nil {
		if err == unix.EAGAIN {
			c.armReadWrite(l)
			return
		}
		c.close(l)
		return
	}
	if n == 0 {
		c.close(l)
		return
	}
	c.writeBuf.AdvanceRead(n)
	if n < len(data) && !c.IsClosed() {
		c.armReadWrite(l)
		return
	}
	if c.writeBuf.IsEmpty() {
		c.writeArmed = false
		if !c.IsClosed() {
			c.armRead(l)
		}
	}
}

// onConnectionWrite retries a short write once the socket reports writable.
func onConnectionWrite(c *Connection, l *loop) {
	if c.writeBuf.IsEmpty() {
		return
	}
	data := c.writeBuf.Readable()
	n, err := unix.Write(c.fd, data)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.close(l)
		return
	}
	c.writeBuf.AdvanceRead(n)
	if c.writeBuf.IsEmpty() {
		c.writeArmed = false
		if !c.IsClosed() {
			c.armRead(l)
		}
	}
}
