package server

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/kruton/etamoo/pkg/value"
)

// readLoop is the connection's reader half: bytes from the socket are
// decoded into input items and pushed onto the bounded input queue. The
// queue blocks when full, which backpressures the client.
func (c *Connection) readLoop() {
	br := bufio.NewReaderSize(c.conn, 4096)
	for {
		c.mu.Lock()
		binary := c.opts.binary
		c.mu.Unlock()

		if binary {
			buf := make([]byte, 1024)
			n, err := br.Read(buf)
			if n > 0 {
				c.touch()
				c.in <- InputItem{Data: buf[:n], Binary: true}
			}
			if err != nil {
				break
			}
			continue
		}

		line, err := br.ReadString('\n')
		if len(line) > 0 {
			c.touch()
			if item, ok := c.classify(line); ok {
				c.in <- item
			}
		}
		if err != nil {
			break
		}
	}
	c.in <- InputItem{EOF: true}
}

// classify turns a raw line into an input item: line endings and forbidden
// characters are stripped, and the flush command empties the input queue
// instead of joining it.
func (c *Connection) classify(raw string) (InputItem, bool) {
	line := strings.TrimSuffix(raw, "\n")
	line = strings.TrimSuffix(line, "\r")
	line = value.SanitizeLine(line)

	c.mu.Lock()
	flushCmd := c.opts.flushCmd
	c.mu.Unlock()
	if flushCmd != "" && line == flushCmd {
		n := c.drainInput()
		c.Notify(">> Flushed " + strconv.Itoa(n) + " lines of input. <<")
		return InputItem{}, false
	}
	return InputItem{Line: line}, true
}

// drainInput discards everything queued but not yet dispatched.
func (c *Connection) drainInput() int {
	n := 0
	for {
		select {
		case item := <-c.in:
			if item.EOF {
				// Never swallow the terminal item.
				c.in <- item
				return n
			}
			n++
		default:
			return n
		}
	}
}

// writeLoop is the connection's writer half: it drains the output queue
// onto the socket, CRLF-terminating text lines, until the queue closes.
func (c *Connection) writeLoop() {
	for {
		m, ok := c.out.Pop()
		if !ok {
			break
		}
		var err error
		if m.Binary {
			_, err = c.conn.Write(m.Data)
		} else {
			_, err = io.WriteString(c.conn, m.Line+"\r\n")
		}
		if err != nil {
			break
		}
	}
	c.conn.Close()
}

// OOB line prefixes.
const (
	oobPrefix    = "#$#"
	oobEscPrefix = "#$\""
)
