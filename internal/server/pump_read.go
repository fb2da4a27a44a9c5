package server

import (
	"io"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/pusherd/pusherd/internal/monitoring"
)

// readPump deserializes frames from one connection and invokes the
// handlers serially; it is the single writer of the connection's
// subscription state. Control frames are handled here and replied to
// through the client's serialized control writer, never straight to
// the conn — the write pump owns bulk writes. No read deadline is set:
// idle connections stay open and liveness is the client's problem
// (pusher:ping, TCP keepalive). Exit always runs the full teardown.
func (s *Server) readPump(c *Client) {
	defer s.wg.Done()
	defer monitoring.RecoverPanic(s.logger, "readPump", map[string]any{
		"socket_id": c.id,
	})
	defer s.disconnectClient(c)

	rd := wsutil.NewReader(c.conn, ws.StateServerSide)
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return
		}

		switch hdr.OpCode {
		case ws.OpClose:
			return

		case ws.OpPing:
			payload := make([]byte, hdr.Length)
			if _, err := io.ReadFull(rd, payload); err != nil {
				return
			}
			if err := c.writeControl(ws.NewPongFrame(payload)); err != nil {
				return
			}

		case ws.OpText:
			msg := make([]byte, hdr.Length)
			if _, err := io.ReadFull(rd, msg); err != nil {
				return
			}

			atomic.AddInt64(&s.stats.MessagesReceived, 1)
			atomic.AddInt64(&s.stats.BytesReceived, int64(len(msg)))
			monitoring.MessagesReceived.Inc()
			monitoring.BytesReceived.Add(float64(len(msg)))

			c.touch()
			// Frames arriving after shutdown begins are ignored.
			if atomic.LoadInt32(&s.shuttingDown) == 1 {
				continue
			}
			s.handleFrame(c, msg)

		default:
			// Pongs, binary, stray continuations: drain and move on.
			// The reader refuses to advance past unread payload.
			if _, err := io.CopyN(io.Discard, rd, int64(hdr.Length)); err != nil {
				return
			}
		}
	}
}
