package server

import (
	"bufio"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/pusherd/pusherd/internal/monitoring"
)

// writePump drains the client's send queue and writes frames, batching
// queued messages behind one flush to cut syscalls. Each batch holds
// the client's write lock from first frame through flush, so control
// frames written elsewhere land between batches, never inside one. A
// write error or teardown signal ends the pump; the slow peer never
// blocks anyone else because enqueueing is non-blocking on the other
// side.
func (s *Server) writePump(c *Client) {
	defer s.wg.Done()
	defer monitoring.RecoverPanic(s.logger, "writePump", map[string]any{
		"socket_id": c.id,
	})
	defer c.close()

	writer := bufio.NewWriter(c.conn)

	for {
		select {
		case message := <-c.send:
			if err := s.writeBatch(c, writer, message); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (s *Server) writeBatch(c *Client, writer *bufio.Writer, first []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := s.writeFrame(c, writer, first); err != nil {
		return err
	}

	// Batch whatever else is already queued.
	n := len(c.send)
	for i := 0; i < n; i++ {
		if err := s.writeFrame(c, writer, <-c.send); err != nil {
			return err
		}
	}

	if err := writer.Flush(); err != nil {
		s.logger.Debug().Err(err).Str("socket_id", c.id).Msg("Failed to flush writer")
		return err
	}
	return nil
}

func (s *Server) writeFrame(c *Client, w *bufio.Writer, message []byte) error {
	if err := wsutil.WriteServerMessage(w, ws.OpText, message); err != nil {
		s.logger.Debug().Err(err).Str("socket_id", c.id).Msg("Failed to write frame")
		return err
	}
	atomic.AddInt64(&s.stats.MessagesSent, 1)
	atomic.AddInt64(&s.stats.BytesSent, int64(len(message)))
	monitoring.MessagesSent.Inc()
	monitoring.BytesSent.Add(float64(len(message)))
	return nil
}
