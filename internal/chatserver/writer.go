package chatserver

import (
	"context"
	"fmt"

	"github.com/shimamura/chattransport/internal/metrics"
	"github.com/shimamura/chattransport/internal/roster"
	"github.com/shimamura/chattransport/internal/wire"
)

// runSender is the single sender goroutine: it dequeues SendTasks,
// serializes each with the current encrypt strategy, and writes to one
// client or the whole roster, one write per destination client.
func (s *Server) runSender(ctx context.Context) {
	defer s.wg.Done()
	scratch := make([]byte, s.maxFrameSize)
	for {
		task, ok := s.sendQ.Dequeue(ctx)
		if !ok {
			return
		}
		pair := s.currentPair()
		need := wire.HeaderSize + len(task.Body) + wire.ChecksumSize
		if need > len(scratch) {
			scratch = make([]byte, need)
		}
		n, err := wire.Serialize(scratch, task.Target, task.Body, pair.Encrypt)
		if err != nil {
			metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnWrite, err)))
			continue
		}
		frame := append([]byte(nil), scratch[:n]...)

		switch task.Dest {
		case Unicast:
			if c, ok := s.roster.Get(task.ClientID); ok {
				if err := c.Send(frame); err != nil {
					metrics.IncError(mapErrToMetric(fmt.Errorf("%w: %v", ErrConnWrite, err)))
				} else {
					metrics.IncSent()
				}
			}
		case Broadcast:
			count := 0
			s.roster.ForEach(func(c *roster.Conn) {
				if err := c.Send(frame); err == nil {
					count++
					metrics.IncSent()
				}
			})
			metrics.SetBroadcastFanout(count)
		}
	}
}
