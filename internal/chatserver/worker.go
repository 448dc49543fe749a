package chatserver

import "context"

// runWorker dequeues RecvTasks and invokes the user callback. Context
// cancellation ends the loop. Callbacks run concurrently across workers
// when WorkerCount > 1, and must synchronize their own shared state.
func (s *Server) runWorker(ctx context.Context, id int) {
	defer s.wg.Done()
	for {
		task, ok := s.recvQ.Dequeue(ctx)
		if !ok {
			return
		}
		if s.onMessage == nil {
			continue
		}
		target, body := splitRaw(task.Raw)
		s.onMessage(task.ClientID, target, body)
	}
}
