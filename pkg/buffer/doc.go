// Package buffer provides the bounded queues that connect the stages of the
// audio pipeline.
//
// A [Queue] is a fixed-capacity FIFO shared by exactly one producer stage and
// one consumer stage. Producers that must never stall (an audio device
// callback, a gate forwarding frames to the network) use [Queue.TryPush],
// which drops the item and counts it when the queue is full. Producers that
// may wait use [Queue.Push].
//
// Shutdown follows the same two modes as the rest of the pipeline:
//
//   - CloseWrite is the sentinel: no more items are accepted, the consumer
//     drains what is left and then receives [ErrIteratorDone].
//   - CloseWithError tears the queue down immediately; pending and future
//     calls on both ends fail with the given error.
//
// Example usage:
//
//	q := buffer.NewQueue[[]byte](20)
//	if !q.TryPush(frame) {
//		slog.Warn("send queue full, frame dropped")
//	}
//
//	for {
//		frame, err := q.Pop(ctx)
//		if errors.Is(err, buffer.ErrIteratorDone) {
//			return nil
//		}
//		...
//	}
package buffer
