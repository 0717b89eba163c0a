package notifications

import (
	"context"
	"log/slog"
	"time"
)

// Start launches the worker pool. Workers exit once Stop has drained the queue.
func (n *Notifier) Start(ctx context.Context) {
	for id := range n.config.NumWorkers {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			for p := range n.queue {
				queued.Dec()
				n.deliver(ctx, id, p)
			}
		}()
	}

	slog.Info("notifier started", "workers", n.config.NumWorkers, "queue_size", n.config.QueueSize, "senders", len(n.senders))
}

// Stop closes the queue to new incidents and blocks until queued ones are delivered.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	n.wg.Wait()
	slog.Info("notifier stopped")
}

// deliver fans a payload out to every channel. There is no retry.
func (n *Notifier) deliver(ctx context.Context, worker int, p Payload) {
	log := slog.With("worker", worker, "incident_id", p.Incident.ID, "message_type", p.MessageType)

	for _, s := range n.senders {
		channel := s.Channel()

		msg, err := n.renderer.Render(channel, p)
		if err != nil {
			log.Error("render notification", "channel", channel, "error", err)
			observeDelivery(channel, p.MessageType, outcomeRenderFailed, 0)
			continue
		}

		// Shutdown must not cut off payloads that were already queued.
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.config.SendTimeout)
		started := time.Now()
		err = s.Send(sendCtx, msg)
		took := time.Since(started)
		cancel()

		if err != nil {
			log.Error("webhook delivery failed", "channel", channel, "took", took, "error", err)
			observeDelivery(channel, p.MessageType, outcomeSendFailed, took)
			continue
		}

		observeDelivery(channel, p.MessageType, outcomeDelivered, took)
		log.Debug("webhook delivered", "channel", channel, "took", took)
	}
}
