package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type DropRecorder interface {
	NotificationDropped(channel string)
}

type push struct {
	chatID int64
	text   string
}

// Notifier delivers offline pushes from a bounded queue on a single worker.
// Enqueue never blocks; a full queue drops the push.
type Notifier struct {
	sender   TextSender
	queue    chan push
	recorder DropRecorder
	timeout  time.Duration
	logger   *zap.Logger
}

func NewNotifier(sender TextSender, queueSize int, recorder DropRecorder, logger *zap.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		sender:   sender,
		queue:    make(chan push, queueSize),
		recorder: recorder,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

func (n *Notifier) Enqueue(chatID int64, text string) bool {
	if n == nil || n.sender == nil || chatID == 0 {
		return false
	}
	select {
	case n.queue <- push{chatID: chatID, text: text}:
		return true
	default:
		if n.recorder != nil {
			n.recorder.NotificationDropped("telegram")
		}
		n.logger.Warn("telegram push dropped", zap.Int64("chat_id", chatID))
		return false
	}
}

// Run drains the queue until ctx is done. Pending pushes are discarded on shutdown.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-n.queue:
			sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
			if err := n.sender.SendText(sendCtx, p.chatID, p.text); err != nil {
				n.logger.Warn("telegram push failed", zap.Int64("chat_id", p.chatID), zap.Error(err))
			}
			cancel()
		}
	}
}
