package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/pitch-scheduler/internal/domain/booking"
)

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Notifier publishes booking notices as JSON.
type Notifier struct {
	pub     Publisher
	subject string
	now     func() time.Time
}

var _ booking.NoticeNotifier = (*Notifier)(nil)

func NewNotifier(pub Publisher, subject string) *Notifier {
	if subject == "" {
		subject = DefaultNotifySubject
	}
	return &Notifier{pub: pub, subject: subject, now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, message string) error {
	return n.NotifyNotice(ctx, booking.Notice{Message: message})
}

func (n *Notifier) NotifyNotice(_ context.Context, notice booking.Notice) error {
	if notice.At.IsZero() {
		notice.At = n.now()
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}
