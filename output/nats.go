package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const natsClientName = "signal-tis"

// NATSSink 每步把决策事件以JSON发布到NATS主题
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// NewNATSSink 连接NATS
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats: empty subject")
	}
	conn, err := nats.Connect(url,
		nats.Name(natsClientName),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(10),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	conn.SetDisconnectErrHandler(func(nc *nats.Conn, err error) {
		if err != nil {
			log.Warnf("nats disconnected: %v", err)
		}
	})
	return &NATSSink{conn: conn, subject: subject}, nil
}

func (s *NATSSink) Name() string {
	return "nats:" + s.subject
}

func (s *NATSSink) WriteStep(_ context.Context, ev StepEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.conn.Publish(s.subject, data)
}

// Close 发送缓冲中的消息后断开
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Drain()
	s.conn = nil
	return err
}
