package events

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBus publishes events to NATS.
type NATSBus struct {
	nc *nats.Conn
}

// ConnectNATS dials url. An empty url returns a nil bus and no error.
func ConnectNATS(url string, logger *zap.Logger) (*NATSBus, error) {
	if url == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("gloads-portal"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	logger.Info("NATS connected", zap.String("url", nc.ConnectedUrl()))
	return &NATSBus{nc: nc}, nil
}

// Publish implements Bus.
func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// Close drains pending messages and closes the connection.
func (b *NATSBus) Close() {
	if b == nil || b.nc == nil {
		return
	}
	_ = b.nc.Drain()
}
