package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the root of the event hierarchy; consumers subscribe to
// SubjectPrefix + ">".
const SubjectPrefix = "ladybug.events."

// Publisher pushes domain events (grants, releases, reclamations) to NATS.
// The server runs fine without one; callers hold a nil *Publisher when no
// NATS URL is configured.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("ladybug-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// Event publishes one domain event under SubjectPrefix. The kind becomes the
// subject suffix ("granted", "reclaimed", ...) and fields are marshalled as
// the JSON payload.
func (p *Publisher) Event(ctx context.Context, kind string, fields map[string]any) error {
	if p.nc == nil || p.nc.IsClosed() {
		return fmt.Errorf("nats not connected")
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return p.nc.Publish(SubjectPrefix+kind, payload)
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}
