package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"vidlens/internal/config"
	"vidlens/internal/logging"
)

const nakDelay = 5 * time.Second

// Consumer subscribes a durable JetStream consumer and feeds a Handler.
type Consumer struct {
	cfg     config.Dispatch
	handler *Handler
	logger  *slog.Logger
}

// NewConsumer builds a Consumer for the dispatch section of cfg.
func NewConsumer(cfg config.Dispatch, handler *Handler, logger *slog.Logger) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "dispatch"),
	}
}

// Enabled reports whether a NATS URL is configured.
func (c *Consumer) Enabled() bool {
	return strings.TrimSpace(c.cfg.NATSURL) != ""
}

// Run connects, ensures the stream exists, and consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.Enabled() {
		return errors.New("dispatch: nats_url not configured")
	}
	conn, err := nats.Connect(c.cfg.NATSURL,
		nats.Name("vidlens"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", logging.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer conn.Close()

	js, err := conn.JetStream()
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}
	if err := c.ensureStream(js); err != nil {
		return err
	}

	sub, err := js.Subscribe(c.cfg.Subject, func(msg *nats.Msg) {
		c.deliver(ctx, msg)
	},
		nats.Durable(c.cfg.Durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.BindStream(c.cfg.Stream),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Subject, err)
	}
	c.logger.Info("dispatch consumer subscribed",
		logging.String("subject", c.cfg.Subject),
		logging.String("stream", c.cfg.Stream),
		logging.String("durable", c.cfg.Durable),
	)

	<-ctx.Done()
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		c.logger.Warn("dispatch drain failed", logging.Error(err))
	}
	return nil
}

func (c *Consumer) ensureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(c.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", c.cfg.Stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{c.cfg.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.cfg.Stream, err)
	}
	c.logger.Info("created dispatch stream", logging.String("stream", c.cfg.Stream))
	return nil
}

func (c *Consumer) deliver(ctx context.Context, msg *nats.Msg) {
	decision := c.handler.Handle(ctx, msg.Data)
	var err error
	switch decision {
	case Ack:
		err = msg.Ack()
	case Nak:
		err = msg.NakWithDelay(nakDelay)
	case Term:
		err = msg.Term()
	}
	if err != nil {
		c.logger.Warn("dispatch acknowledgement failed",
			logging.String("decision", decision.String()),
			logging.Error(err),
		)
	}
}
