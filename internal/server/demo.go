package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/topicbatch/internal/config"
	"github.com/JakeFAU/topicbatch/internal/registry"
)

// DemoEvent is the payload the built-in producer sends.
type DemoEvent struct {
	Seq     int       `json:"seq"`
	Message string    `json:"message"`
	SentAt  time.Time `json:"sent_at"`
}

type producer struct {
	sender   *registry.Sender[DemoEvent]
	interval time.Duration
	count    int
	logger   *zap.Logger
}

func newProducer(sender *registry.Sender[DemoEvent], cfg config.DemoConfig, logger *zap.Logger) *producer {
	return &producer{
		sender:   sender,
		interval: cfg.Interval,
		count:    cfg.Count,
		logger:   logger,
	}
}

// Run sends numbered events until count is reached (zero means no limit), a
// send is rejected, or ctx ends. It returns the number of accepted events.
func (p *producer) Run(ctx context.Context) int {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	sent := 0
	for seq := 1; p.count == 0 || seq <= p.count; seq++ {
		event := DemoEvent{
			Seq:     seq,
			Message: fmt.Sprintf("message %d", seq),
			SentAt:  time.Now().UTC(),
		}
		if err := p.sender.Send(ctx, event); err != nil {
			p.logger.Info("producer stopped; sender closed",
				zap.String("topic", p.sender.Topic()),
				zap.Int("sent", sent),
				zap.Error(err),
			)
			return sent
		}
		sent++
		p.logger.Debug("event sent", zap.String("topic", p.sender.Topic()), zap.Int("seq", seq))

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			return sent
		case <-timer.C:
		}
	}
	p.logger.Info("producer finished", zap.String("topic", p.sender.Topic()), zap.Int("sent", sent))
	return sent
}
