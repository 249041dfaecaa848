package heartbeat

import (
	"context"
	"time"

	"usb-epaper-go/bus"
	"usb-epaper-go/x/mathx"
	"usb-epaper-go/x/timex"
)

var (
	topicConfigHeartbeat = bus.T("config", "heartbeat")
	topicHeartbeat       = bus.T("sys", "heartbeat")
)

const (
	defaultInterval = 2 * time.Second
	minInterval     = 100 * time.Millisecond
	maxInterval     = time.Hour
)

// Config is the payload retained at config/heartbeat.
type Config struct {
	IntervalMs uint32 `json:"interval_ms"`
}

// Beat is published, not retained, at sys/heartbeat on every tick.
type Beat struct {
	Seq      uint32 `json:"seq"`
	UptimeMs int64  `json:"uptime_ms"`
}

type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	start := timex.NowMs()
	tick := time.NewTicker(defaultInterval)
	defer tick.Stop()

	var seq uint32
	for {
		select {
		case <-ctx.Done():
			println("[heartbeat] stopping")
			return
		case <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(topicHeartbeat, Beat{Seq: seq, UptimeMs: timex.NowMs() - start}, false))
		case msg := <-cfgSub.Channel():
			cfg, ok := msg.Payload.(Config)
			if !ok || cfg.IntervalMs == 0 {
				println("[heartbeat] ignoring config")
				continue
			}
			iv := mathx.Clamp(timex.Ms(cfg.IntervalMs), minInterval, maxInterval)
			tick.Reset(iv)
			println("[heartbeat] interval set to", int(iv/time.Millisecond), "ms")
		}
	}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context, conn *bus.Connection) { s.serviceLoop(ctx, conn) }

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
