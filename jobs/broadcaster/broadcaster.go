package broadcaster

import (
	"context"
	"log"
	"strconv"
	"time"

	"regionvac/infra/outbox"
)

type Config struct {
	Driver     string // "sarama" or "kafka-go"
	Brokers    []string
	Topic      string
	Interval   time.Duration
	MaxRetries uint32
}

func DefaultConfig() Config {
	return Config{
		Driver:     DriverSarama,
		Topic:      "regionvac.cycles",
		Interval:   250 * time.Millisecond,
		MaxRetries: 5,
	}
}

// Broadcaster publishes cycle reports waiting in the outbox.
type Broadcaster struct {
	outbox    *outbox.Outbox
	publisher Publisher
	cfg       Config
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(ob *outbox.Outbox, pub Publisher, cfg Config) *Broadcaster {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &Broadcaster{
		outbox:    ob,
		publisher: pub,
		cfg:       cfg,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

// Start runs the publish loop in a goroutine until ctx is done.
func (b *Broadcaster) Start(ctx context.Context) {
	go b.Run(ctx)
}

func (b *Broadcaster) Run(ctx context.Context) {
	log.Println("[broadcaster] started")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[broadcaster] stopped")
			return

		case <-ticker.C:
			if _, err := b.replayOnce(ctx); err != nil {
				log.Printf("[broadcaster] replay failed: %v", err)
			}
		}
	}
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// replayOnce tries every NEW record and every FAILED record with retries
// left. It returns how many were acknowledged.
func (b *Broadcaster) replayOnce(ctx context.Context) (int, error) {
	var pending []outbox.Record
	collect := func(rec outbox.Record) error {
		if rec.State == outbox.StateFailed && rec.Retries >= b.cfg.MaxRetries {
			return nil
		}
		pending = append(pending, rec)
		return nil
	}
	if err := b.outbox.ScanByState(outbox.StateNew, collect); err != nil {
		return 0, err
	}
	if err := b.outbox.ScanByState(outbox.StateFailed, collect); err != nil {
		return 0, err
	}

	acked := 0
	var last uint64
	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}

		// 1. Mark SENT (idempotent)
		if err := b.outbox.UpdateState(rec.Cycle, outbox.StateSent, rec.Retries); err != nil {
			return acked, err
		}

		// 2. Publish
		key := []byte(strconv.FormatUint(rec.Cycle, 10))
		if err := b.publisher.Publish(ctx, key, rec.Payload); err != nil {
			log.Printf("[broadcaster] cycle %d: %v", rec.Cycle, err)
			if err := b.outbox.UpdateState(rec.Cycle, outbox.StateFailed, rec.Retries+1); err != nil {
				return acked, err
			}
			continue
		}

		// 3. Mark ACKED
		if err := b.outbox.UpdateState(rec.Cycle, outbox.StateAcked, rec.Retries); err != nil {
			return acked, err
		}
		acked++
		last = max(last, rec.Cycle)
	}

	if last > 0 {
		if _, err := b.outbox.TruncateAckedUpTo(last); err != nil {
			return acked, err
		}
	}
	return acked, nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
