// Package broadcaster drains the outbox to Kafka. Settlement-grade
// events go through sarama with full acks; a second, best-effort
// producer mirrors everything to an audit topic.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tovfikur/virtual-world-sub003/infra/kafka"
	"github.com/tovfikur/virtual-world-sub003/infra/outbox"
)

type Config struct {
	Brokers    []string
	Topic      string
	AuditTopic string
	Interval   time.Duration
}

type Broadcaster struct {
	log      *zap.Logger
	out      *outbox.Outbox
	producer sarama.SyncProducer
	audit    *kafka.Producer
	topic    string
	interval time.Duration
}

func New(log *zap.Logger, out *outbox.Outbox, cfg Config) (*Broadcaster, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}

	var audit *kafka.Producer
	if cfg.AuditTopic != "" {
		audit = kafka.NewProducer(cfg.Brokers, cfg.AuditTopic)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	return &Broadcaster{
		log:      log,
		out:      out,
		producer: producer,
		audit:    audit,
		topic:    cfg.Topic,
		interval: interval,
	}, nil
}

// Run drains pending events until ctx is done. Blocks.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce(ctx)
		}
	}
}

// drainOnce walks NEW and SENT records in order. Publish and ack are
// two separate durable steps: a crash in between re-sends, consumers
// dedupe on seq.
func (b *Broadcaster) drainOnce(ctx context.Context) {
	err := b.out.ScanPending(func(rec outbox.Record) error {
		if err := b.out.MarkSent(rec.Seq); err != nil {
			return err
		}

		key := strconv.FormatUint(rec.Seq, 10)
		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(key),
			Value: sarama.ByteEncoder(rec.Payload),
			Headers: []sarama.RecordHeader{{
				Key:   []byte("kind"),
				Value: []byte(strconv.Itoa(int(rec.Kind))),
			}},
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry",
				zap.Uint64("seq", rec.Seq), zap.Error(err))
			return nil // leave SENT, retried on the next pass
		}

		if b.audit != nil {
			if err := b.audit.Send(ctx, []byte(key), rec.Payload); err != nil {
				b.log.Warn("audit publish failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
			}
		}

		return b.out.MarkAcked(rec.Seq)
	})
	if err != nil {
		b.log.Error("outbox drain failed", zap.Error(err))
	}
}

func (b *Broadcaster) Close() error {
	if b.audit != nil {
		_ = b.audit.Close()
	}
	return b.producer.Close()
}
