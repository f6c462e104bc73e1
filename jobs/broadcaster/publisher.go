package broadcaster

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"regionvac/infra/kafka"
)

// Publisher delivers one report. It returns once the broker acknowledged
// the message or the attempt failed.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

const (
	DriverSarama  = "sarama"
	DriverKafkaGo = "kafka-go"
)

// NewPublisher builds the publisher selected by cfg.Driver.
func NewPublisher(cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case DriverSarama, "":
		return NewSaramaPublisher(cfg.Brokers, cfg.Topic)
	case DriverKafkaGo:
		return kafka.NewProducer(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, fmt.Errorf("broadcaster: unknown driver %q", cfg.Driver)
	}
}

// SaramaPublisher publishes through a sarama sync producer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return WrapSyncProducer(producer, topic), nil
}

// WrapSyncProducer adapts an existing producer.
func WrapSyncProducer(p sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: p, topic: topic}
}

func (p *SaramaPublisher) Publish(_ context.Context, key, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
