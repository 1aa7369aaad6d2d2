package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"

	"agromarket/internal/alerts"
	"agromarket/internal/logger"
	"agromarket/internal/models"
)

// Publisher writes price updates to a Kafka topic, keyed by crop so that
// updates for one crop stay ordered within a partition.
type Publisher struct {
	producer *kafka.Producer
	topic    string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": strings.Join(brokers, ",")})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	pub := &Publisher{producer: p, topic: topic}
	go pub.deliveryReports()
	return pub, nil
}

func (p *Publisher) deliveryReports() {
	for e := range p.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			logger.Log.Warn("Kafka delivery failed",
				zap.String("topic", p.topic),
				zap.Error(m.TopicPartition.Error),
			)
		}
	}
}

// Publish enqueues one update; delivery is asynchronous.
func (p *Publisher) Publish(u models.PriceUpdate) error {
	value, err := EncodeUpdate(u)
	if err != nil {
		return err
	}
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(strings.ToLower(u.Crop)),
		Value:          value,
	}, nil)
}

// PublishListings emits the current price of every listing.
func (p *Publisher) PublishListings(listings []models.Listing) {
	for _, l := range listings {
		if err := p.Publish(alerts.UpdateFromListing(l)); err != nil {
			logger.Log.Warn("Failed to publish listing price",
				zap.Int("listing_id", l.ID),
				zap.Error(err),
			)
		}
	}
}

// Close waits up to five seconds for queued messages, then closes.
func (p *Publisher) Close() {
	if remaining := p.producer.Flush(5000); remaining > 0 {
		logger.Log.Warn("Kafka messages left unflushed", zap.Int("remaining", remaining))
	}
	p.producer.Close()
}

func EncodeUpdate(u models.PriceUpdate) ([]byte, error) {
	return json.Marshal(u)
}

func DecodeUpdate(b []byte) (models.PriceUpdate, error) {
	var u models.PriceUpdate
	err := json.Unmarshal(b, &u)
	return u, err
}
