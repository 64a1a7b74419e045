package ingest

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/uniride/internal/models"
)

// RideEventProducer publishes ride lifecycle events for downstream consumers
// (the route-board updater). Messages are keyed by ride ID so updates for one
// ride stay ordered within a partition.
type RideEventProducer struct {
	writer *kafka.Writer
}

func NewRideEventProducer(brokers []string, topic string) *RideEventProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &RideEventProducer{writer: w}
}

func (p *RideEventProducer) Publish(ev models.RideEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := []byte(strconv.FormatInt(ev.Ride.ID, 10))
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: b})
}

func (p *RideEventProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
