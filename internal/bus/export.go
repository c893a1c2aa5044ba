package bus

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// Exporter mirrors incident events to an external sink. The none
// driver discards everything.
type Exporter interface {
	Export(event Event)
	Close() error
}

type noopExporter struct{}

func (noopExporter) Export(Event) {}
func (noopExporter) Close() error { return nil }

// NewExporter builds the configured export driver: "none" or "kafka".
func NewExporter(driver string, brokers []string, topic string, log zerolog.Logger) (Exporter, error) {
	switch driver {
	case "", "none":
		return noopExporter{}, nil
	case "kafka":
		return newKafkaExporter(brokers, topic, log)
	default:
		return nil, fmt.Errorf("unknown event export driver %q", driver)
	}
}

const exportQueueSize = 1024

type kafkaExporter struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	log     zerolog.Logger
}

func newKafkaExporter(brokers []string, topic string, log zerolog.Logger) (*kafkaExporter, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create async producer: %w", err)
	}

	e := &kafkaExporter{
		topic:   topic,
		events:  make(chan Event, exportQueueSize),
		prod:    prod,
		stopped: make(chan struct{}),
		log:     log,
	}

	go func() {
		defer close(e.stopped)
		for ev := range e.events {
			b, err := json.Marshal(ev.Data)
			if err != nil {
				e.log.Warn().Err(err).Msg("export marshal failed")
				continue
			}
			e.prod.Input() <- &sarama.ProducerMessage{
				Topic: e.topic,
				Key:   sarama.StringEncoder(ev.Type),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range e.prod.Errors() {
			if err != nil {
				e.log.Warn().Err(err).Msg("export producer error")
			}
		}
	}()

	return e, nil
}

// Export enqueues without blocking; a full queue drops the event.
func (e *kafkaExporter) Export(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

func (e *kafkaExporter) Close() error {
	close(e.events)
	<-e.stopped
	if err := e.prod.Close(); err != nil {
		return fmt.Errorf("close producer: %w", err)
	}
	return nil
}
