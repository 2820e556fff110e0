package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/cotflow/internal/runtime/jsoncodec"
)

// DefaultIOFile is used when no IOFile is configured.
const DefaultIOFile = "cotflow.jsonl"

// IOPollInterval is how long the io subscriber waits at end of file before
// looking for new lines.
var IOPollInterval = 100 * time.Millisecond

var (
	IOPublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return &ioPublisher{filePath: filePath, logger: logger}, nil
	}
	IOSubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return &ioSubscriber{filePath: filePath, logger: logger}, nil
	}
)

func ioTransport(_ context.Context, conf Config, logger watermill.LoggerAdapter) (Transport, error) {
	filePath := conf.GetIOFile()
	if filePath == "" {
		filePath = DefaultIOFile
	}

	pub, err := IOPublisherFactory(filePath, logger)
	if err != nil {
		return Transport{}, err
	}
	sub, err := IOSubscriberFactory(filePath, logger)
	if err != nil {
		return Transport{}, err
	}
	return Transport{Publisher: pub, Subscriber: sub}, nil
}

// storedMessage is one line of the io transport file.
type storedMessage struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata"`
	Payload  []byte            `json:"payload"`
}

type ioPublisher struct {
	filePath string
	logger   watermill.LoggerAdapter
	mu       sync.Mutex
}

func (p *ioPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, err := os.OpenFile(p.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	for _, msg := range messages {
		line := storedMessage{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		}
		if err := jsoncodec.Encode(w, line); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (p *ioPublisher) Close() error {
	return nil
}

type ioSubscriber struct {
	filePath string
	logger   watermill.LoggerAdapter
}

// Subscribe tails the file from the beginning and emits the lines of topic
// one at a time, waiting for each ack or nack.
func (s *ioSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer f.Close()
		s.tail(ctx, bufio.NewReader(f), topic, out)
	}()
	return out, nil
}

func (s *ioSubscriber) tail(ctx context.Context, reader *bufio.Reader, topic string, out chan<- *message.Message) {
	var partial []byte
	for {
		if ctx.Err() != nil {
			return
		}

		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(IOPollInterval):
			}
			continue
		}
		if err != nil {
			s.logger.Error("Failed to read io transport file", err, watermill.LogFields{"file": s.filePath})
			return
		}

		line := partial
		partial = nil

		var stored storedMessage
		if err := jsoncodec.Unmarshal(line, &stored); err != nil {
			s.logger.Error("Skipping corrupt io transport line", err, watermill.LogFields{"file": s.filePath})
			continue
		}
		if stored.Topic != topic {
			continue
		}

		msg := message.NewMessage(stored.UUID, stored.Payload)
		msg.Metadata = stored.Metadata
		if msg.Metadata == nil {
			msg.Metadata = message.Metadata{}
		}
		msg.SetContext(ctx)

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}

		select {
		case <-msg.Acked():
		case <-msg.Nacked():
			s.logger.Info("Message nacked, io transport does not redeliver", watermill.LogFields{"uuid": msg.UUID})
		case <-ctx.Done():
			return
		}
	}
}

func (s *ioSubscriber) Close() error {
	return nil
}
