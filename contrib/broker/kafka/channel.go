package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/madcok-co/conduit/core/pkg/contracts"
	"github.com/madcok-co/conduit/core/pkg/message"
)

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	Brokers    []string
	GroupID    string
	Topics     []string
	DeadLetter string // topic Dispose publishes to; empty disables it
	PollWait   time.Duration
}

// Channel implements contracts.Channel over a Sarama consumer group,
// adapted from Driver's push-based ConsumeClaim handler
// (consumerGroupHandler) into the pull-based Receive/Acknowledge shape
// the pump drives. A background goroutine runs the consumer group loop
// and feeds claimed records into an internal buffered channel; Receive
// pulls from that channel instead of being called back into, and
// Acknowledge/Reject/Requeue/Dispose operate on the claim's session
// tracked alongside each in-flight record.
type Channel struct {
	cfg      ChannelConfig
	client   sarama.Client
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup

	inbound chan claimedRecord

	mu       sync.Mutex
	inflight map[string]claimedRecord

	cancel context.CancelFunc
	done   chan struct{}
}

type claimedRecord struct {
	msg     *message.Message
	session sarama.ConsumerGroupSession
	raw     *sarama.ConsumerMessage
}

// NewChannel connects to brokers and starts consuming cfg.Topics under
// cfg.GroupID. The returned Channel is ready for Receive once the
// consumer group has joined.
func NewChannel(ctx context.Context, saramaCfg *sarama.Config, cfg ChannelConfig) (*Channel, error) {
	if cfg.PollWait <= 0 {
		cfg.PollWait = 200 * time.Millisecond
	}

	client, err := sarama.NewClient(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka channel: new client: %w", err)
	}

	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka channel: new consumer group: %w", err)
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = group.Close()
		_ = client.Close()
		return nil, fmt.Errorf("kafka channel: new producer: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &Channel{
		cfg:      cfg,
		client:   client,
		producer: producer,
		group:    group,
		inbound:  make(chan claimedRecord, 64),
		inflight: make(map[string]claimedRecord),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go c.run(runCtx)
	return c, nil
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	h := &channelClaimHandler{out: c.inbound}
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := c.group.Consume(ctx, c.cfg.Topics, h); err != nil {
				if ctx.Err() != nil {
					return
				}
				time.Sleep(time.Second)
			}
		}
	}
}

// channelClaimHandler implements sarama.ConsumerGroupHandler, pushing
// each claimed record (decoded into a *message.Message) onto out along
// with the session needed to mark it processed later.
type channelClaimHandler struct {
	out chan<- claimedRecord
}

func (h *channelClaimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *channelClaimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *channelClaimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for raw := range claim.Messages() {
		var hdr message.Header
		if err := json.Unmarshal(headerBytes(raw), &hdr); err != nil {
			hdr = message.Header{MessageID: string(raw.Key), MessageType: message.TypeDocument}
		}
		msg := &message.Message{Header: hdr, Body: raw.Value}
		select {
		case h.out <- claimedRecord{msg: msg, session: session, raw: raw}:
		case <-session.Context().Done():
			return nil
		}
	}
	return nil
}

func headerBytes(raw *sarama.ConsumerMessage) []byte {
	for _, rh := range raw.Headers {
		if string(rh.Key) == "conduit-header" {
			return rh.Value
		}
	}
	return []byte("{}")
}

func (c *Channel) Receive(ctx context.Context) (*message.Message, error) {
	select {
	case <-ctx.Done():
		return message.Quit(), nil
	case rec := <-c.inbound:
		c.mu.Lock()
		c.inflight[rec.msg.Header.MessageID] = rec
		c.mu.Unlock()
		return rec.msg, nil
	case <-time.After(c.cfg.PollWait):
		return message.None(), nil
	}
}

func (c *Channel) take(msg *message.Message) (claimedRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.inflight[msg.Header.MessageID]
	if ok {
		delete(c.inflight, msg.Header.MessageID)
	}
	return rec, ok
}

// Acknowledge marks the underlying record processed via the consumer
// group session, letting auto/periodic offset commit advance past it.
func (c *Channel) Acknowledge(ctx context.Context, msg *message.Message) error {
	rec, ok := c.take(msg)
	if !ok {
		return nil
	}
	rec.session.MarkMessage(rec.raw, "")
	return nil
}

// Reject drops the in-flight record without marking it, so it will be
// reclaimed on the next rebalance or consumer restart.
func (c *Channel) Reject(ctx context.Context, msg *message.Message) error {
	_, _ = c.take(msg)
	return nil
}

// Requeue republishes msg's body to its origin topic after delay,
// since Kafka offers no native redelivery; the original record is
// marked processed so it is not reclaimed twice.
func (c *Channel) Requeue(ctx context.Context, msg *message.Message, delay int64) error {
	rec, ok := c.take(msg)
	if ok {
		rec.session.MarkMessage(rec.raw, "")
	}
	publish := func() error { return c.publish(ctx, msg) }
	if delay > 0 {
		time.AfterFunc(time.Duration(delay), func() { _ = publish() })
		return nil
	}
	return publish()
}

// EnqueueLocal publishes msg to the channel's topics immediately, used
// by in-process producers that want to feed this channel directly.
func (c *Channel) EnqueueLocal(ctx context.Context, msg *message.Message) error {
	return c.publish(ctx, msg)
}

// Dispose publishes msg to the configured dead-letter topic, if any,
// and marks the original record processed.
func (c *Channel) Dispose(ctx context.Context, msg *message.Message) error {
	rec, ok := c.take(msg)
	if ok {
		rec.session.MarkMessage(rec.raw, "")
	}
	if c.cfg.DeadLetter == "" {
		return nil
	}
	return c.publishTo(ctx, c.cfg.DeadLetter, msg)
}

func (c *Channel) publish(ctx context.Context, msg *message.Message) error {
	if len(c.cfg.Topics) == 0 {
		return fmt.Errorf("kafka channel: no topic configured for requeue/enqueue")
	}
	return c.publishTo(ctx, c.cfg.Topics[0], msg)
}

func (c *Channel) publishTo(ctx context.Context, topic string, msg *message.Message) error {
	hdr, err := json.Marshal(msg.Header)
	if err != nil {
		return fmt.Errorf("kafka channel: marshal header: %w", err)
	}
	_, _, err = c.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.Header.MessageID),
		Value: sarama.ByteEncoder(msg.Body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("conduit-header"), Value: hdr},
		},
		Timestamp: time.Now(),
	})
	return err
}

func (c *Channel) Name() string { return c.cfg.GroupID }

// Close stops the consumer loop and releases the underlying client.
func (c *Channel) Close() error {
	c.cancel()
	<-c.done
	_ = c.producer.Close()
	_ = c.group.Close()
	return c.client.Close()
}

var _ contracts.Channel = (*Channel)(nil)
