// Package kafkaingest is an alternate MessageSource for deployments that
// front the chat-platform SDK with a Kafka/Redpanda broker instead of a
// direct gateway connection (SPEC_FULL.md §11). It funnels into the same
// sdkiface.InboundHandler entry points the gateway adapter drives, so the
// orchestrator never knows which transport fed it.
package kafkaingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/sdkiface"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// eventEnvelope mirrors the gateway's frame shape so a single producer
// can publish to either transport.
type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireMessage struct {
	MessageID  uint64    `json:"message_id"`
	ChannelID  uint64    `json:"channel_id"`
	GuildID    uint64    `json:"guild_id"`
	AuthorID   uint64    `json:"author_id"`
	Content    string    `json:"content"`
	IsBot      bool      `json:"is_bot"`
	ReceivedAt time.Time `json:"received_at"`
}

type wireMemberJoin struct {
	GuildID          uint64    `json:"guild_id"`
	UserID           uint64    `json:"user_id"`
	AccountCreatedAt time.Time `json:"account_created_at"`
	JoinedAt         time.Time `json:"joined_at"`
}

// Config configures a Consumer.
type Config struct {
	Brokers       []string
	ConsumerGroup string
	Topic         string
}

// Consumer polls Topic and dispatches decoded events to handler.
type Consumer struct {
	client  *kgo.Client
	handler sdkiface.InboundHandler
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// New builds a franz-go client against cfg and wires it to handler.
func New(cfg Config, handler sdkiface.InboundHandler, logger zerolog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkaingest: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafkaingest: topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.SessionTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkaingest: create client: %w", err)
	}

	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger.With().Str("component", "kafkaingest").Logger(),
	}, nil
}

// Run polls until ctx is cancelled, then closes the client.
func (c *Consumer) Run(ctx context.Context) {
	c.wg.Add(1)
	defer c.wg.Done()
	defer c.client.Close()

	for {
		if ctx.Err() != nil {
			return
		}
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return
		}
		for _, err := range fetches.Errors() {
			c.logger.Error().Err(err.Err).Str("topic", err.Topic).Int32("partition", err.Partition).
				Msg("fetch error")
		}
		fetches.EachRecord(func(r *kgo.Record) {
			c.dispatch(ctx, r.Value)
		})
	}
}

// Stop blocks until the poll loop has exited and the client is closed.
func (c *Consumer) Stop() { c.wg.Wait() }

func (c *Consumer) dispatch(ctx context.Context, raw []byte) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn().Err(err).Msg("malformed kafka event envelope, dropping")
		return
	}

	switch env.Type {
	case "message":
		var wm wireMessage
		if err := json.Unmarshal(env.Data, &wm); err != nil {
			c.logger.Warn().Err(err).Msg("malformed message event")
			return
		}
		if wm.IsBot {
			return
		}
		c.handler.HandleMessage(ctx, sdkiface.InboundMessage{
			MessageID:  platform.MessageID(wm.MessageID),
			ChannelID:  platform.ChannelID(wm.ChannelID),
			GuildID:    platform.GuildID(wm.GuildID),
			AuthorID:   platform.UserID(wm.AuthorID),
			Content:    wm.Content,
			ReceivedAt: wm.ReceivedAt,
		})

	case "member_join":
		var wj wireMemberJoin
		if err := json.Unmarshal(env.Data, &wj); err != nil {
			c.logger.Warn().Err(err).Msg("malformed member_join event")
			return
		}
		c.handler.HandleMemberJoin(ctx, sdkiface.MemberJoin{
			GuildID:          platform.GuildID(wj.GuildID),
			UserID:           platform.UserID(wj.UserID),
			AccountCreatedAt: wj.AccountCreatedAt,
			JoinedAt:         wj.JoinedAt,
		})

	default:
	}
}
