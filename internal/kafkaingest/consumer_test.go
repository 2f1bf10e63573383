package kafkaingest

import (
	"context"
	"testing"

	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/sdkiface"
	"github.com/rs/zerolog"
)

type fakeHandler struct {
	messages []sdkiface.InboundMessage
	joins    []sdkiface.MemberJoin
}

func (f *fakeHandler) HandleMessage(ctx context.Context, msg sdkiface.InboundMessage) {
	f.messages = append(f.messages, msg)
}

func (f *fakeHandler) HandleMemberJoin(ctx context.Context, join sdkiface.MemberJoin) {
	f.joins = append(f.joins, join)
}

func TestDispatchMessageEvent(t *testing.T) {
	fh := &fakeHandler{}
	c := &Consumer{handler: fh, logger: zerolog.Nop()}

	raw := []byte(`{"type":"message","data":{"message_id":1,"channel_id":10,"guild_id":1,"author_id":42,"content":"hello"}}`)
	c.dispatch(context.Background(), raw)

	if len(fh.messages) != 1 {
		t.Fatalf("expected one dispatched message, got %d", len(fh.messages))
	}
	if fh.messages[0].GuildID != platform.GuildID(1) || fh.messages[0].AuthorID != platform.UserID(42) {
		t.Fatalf("unexpected decoded message: %+v", fh.messages[0])
	}
}

func TestDispatchSkipsBotMessages(t *testing.T) {
	fh := &fakeHandler{}
	c := &Consumer{handler: fh, logger: zerolog.Nop()}

	raw := []byte(`{"type":"message","data":{"message_id":1,"guild_id":1,"author_id":42,"content":"hello","is_bot":true}}`)
	c.dispatch(context.Background(), raw)

	if len(fh.messages) != 0 {
		t.Fatalf("expected bot message to be dropped, got %d dispatched", len(fh.messages))
	}
}

func TestDispatchMemberJoinEvent(t *testing.T) {
	fh := &fakeHandler{}
	c := &Consumer{handler: fh, logger: zerolog.Nop()}

	raw := []byte(`{"type":"member_join","data":{"guild_id":1,"user_id":7}}`)
	c.dispatch(context.Background(), raw)

	if len(fh.joins) != 1 || fh.joins[0].GuildID != platform.GuildID(1) || fh.joins[0].UserID != platform.UserID(7) {
		t.Fatalf("unexpected decoded join: %+v", fh.joins)
	}
}

func TestDispatchMalformedEnvelopeDropped(t *testing.T) {
	fh := &fakeHandler{}
	c := &Consumer{handler: fh, logger: zerolog.Nop()}

	c.dispatch(context.Background(), []byte(`not json`))

	if len(fh.messages) != 0 || len(fh.joins) != 0 {
		t.Fatalf("expected malformed envelope to be dropped, got messages=%d joins=%d", len(fh.messages), len(fh.joins))
	}
}

func TestConfigRequiresBrokersAndTopic(t *testing.T) {
	if _, err := New(Config{}, &fakeHandler{}, zerolog.Nop()); err == nil {
		t.Fatal("expected an error when no brokers are configured")
	}
	if _, err := New(Config{Brokers: []string{"localhost:9092"}}, &fakeHandler{}, zerolog.Nop()); err == nil {
		t.Fatal("expected an error when no topic is configured")
	}
}
