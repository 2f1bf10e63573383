// Package gateway is the thin adapter over the out-of-scope chat-platform
// SDK boundary (spec §1: "we assume it delivers message events and
// accepts delete/notify/timeout/kick/ban commands"). It dials the
// platform's event gateway over a long-lived WebSocket connection using
// gobwas/ws (the teacher's transport), authenticates with a short-lived
// signed service token, and translates wire frames in both directions:
// inbound frames become sdkiface.InboundHandler calls, outbound actions
// become sdkiface.Platform calls that this type implements.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/adred-dev/warden/internal/actions"
	"github.com/adred-dev/warden/internal/platform"
	"github.com/adred-dev/warden/internal/sdkiface"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ServiceClaims is the short-lived token warden presents to the platform
// gateway on connect, signed afresh for every (re)connect rather than
// carried as a static secret on the wire; it is not refreshed during a
// live connection.
type ServiceClaims struct {
	Service string `json:"service"`
	jwt.RegisteredClaims
}

// TokenSigner mints the signed service token used to authenticate the
// gateway connection.
type TokenSigner struct {
	secret   []byte
	duration time.Duration
}

func NewTokenSigner(secret string, duration time.Duration) *TokenSigner {
	return &TokenSigner{secret: []byte(secret), duration: duration}
}

func (t *TokenSigner) Sign() (string, error) {
	claims := ServiceClaims{
		Service: "warden",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "warden",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// frame is the wire envelope for both inbound platform events and
// outbound action commands.
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	frameMessage    = "message"
	frameMemberJoin = "member_join"
	frameDelete     = "delete_message"
	frameSend       = "send_message"
	frameTimeout    = "apply_timeout"
	frameKick       = "kick_member"
	frameBan        = "ban_member"
)

type wireMessage struct {
	MessageID  uint64     `json:"message_id"`
	ChannelID  uint64     `json:"channel_id"`
	GuildID    uint64     `json:"guild_id"`
	AuthorID   uint64     `json:"author_id"`
	Content    string     `json:"content"`
	IsBot      bool       `json:"is_bot"`
	ReplyToUser *uint64   `json:"reply_to_user,omitempty"`
	ReceivedAt time.Time  `json:"received_at"`
}

type wireMemberJoin struct {
	GuildID          uint64    `json:"guild_id"`
	UserID           uint64    `json:"user_id"`
	AccountCreatedAt time.Time `json:"account_created_at"`
	JoinedAt         time.Time `json:"joined_at"`
}

type wireDelete struct {
	ChannelID uint64 `json:"channel_id"`
	MessageID uint64 `json:"message_id"`
}

type wireSend struct {
	ChannelID   uint64  `json:"channel_id"`
	Content     string  `json:"content"`
	MentionRole *uint64 `json:"mention_role,omitempty"`
}

type wireTimeout struct {
	GuildID  uint64 `json:"guild_id"`
	UserID   uint64 `json:"user_id"`
	Duration string `json:"duration"`
}

type wireMember struct {
	GuildID uint64 `json:"guild_id"`
	UserID  uint64 `json:"user_id"`
	Reason  string `json:"reason,omitempty"`
}

// Adapter is a single long-lived gateway connection implementing
// sdkiface.Platform outbound and driving an sdkiface.InboundHandler
// inbound. One Adapter per process (spec Non-goal: no multi-instance
// coordination).
type Adapter struct {
	addr    string
	signer  *TokenSigner
	logger  zerolog.Logger
	handler sdkiface.InboundHandler

	mu   sync.Mutex
	conn net.Conn
}

func New(addr string, signer *TokenSigner, handler sdkiface.InboundHandler, logger zerolog.Logger) *Adapter {
	return &Adapter{
		addr:    addr,
		signer:  signer,
		handler: handler,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

// Run dials the gateway and reconnects with backoff until ctx is
// cancelled. It blocks until ctx is done.
func (a *Adapter) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.runOnce(ctx); err != nil {
			a.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("gateway connection lost, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (a *Adapter) runOnce(ctx context.Context) error {
	token, err := a.signer.Sign()
	if err != nil {
		return fmt.Errorf("sign service token: %w", err)
	}

	header := ws.HandshakeHeaderHTTP(map[string][]string{
		"Authorization": {"Bearer " + token},
	})
	dialer := ws.Dialer{Header: header, Timeout: 10 * time.Second}

	conn, _, _, err := dialer.Dial(ctx, a.addr)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	a.logger.Info().Str("addr", a.addr).Msg("gateway connected")

	errCh := make(chan error, 2)
	go a.writePing(conn, errCh)
	go a.readLoop(ctx, conn, errCh)

	err = <-errCh
	conn.Close()
	return err
}

func (a *Adapter) writePing(conn net.Conn, errCh chan<- error) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := wsutil.WriteClientMessage(conn, ws.OpPing, nil); err != nil {
			errCh <- fmt.Errorf("ping: %w", err)
			return
		}
	}
}

func (a *Adapter) readLoop(ctx context.Context, conn net.Conn, errCh chan<- error) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	reader := bufio.NewReader(conn)
	for {
		if ctx.Err() != nil {
			errCh <- ctx.Err()
			return
		}
		data, op, err := wsutil.ReadServerData(reader)
		if err != nil {
			errCh <- fmt.Errorf("read: %w", err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		switch op {
		case ws.OpText:
			a.dispatch(ctx, data)
		case ws.OpClose:
			errCh <- fmt.Errorf("gateway closed connection")
			return
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		a.logger.Warn().Err(err).Msg("malformed gateway frame, dropping")
		return
	}

	switch f.Type {
	case frameMessage:
		var wm wireMessage
		if err := json.Unmarshal(f.Data, &wm); err != nil {
			a.logger.Warn().Err(err).Msg("malformed message frame")
			return
		}
		if wm.IsBot {
			return // bot messages are ignored by the pipeline (spec §6)
		}
		msg := sdkiface.InboundMessage{
			MessageID:  platform.MessageID(wm.MessageID),
			ChannelID:  platform.ChannelID(wm.ChannelID),
			GuildID:    platform.GuildID(wm.GuildID),
			AuthorID:   platform.UserID(wm.AuthorID),
			Content:    wm.Content,
			ReceivedAt: wm.ReceivedAt,
		}
		if wm.ReplyToUser != nil {
			u := platform.UserID(*wm.ReplyToUser)
			msg.ReplyToUser = &u
		}
		a.handler.HandleMessage(ctx, msg)

	case frameMemberJoin:
		var wj wireMemberJoin
		if err := json.Unmarshal(f.Data, &wj); err != nil {
			a.logger.Warn().Err(err).Msg("malformed member_join frame")
			return
		}
		a.handler.HandleMemberJoin(ctx, sdkiface.MemberJoin{
			GuildID:          platform.GuildID(wj.GuildID),
			UserID:           platform.UserID(wj.UserID),
			AccountCreatedAt: wj.AccountCreatedAt,
			JoinedAt:         wj.JoinedAt,
		})

	default:
		// Unknown frame types (e.g. reaction_add) are reserved for future
		// flows (spec §6: "reserved for appeal flow; out of core scope").
	}
}

func (a *Adapter) send(v any, kind string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gateway not connected")
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", kind, err)
	}
	f, err := json.Marshal(frame{Type: kind, Data: data})
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := wsutil.WriteClientMessage(conn, ws.OpText, f); err != nil {
		return &actions.TransientSDKError{Err: err}
	}
	return nil
}

// DeleteMessage implements sdkiface.Platform.
func (a *Adapter) DeleteMessage(ctx context.Context, channel platform.ChannelID, message platform.MessageID) error {
	return a.send(wireDelete{ChannelID: uint64(channel), MessageID: uint64(message)}, frameDelete)
}

// SendMessage implements sdkiface.Platform.
func (a *Adapter) SendMessage(ctx context.Context, channel platform.ChannelID, content string, mentionRole *platform.RoleID) error {
	w := wireSend{ChannelID: uint64(channel), Content: content}
	if mentionRole != nil {
		r := uint64(*mentionRole)
		w.MentionRole = &r
	}
	return a.send(w, frameSend)
}

// ApplyTimeout implements sdkiface.Platform.
func (a *Adapter) ApplyTimeout(ctx context.Context, guild platform.GuildID, user platform.UserID, duration time.Duration) error {
	return a.send(wireTimeout{GuildID: uint64(guild), UserID: uint64(user), Duration: duration.String()}, frameTimeout)
}

// KickMember implements sdkiface.Platform.
func (a *Adapter) KickMember(ctx context.Context, guild platform.GuildID, user platform.UserID) error {
	return a.send(wireMember{GuildID: uint64(guild), UserID: uint64(user), Reason: "policy violation"}, frameKick)
}

// BanMember implements sdkiface.Platform.
func (a *Adapter) BanMember(ctx context.Context, guild platform.GuildID, user platform.UserID) error {
	return a.send(wireMember{GuildID: uint64(guild), UserID: uint64(user), Reason: "policy violation"}, frameBan)
}
