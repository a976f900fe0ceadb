package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/parleyhq/parley-server/internal/auth"
	"github.com/parleyhq/parley-server/internal/config"
	"github.com/parleyhq/parley-server/internal/core"
	"github.com/parleyhq/parley-server/internal/proto"
	"github.com/parleyhq/parley-server/internal/utils"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub  *core.Hub
	auth *auth.Service
	cfg  *config.Config
	log  *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, auth: authService, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), core.DefaultEventBuffer)
	h.hub.Connect(client)
	defer h.hub.Disconnect(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newFrameLimiter(h.cfg.WSRateLimit, h.cfg.WSRateBurst)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			if err := h.reply(ctx, conn, errorOutbound(core.ErrCodeRateLimited, "too many messages")); err != nil {
				return err
			}
			continue
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			if err := h.reply(ctx, conn, errorOutbound(core.ErrCodeBadRequest, "malformed message")); err != nil {
				return err
			}
			continue
		}

		if err := h.handleInbound(ctx, conn, client, inbound); err != nil {
			return err
		}
	}
}

func (h *WSHandler) handleInbound(ctx context.Context, conn *websocket.Conn, client *core.Client, inbound proto.Inbound) error {
	switch inbound.Type {
	case proto.InboundTypeIdentify:
		var data proto.IdentifyData
		if err := json.Unmarshal(inbound.Data, &data); err != nil || data.Token == "" {
			return h.reply(ctx, conn, errorOutbound(core.ErrCodeBadRequest, "token is required"))
		}

		user, err := h.auth.Authenticate(ctx, data.Token)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", client.ID).Msg("ws identify rejected")
			return h.reply(ctx, conn, errorOutbound(core.ErrCodeUnauthorized, "invalid token"))
		}

		if err := h.hub.Identify(client, user.ID); err != nil {
			return err
		}
		return h.reply(ctx, conn, outboundFromEvent(&core.Event{Kind: core.EventIdentified, UserID: user.ID}))
	case proto.InboundTypePing:
		return h.reply(ctx, conn, outboundFromEvent(&core.Event{Kind: core.EventPong}))
	default:
		return h.reply(ctx, conn, errorOutbound(core.ErrCodeInvalidMessage, "unknown message type"))
	}
}

func (h *WSHandler) reply(ctx context.Context, conn *websocket.Conn, out proto.Outbound) error {
	return wsjson.Write(ctx, conn, out)
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
