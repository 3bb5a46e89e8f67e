package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gorilla/websocket"
)

const (
	websocketReadLimitBytes = 1 << 20
	websocketWriteTimeout   = 5 * time.Second
	signatureSubscribeID    = 1
)

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type wsRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type wsEnvelope struct {
	ID     *int            `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *wsRPCError     `json:"error"`
	Params *struct {
		Result struct {
			Value struct {
				Err any `json:"err"`
			} `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

// WebsocketConfirmer waits for a single signatureNotification. The status is
// checked once after subscribing in case the transaction landed first.
type WebsocketConfirmer struct {
	endpoint   string
	commitment rpc.CommitmentType
	statuses   StatusReader
	logger     *slog.Logger
}

func NewWebsocketConfirmer(endpoint string, commitment rpc.CommitmentType, statuses StatusReader, logger *slog.Logger) *WebsocketConfirmer {
	return &WebsocketConfirmer{
		endpoint:   endpoint,
		commitment: commitment,
		statuses:   statuses,
		logger:     logger,
	}
}

func (w *WebsocketConfirmer) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	conn, _, err := dialWebsocket(ctx, w.endpoint)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.endpoint, err)
	}
	defer conn.Close()
	stopWatch := closeConnOnContextDone(ctx, conn)
	defer stopWatch()

	err = writeWebsocketJSON(conn, wsRequest{
		JSONRPC: "2.0",
		ID:      signatureSubscribeID,
		Method:  "signatureSubscribe",
		Params: []any{
			sig.String(),
			map[string]any{"commitment": w.commitment},
		},
	})
	if err != nil {
		return fmt.Errorf("write signatureSubscribe: %w", err)
	}

	subscribed := false
	for {
		var message wsEnvelope
		if err := conn.ReadJSON(&message); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read websocket: %w", err)
		}

		switch {
		case message.Error != nil:
			return fmt.Errorf("signatureSubscribe error: code=%d msg=%s", message.Error.Code, message.Error.Message)
		case message.ID != nil && *message.ID == signatureSubscribeID:
			if subscribed {
				continue
			}
			subscribed = true
			w.logger.Debug("signature subscription active", "signature", sig, "subscription", string(message.Result))
			if w.statuses == nil {
				continue
			}
			done, err := checkSignatureStatus(ctx, w.statuses, sig, w.commitment)
			if errors.Is(err, errStatusUnavailable) {
				continue
			}
			if err != nil || done {
				return err
			}
		case message.Method == "signatureNotification" && message.Params != nil:
			if txErr := message.Params.Result.Value.Err; txErr != nil {
				return fmt.Errorf("%w: %s", ErrTransactionFailed, describeTxError(txErr))
			}
			return nil
		}
	}
}

func dialWebsocket(ctx context.Context, endpoint string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, resp, err
	}
	conn.SetReadLimit(websocketReadLimitBytes)
	return conn, resp, nil
}

func writeWebsocketJSON(conn *websocket.Conn, value any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(value)
}

func closeConnOnContextDone(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	return func() {
		close(done)
	}
}
