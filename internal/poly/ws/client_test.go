package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func wsTestServer(t *testing.T, ctx context.Context, msgCh chan []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			select {
			case msgCh <- data:
			default:
			}
		}
	}))
}

func TestClientSubscribeMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	msgCh := make(chan []byte, 1)
	server := wsTestServer(t, ctx, msgCh)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := New(wsURL, 10*time.Millisecond, time.Minute, zap.NewNop())
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.Subscribe(ctx, "token-1", "token-2"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case raw := <-msgCh:
		var msg struct {
			Type     string   `json:"type"`
			AssetIDs []string `json:"assets_ids"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != "market" {
			t.Fatalf("type = %q, want market", msg.Type)
		}
		if len(msg.AssetIDs) != 2 || msg.AssetIDs[0] != "token-1" {
			t.Fatalf("assets_ids = %v", msg.AssetIDs)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for subscribe message")
	}
}

func TestClientSendsPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	msgCh := make(chan []byte, 1)
	server := wsTestServer(t, ctx, msgCh)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client := New(wsURL, 10*time.Millisecond, 20*time.Millisecond, zap.NewNop())
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, nil)
	}()

	select {
	case raw := <-msgCh:
		if string(raw) != "PING" {
			t.Fatalf("expected PING keepalive, got %q", raw)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for ping")
	}
}
