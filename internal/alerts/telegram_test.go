package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"polyshark/internal/config"

	"go.uber.org/zap"
)

func TestTelegramDisabledIsNoop(t *testing.T) {
	tg := newTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop(), "http://unused", nil)
	if err := tg.Send(context.Background(), "safe mode engaged"); err != nil {
		t.Fatalf("disabled send: %v", err)
	}
}

func TestTelegramMissingCredentials(t *testing.T) {
	tg := newTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop(), "http://unused", nil)
	if err := tg.Send(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for missing token and chat_id")
	}
}

func TestTelegramSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "abc123", ChatID: "42"}
	tg := newTelegram(cfg, zap.NewNop(), srv.URL, srv.Client())
	if err := tg.Send(context.Background(), "budget window rolled"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/botabc123/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "42" || gotBody["text"] != "budget window rolled" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestTelegramAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "abc123", ChatID: "42"}
	tg := newTelegram(cfg, zap.NewNop(), srv.URL, srv.Client())
	err := tg.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestTelegramHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := config.TelegramConfig{Enabled: true, Token: "abc123", ChatID: "42"}
	tg := newTelegram(cfg, zap.NewNop(), srv.URL, srv.Client())
	err := tg.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "http 429") {
		t.Fatalf("err = %v", err)
	}
}
