package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSenderPostsJSON(t *testing.T) {
	var got Message
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "key-1", "noreply@example.com", server.Client())
	err := sender.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.From != "noreply@example.com" || got.To != "a@example.com" {
		t.Fatalf("message = %+v", got)
	}
	if auth != "Bearer key-1" {
		t.Fatalf("authorization = %q, want %q", auth, "Bearer key-1")
	}
}

func TestHTTPSenderRejectsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "", "", server.Client())
	if err := sender.Send(context.Background(), Message{To: "a@example.com"}); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestHTTPSenderRequiresRecipient(t *testing.T) {
	sender := NewHTTPSender("http://127.0.0.1:1", "", "", nil)
	if err := sender.Send(context.Background(), Message{}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestVerificationMessage(t *testing.T) {
	msg, err := VerificationMessage(Verification{Address: "a@example.com", Code: "012345", Minutes: 5})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "a@example.com" {
		t.Fatalf("to = %q", msg.To)
	}
	if !strings.Contains(msg.HTML, "012345") || !strings.Contains(msg.HTML, "5 minutes") {
		t.Fatalf("html = %q", msg.HTML)
	}
}

func TestVerificationMessageEscapes(t *testing.T) {
	msg, err := VerificationMessage(Verification{Address: "<b>x</b>", Code: "1", Minutes: 1})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<b>x</b>") {
		t.Fatal("expected address to be escaped")
	}
}
