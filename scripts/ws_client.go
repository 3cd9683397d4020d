// Package main runs a demo push-channel client: it registers a websocket
// for a tenant, asks for a status check and prints the events it receives.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type      string          `json:"type"`
	ChannelID string          `json:"channelId,omitempty"`
	TenantID  string          `json:"tenantId,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	// Dev auth mode accepts "tenant" or "tenant:role" as the bearer token.
	token := os.Getenv("TOKEN")
	if token == "" {
		token = "1"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+token)
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "register"}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			switch m.Type {
			case "registered":
				log.Printf("WS <- registered as %s for tenant %s", m.ChannelID, m.TenantID)
			case "event":
				log.Printf("WS <- event: %s", string(m.Event))
			default:
				log.Printf("WS <- %s", m.Type)
			}
		}
	}()

	// A status check moves the ledger when the vendor reports a change,
	// which shows up here as an event.
	time.Sleep(500 * time.Millisecond)
	req, _ := http.NewRequest(http.MethodGet, base+"/v1/instance/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if resp, err := http.DefaultClient.Do(req); err == nil {
		log.Printf("status check: %s", resp.Status)
		_ = resp.Body.Close()
	}

	wait := 30 * time.Second
	if v, err := time.ParseDuration(os.Getenv("WAIT")); err == nil {
		wait = v
	}
	select {
	case <-time.After(wait):
	case <-done:
	}
}
