// Package main runs a demo WebSocket client that watches a week build.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// nextMonday returns the Monday on or after t.
func nextMonday(t time.Time) time.Time {
	d := (int(time.Monday) - int(t.Weekday()) + 7) % 7
	return t.AddDate(0, 0, d)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	techID := int64(1)
	if v := os.Getenv("TECH_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("TECH_ID: %v", err)
		}
		techID = n
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/schedules/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"technicianId": techID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
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
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	time.Sleep(300 * time.Millisecond)
	week := nextMonday(time.Now()).Format("2006-01-02")
	body, _ := json.Marshal(map[string]any{"technicianId": techID, "weekStart": week, "strategy": "annealing", "seed": 1})
	resp, err := http.Post(base+"/v1/schedules/build", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var out struct {
		Schedule struct {
			JobsScheduled int     `json:"jobsScheduled"`
			TotalHours    float64 `json:"totalHours"`
			RegionFocus   string  `json:"regionFocus"`
		} `json:"schedule"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	log.Printf("build %s: %d jobs, %.1fh in %q", resp.Status, out.Schedule.JobsScheduled, out.Schedule.TotalHours, out.Schedule.RegionFocus)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
