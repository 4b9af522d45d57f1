// Package main runs a demo WebSocket client for plan run events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func post(base, path string, body []byte) *http.Response {
	req, _ := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	return resp
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Seed a couple of orders and one vehicle
	orders := []byte(`{"orders":[
		{"name":"Bakery","address":"Main 1","postcode":"1011AB","city":"Amsterdam","windowStart":"08:00","windowEnd":"17:00","serviceMin":10,"chilledQty":3,"frozenQty":1},
		{"name":"Butcher","address":"Main 2","postcode":"1012CD","city":"Amsterdam","windowStart":"09:00","windowEnd":"17:00","serviceMin":10,"chilledQty":2,"frozenQty":1}
	]}`)
	resp := post(base, "/v1/orders", orders)
	_ = resp.Body.Close()

	fleet := []byte(`{"vehicles":[{"type":"van","chilledCap":10,"frozenCap":5,"hourlyRate":25,"fuelPrice":2,"consumptionPer100":10,"flatTripFee":15,"monthlyFixed":1600,"co2PerKm":0.25,"available":true}]}`)
	freq, _ := http.NewRequest(http.MethodPut, base+"/v1/fleet", bytes.NewReader(fleet))
	freq.Header.Set("Content-Type", "application/json")
	fresp, err := http.DefaultClient.Do(freq)
	if err != nil {
		log.Fatal(err)
	}
	_ = fresp.Body.Close()

	// Name the run up front so we can subscribe before it starts
	runID := uuid.New().String()
	log.Printf("Run ID: %s", runID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	pl, _ := json.Marshal(map[string]any{"planId": runID})
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

	// Run the allocation under the pre-announced id; events flow into the
	// subscription opened above
	body, _ := json.Marshal(map[string]string{"runId": runID})
	resp = post(base, "/v1/optimize", body)
	defer func() { _ = resp.Body.Close() }()
	var plan struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		log.Fatal(err)
	}
	if plan.ID != runID {
		log.Fatalf("plan id mismatch: %s", plan.ID)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
