// Package main provides a load testing tool for the realtime event stream.
// Each client joins one room over the websocket, posts messages through the
// REST API and counts the events that come back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	MessagesSent         int64
	EventsReceived       int64
	Errors               int64
}

var (
	metrics    Metrics
	httpClient = &http.Client{Timeout: 5 * time.Second}
)

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	identifier := flag.String("identifier", "", "username or email of the test user")
	password := flag.String("password", "password123", "test user password")
	room := flag.String("room", "", "room id the test user belongs to")
	clients := flag.Int("clients", 50, "number of concurrent clients")
	interval := flag.Duration("interval", 5*time.Second, "delay between messages per client")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	if *identifier == "" || *room == "" {
		log.Fatal("usage: chattest -identifier <user> -room <room id> [-clients n] [-duration d]")
	}

	log.Printf("target=%s clients=%d duration=%v room=%s", *host, *clients, *duration, *room)

	token, err := login(*host, *identifier, *password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runClient(*host, token, *room, *interval, i, stopChan, &wg)
		time.Sleep(50 * time.Millisecond) // stagger ticket issuance
	}

	select {
	case <-time.After(*duration):
		log.Println("test duration reached")
	case <-interrupt:
		log.Println("interrupted")
	}

	close(stopChan)
	log.Println("waiting for clients to disconnect...")
	wg.Wait()

	printMetrics()
}

func postJSON(rawURL, token string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s returned status %d", rawURL, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func login(host, identifier, password string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	err := postJSON(fmt.Sprintf("http://%s/api/auth/login", host), "", map[string]string{
		"identifier": identifier,
		"password":   password,
	}, &result)
	return result.Token, err
}

func getTicket(host, token string) (string, error) {
	var result struct {
		Ticket string `json:"ticket"`
	}
	err := postJSON(fmt.Sprintf("http://%s/api/auth/ws-ticket", host), token, struct{}{}, &result)
	return result.Ticket, err
}

func runClient(host, token, room string, interval time.Duration, id int, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	ticket, err := getTicket(host, token)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws", RawQuery: "ticket=" + ticket}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	if err := c.WriteJSON(map[string]string{"type": "join_room", "room_id": room}); err != nil {
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}

	go func() {
		for {
			var frame struct {
				Type string `json:"type"`
			}
			if err := c.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "error":
				atomic.AddInt64(&metrics.Errors, 1)
			case "messageAdded", "messageStatusUpdated", "messageDeleted":
				atomic.AddInt64(&metrics.EventsReceived, 1)
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	messagesURL := fmt.Sprintf("http://%s/api/rooms/%s/messages", host, room)
	for {
		select {
		case <-stopChan:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			err := postJSON(messagesURL, token, map[string]string{
				"content": fmt.Sprintf("load test message from client %d", id),
			}, nil)
			if err != nil {
				atomic.AddInt64(&metrics.Errors, 1)
				continue
			}
			atomic.AddInt64(&metrics.MessagesSent, 1)
		}
	}
}

func printMetrics() {
	log.Println("results")
	log.Printf("connections attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("connections successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("connections failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("messages sent: %d", atomic.LoadInt64(&metrics.MessagesSent))
	log.Printf("events received: %d", atomic.LoadInt64(&metrics.EventsReceived))
	log.Printf("errors: %d", atomic.LoadInt64(&metrics.Errors))
}
