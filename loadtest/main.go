package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 200 // pairs of users; each pair plays a send + read round trip
	MsgCount  = 20  // messages per sender
)

type AuthResponse struct {
	Token string `json:"access_token"`
	ID    int    `json:"id"`
}

type Message struct {
	ID         int    `json:"id"`
	SenderID   int    `json:"sender_id"`
	ReceiverID int    `json:"receiver_id"`
	Status     string `json:"status"`
}

type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	log.Printf("starting load test: %d users, %d messages each", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("load test complete")
}

// runPair drives one sender/reader couple: the sender posts messages and
// waits for message-read receipts, the reader receives new-message events
// and answers each with mark-read.
func runPair(pairID int) {
	sender := fmt.Sprintf("lt_%d_sender", pairID)
	reader := fmt.Sprintf("lt_%d_reader", pairID)
	pass := "password123"

	senderAuth := authenticate(sender, pass)
	readerAuth := authenticate(reader, pass)
	if senderAuth == nil || readerAuth == nil {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go runReader(&wsWg, readerAuth, MsgCount)
	go runSender(&wsWg, senderAuth, readerAuth.ID, MsgCount)
	wsWg.Wait()
}

func runSender(wg *sync.WaitGroup, auth *AuthResponse, receiverID, count int) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, auth.Token), nil)
	if err != nil {
		log.Printf("ws connect failed (sender %d): %v", auth.ID, err)
		return
	}
	defer conn.Close()

	for i := 0; i < count; i++ {
		body, _ := json.Marshal(map[string]interface{}{
			"receiver_id": receiverID,
			"content":     fmt.Sprintf("load test message %d", i),
		})
		req, _ := http.NewRequest("POST", BaseURL+"/api/messages", bytes.NewBuffer(body))
		req.Header.Set("Authorization", "Bearer "+auth.Token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil || resp.StatusCode != http.StatusCreated {
			log.Printf("send failed (sender %d): %v", auth.ID, err)
			return
		}
		resp.Body.Close()
		time.Sleep(10 * time.Millisecond)
	}

	// Drain until we've seen a message-read receipt per message sent.
	receipts := 0
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for receipts < count {
		frames, err := readFrames(conn)
		if err != nil {
			log.Printf("sender %d gave up after %d/%d receipts: %v", auth.ID, receipts, count, err)
			return
		}
		for _, frame := range frames {
			if frame.Type == "message-read" {
				receipts++
			}
		}
	}
	log.Printf("sender %d: all %d receipts in", auth.ID, count)
}

func runReader(wg *sync.WaitGroup, auth *AuthResponse, count int) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, auth.Token), nil)
	if err != nil {
		log.Printf("ws connect failed (reader %d): %v", auth.ID, err)
		return
	}
	defer conn.Close()

	seen := 0
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	for seen < count {
		frames, err := readFrames(conn)
		if err != nil {
			log.Printf("reader %d gave up after %d/%d messages: %v", auth.ID, seen, count, err)
			return
		}
		for _, frame := range frames {
			if frame.Type != "new-message" {
				continue
			}
			var msg Message
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				continue
			}
			seen++

			markRead, _ := json.Marshal(map[string]interface{}{
				"type": "mark-read",
				"data": map[string]int{"message_id": msg.ID, "receiver_id": auth.ID},
			})
			if err := conn.WriteMessage(websocket.TextMessage, markRead); err != nil {
				log.Printf("mark-read failed (reader %d): %v", auth.ID, err)
				return
			}
		}
	}
}

// readFrames reads one websocket message and splits it into frames; the
// server batches queued frames into a single message, newline separated.
func readFrames(conn *websocket.Conn) ([]Frame, error) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var frames []Frame
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var frame Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// authenticate registers (ignoring "already exists") and logs in.
func authenticate(username, password string) *AuthResponse {
	creds := map[string]string{"username": username, "password": password}
	postJSON("/register", creds)

	resp, err := postJSON("/login", creds)
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return nil
	}
	defer resp.Body.Close()

	var auth AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil || auth.Token == "" {
		log.Printf("login failed [%s]", username)
		return nil
	}
	return &auth
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
