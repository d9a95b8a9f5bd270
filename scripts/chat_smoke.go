package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exercises a running server: two turns in one conversation, then the read endpoints.
// Usage: TOKEN=<jwt> go run ./scripts

const (
	sentinelPrefix = "/historyId:"
	sentinelLen    = len(sentinelPrefix) + 36 + 1
)

var baseURL = envOr("BASE_URL", "http://localhost:3000/api")

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRequest(method, url, token string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, baseURL+url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// streamMessage prints the answer as it arrives and returns the history id from the sentinel.
func streamMessage(token, message, historyId string) (string, error) {
	body := map[string]interface{}{"message": message}
	if historyId != "" {
		body["historyId"] = historyId
	}

	req, err := newRequest(http.MethodPost, "/chat/message", token, body)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %s: %s", resp.Status, raw)
	}

	reader := bufio.NewReader(resp.Body)
	if historyId == "" {
		// A fresh history announces itself before any answer text.
		head := make([]byte, sentinelLen)
		n, err := io.ReadFull(reader, head)
		if err == nil && strings.HasPrefix(string(head), sentinelPrefix) && strings.HasSuffix(string(head), "/") {
			historyId = string(head[len(sentinelPrefix) : sentinelLen-1])
			color.Green("history: %s", historyId)
		} else {
			fmt.Print(string(head[:n]))
		}
	}

	if _, err := io.Copy(os.Stdout, reader); err != nil {
		return historyId, err
	}
	fmt.Println()
	return historyId, nil
}

func getJSON(token, url string) {
	req, err := newRequest(http.MethodGet, url, token, nil)
	if err != nil {
		color.Red("Failed: %v", err)
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		color.Red("Failed: %v", err)
		return
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	color.Green("Status: %s", resp.Status)
	b, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(b))
}

func main() {
	token := os.Getenv("TOKEN")
	if token == "" {
		color.Red("TOKEN is not set (run go run ./cmd/seed to get one)")
		os.Exit(1)
	}

	color.Cyan("Starting chat relay smoke test\n")

	color.Yellow("\n1. New conversation")
	historyId, err := streamMessage(token, "Name three primary colors.", "")
	if err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}

	color.Yellow("\n2. Follow-up in the same history")
	if _, err := streamMessage(token, "Which of them is the warmest?", historyId); err != nil {
		color.Red("Failed: %v", err)
		os.Exit(1)
	}

	color.Yellow("\n3. Histories")
	getJSON(token, "/chat/histories")

	color.Yellow("\n4. Exchanges")
	getJSON(token, "/chat/exchanges/"+historyId)
}
