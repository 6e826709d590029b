// Command test_integration drives a running graphsync server through a webhook, a status
// check and a few knowledge queries.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/agenthands/graphsync/internal/core/events"
)

func main() {
	_ = godotenv.Load()

	baseURL := os.Getenv("GRAPHSYNC_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	secret := os.Getenv("NANGO_WEBHOOK_SECRET")
	client := &http.Client{Timeout: 30 * time.Second}

	fmt.Println("Starting Integration Test...")

	projectID := fmt.Sprintf("smoke%d", time.Now().Unix())
	connectionID := "org_" + projectID

	fmt.Println("1. Sending sync webhook...")
	webhook := map[string]interface{}{
		"provider":     "github",
		"type":         "sync.success",
		"connectionId": connectionID,
		"createdAt":    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		"data": map[string]interface{}{
			"records": []map[string]interface{}{
				{
					"id":     "I_smoke_1",
					"number": 1,
					"title":  "Login page crashes after deploy",
					"body":   "Reported by @alice",
					"user":   map[string]interface{}{"login": "alice"},
					"_nango_metadata": map[string]interface{}{
						"model":            "github_issue",
						"last_modified_at": time.Now().UTC().Format(time.RFC3339),
					},
				},
			},
		},
	}
	body, _ := json.Marshal(webhook)
	headers := map[string]string{}
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		_, _ = mac.Write(body)
		headers[events.SignatureHeader] = hex.EncodeToString(mac.Sum(nil))
	}
	mustSucceed(client, "webhook", http.MethodPost, baseURL+"/webhooks/nango", body, headers)

	fmt.Println("2. Checking graph status...")
	mustSucceed(client, "status", http.MethodGet, baseURL+"/knowledge?projectId="+projectID, nil, nil)

	for _, kind := range []string{"search", "entity", "timeline", "impact"} {
		fmt.Printf("3. Querying knowledge (%s)...\n", kind)
		q, _ := json.Marshal(map[string]interface{}{
			"projectId": projectID,
			"query":     "login",
			"type":      kind,
		})
		mustSucceed(client, kind, http.MethodPost, baseURL+"/knowledge", q, nil)
	}

	fmt.Println("All checks passed")
}

func mustSucceed(client *http.Client, name, method, url string, body []byte, headers map[string]string) {
	if !send(client, method, url, body, headers) {
		fmt.Printf("FAILED: %s\n", name)
		os.Exit(1)
	}
	fmt.Printf("PASSED: %s\n", name)
}

func send(client *http.Client, method, url string, body []byte, headers map[string]string) bool {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return true
}
