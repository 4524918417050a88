// Package main runs smoke scenarios against a running API.
//
// Usage:
//
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run ./scripts/smoke [scenario-name]
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run ./scripts/smoke              # runs all
//	ADMIN_JWT_SECRET=... API_BASE_URL=... go run ./scripts/smoke happy-path   # runs one
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/wolfman30/medici-leads/internal/http/middleware"
)

var (
	apiBase string
	jwt     string
	client  = &http.Client{Timeout: 15 * time.Second}
)

type scenario struct {
	Name string
	Fn   func(t *T)
}

// T collects checks for one scenario.
type T struct {
	passed int
	failed int
}

func (t *T) check(name string, ok bool) {
	if ok {
		fmt.Printf("    PASS: %s\n", name)
		t.passed++
	} else {
		fmt.Printf("    FAIL: %s\n", name)
		t.failed++
	}
}

func (t *T) fatalf(format string, args ...any) {
	fmt.Printf("    FATAL: "+format+"\n", args...)
	t.failed++
}

func doJSON(method, path string, body any, admin bool, headers map[string]string) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, apiBase+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+jwt)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out, nil
}

func formToken() string {
	status, body, err := doJSON(http.MethodGet, "/api/form-token", nil, false, nil)
	if err != nil || status != http.StatusOK {
		return ""
	}
	token, _ := body["token"].(string)
	return token
}

func submit(eventType string, payload map[string]any) (int, map[string]any, error) {
	headers := map[string]string{"Origin": apiBase}
	if token := formToken(); token != "" {
		headers["X-Form-Token"] = token
	}
	return doJSON(http.MethodPost, "/api/events", map[string]any{
		"event_type": eventType,
		"payload":    payload,
	}, false, headers)
}

func uniqueEmail(tag string) string {
	return fmt.Sprintf("smoke+%s-%d@example.com", tag, time.Now().UnixNano())
}

func consultation(email string) map[string]any {
	return map[string]any{
		"name":         "Smoke Test",
		"email":        email,
		"phone":        "+1 (415) 555-0134",
		"service":      "Brand strategy",
		"message":      "Looking for help relaunching our product line this quarter.",
		"consent":      true,
		"form_time":    12,
		"utm_source":   "smoke",
		"utm_medium":   "script",
		"utm_campaign": "release-check",
		"page_url":     apiBase + "/contact",
	}
}

func testHealth(t *T) {
	status, body, err := doJSON(http.MethodGet, "/health", nil, false, nil)
	if err != nil {
		t.fatalf("health request: %v", err)
		return
	}
	t.check("health returns 200", status == http.StatusOK)
	t.check("health reports ok", body["status"] == "ok")
}

func testHappyPath(t *T) {
	status, body, err := submit("consultation_request", consultation(uniqueEmail("happy")))
	if err != nil {
		t.fatalf("submit: %v", err)
		return
	}
	t.check("submission accepted", status == http.StatusOK && body["outcome"] == "accepted")
	id, _ := body["id"].(string)
	t.check("lead id returned", id != "")
	if id == "" {
		return
	}

	status, lead, err := doJSON(http.MethodGet, "/admin/leads/"+id, nil, true, nil)
	if err != nil {
		t.fatalf("get lead: %v", err)
		return
	}
	t.check("admin can read lead", status == http.StatusOK)
	t.check("lead starts as new", lead["status"] == "new")
	_, scored := lead["score"]
	t.check("lead carries a score", scored)

	status, updated, err := doJSON(http.MethodPut, "/admin/leads/"+id+"/status", map[string]string{"status": "contacted"}, true, nil)
	if err != nil {
		t.fatalf("update status: %v", err)
		return
	}
	t.check("status update accepted", status == http.StatusOK)
	t.check("status is contacted", updated["status"] == "contacted")
}

func testInvalidEmail(t *T) {
	payload := consultation("not-an-email")
	status, body, err := submit("consultation_request", payload)
	if err != nil {
		t.fatalf("submit: %v", err)
		return
	}
	t.check("invalid email rejected with 400", status == http.StatusBadRequest)
	t.check("outcome is rejected", body["outcome"] == "rejected")
}

func testUnknownEvent(t *T) {
	status, _, err := submit("page_view", consultation(uniqueEmail("unknown")))
	if err != nil {
		t.fatalf("submit: %v", err)
		return
	}
	t.check("unknown event type rejected", status == http.StatusBadRequest)
}

func testNewsletter(t *T) {
	email := uniqueEmail("news")
	status, body, err := submit("newsletter_subscribe", map[string]any{"email": email, "name": "Smoke"})
	if err != nil {
		t.fatalf("subscribe: %v", err)
		return
	}
	t.check("subscription accepted", status == http.StatusOK && body["outcome"] == "accepted")

	status, _, err = submit("newsletter_subscribe", map[string]any{"email": email})
	if err != nil {
		t.fatalf("resubscribe: %v", err)
		return
	}
	t.check("second subscription rejected", status == http.StatusBadRequest)
}

func testAdminAuth(t *T) {
	status, _, err := doJSON(http.MethodGet, "/admin/leads", nil, false, nil)
	if err != nil {
		t.fatalf("list without token: %v", err)
		return
	}
	t.check("admin list requires token", status == http.StatusUnauthorized)

	status, body, err := doJSON(http.MethodGet, "/admin/leads?limit=5", nil, true, nil)
	if err != nil {
		t.fatalf("list with token: %v", err)
		return
	}
	t.check("admin list returns 200", status == http.StatusOK)
	_, hasLeads := body["leads"]
	t.check("admin list has leads field", hasLeads)
}

var scenarios = []scenario{
	{"health", testHealth},
	{"happy-path", testHappyPath},
	{"invalid-email", testInvalidEmail},
	{"unknown-event", testUnknownEvent},
	{"newsletter", testNewsletter},
	{"admin-auth", testAdminAuth},
}

func main() {
	apiBase = os.Getenv("API_BASE_URL")
	if apiBase == "" {
		apiBase = "http://localhost:8080"
	}
	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}
	token, err := middleware.IssueAdminToken(secret, "smoke", time.Hour)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}
	jwt = token

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	var passed, failed, ran int
	for _, sc := range scenarios {
		if only != "" && sc.Name != only {
			continue
		}
		ran++
		fmt.Printf("\n=== %s ===\n", sc.Name)
		t := &T{}
		sc.Fn(t)
		passed += t.passed
		failed += t.failed
	}
	if ran == 0 {
		fmt.Printf("Unknown scenario %q\n", only)
		os.Exit(1)
	}

	fmt.Printf("\n%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
