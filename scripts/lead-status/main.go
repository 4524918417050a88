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

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run ./scripts/lead-status <lead_id> <status>")
		fmt.Println("Example: go run ./scripts/lead-status 0d9c2f8e-1b7a-4f3e-9a51-3c2d7e6b8a10 contacted")
		os.Exit(1)
	}

	leadID := os.Args[1]
	status := os.Args[2]

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Println("Error: ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	tokenString, err := middleware.IssueAdminToken(secret, "cli", time.Hour)
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]string{"status": status})
	url := fmt.Sprintf("%s/admin/leads/%s/status", apiURL, leadID)
	fmt.Printf("Setting lead %s to %s...\n", leadID, status)

	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+tokenString)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Error: HTTP %d\n", resp.StatusCode)
		fmt.Printf("Response: %s\n", string(respBody))
		os.Exit(1)
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		fmt.Printf("Response: %s\n", string(respBody))
		return
	}
	prettyJSON, _ := json.MarshalIndent(result, "", "  ")
	fmt.Printf("Success!\n%s\n", string(prettyJSON))
}
