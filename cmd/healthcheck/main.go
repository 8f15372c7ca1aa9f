// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when /v1/health returns HTTP 200, and 1 otherwise.
// The port follows PORT like the service itself. Compile with CGO_ENABLED=0
// for a fully static binary.
package main

import (
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://localhost:" + port + "/v1/health")
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
