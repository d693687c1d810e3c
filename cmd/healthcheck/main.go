// Command healthcheck probes the running service for container health checks.
// It exits non-zero unless the probed endpoint answers 200.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
)

func main() {
	def := os.Getenv("HEALTHCHECK_URL")
	if def == "" {
		def = "http://localhost" + listenPort(os.Getenv("HTTP_ADDR")) + "/healthz"
	}
	url := flag.String("url", def, "endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, *url, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// listenPort turns an HTTP_ADDR such as ":9000" or "0.0.0.0:9000" into ":9000".
func listenPort(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return ":8080"
}
