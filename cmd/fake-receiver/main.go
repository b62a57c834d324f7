// fake-receiver is a local webhook endpoint for exercising the delivery
// pipeline: it verifies signatures the way a customer integration would and
// can simulate a flaky endpoint via FAIL_FIRST_N.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/webhook"
)

const (
	sigHeader   = "X-Webhook-Signature"
	eventHeader = "X-Webhook-Event"
)

var (
	failFirstN     = 0
	reqCount       = 0
	endpointSecret = ""
	maxAge         = 5 * time.Minute
)

func main() {
	if v := os.Getenv("FAIL_FIRST_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			failFirstN = n
		}
	}
	if v := os.Getenv("ENDPOINT_SECRET"); v != "" {
		endpointSecret = v
	}
	if v := os.Getenv("MAX_AGE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			maxAge = time.Duration(n) * time.Second
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/hook", handleHook)

	addr := ":8081"
	if v := os.Getenv("HTTP_PORT"); v != "" {
		addr = v
	}
	log.Printf("fake-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func handleHook(w http.ResponseWriter, r *http.Request) {
	reqCount++
	b, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if endpointSecret != "" {
		if ok, msg := verify(endpointSecret, b, r.Header.Get(sigHeader)); !ok {
			log.Printf("fake-receiver failed to verify signature: %s", msg)
			http.Error(w, "invalid signature: "+msg, http.StatusUnauthorized)
			return
		}
	}

	// Simulate flakiness: first N requests -> 500
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) event=%s body=%s", reqCount, failFirstN, r.Header.Get(eventHeader), truncate(string(b), 160))
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK event=%s body=%q", r.Header.Get(eventHeader), truncate(string(b), 160))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}

// verify checks the signature and the envelope timestamp. The receiver holds
// the plaintext secret and derives the signing key the same way registration
// did.
func verify(secret string, body []byte, sig string) (bool, string) {
	if sig == "" {
		return false, "missing signature header"
	}
	if !webhook.VerifySignature(webhook.HashSecret(secret), body, sig) {
		return false, "sig mismatch"
	}
	var env webhook.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false, "malformed envelope"
	}
	if env.Timestamp.IsZero() || time.Since(env.Timestamp) > maxAge {
		return false, "envelope too old"
	}
	return true, ""
}

// truncate truncates a string to the specified length and adds an ellipsis if truncated
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
