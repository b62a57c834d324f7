package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type Queue struct {
	WebhookInterval    time.Duration // poll interval for webhook_delivery workers
	WebhookConcurrency int           // webhook deliveries in flight per tick
	ErpInterval        time.Duration // poll interval for ERP-facing workers
	ErpConcurrency     int           // kept at 1: ERP jobs share one browser session
	MaxAttempts        int           // default max attempts for new jobs
	BackoffSchedule    []time.Duration
	JitterPercent      float64
	SweepInterval      time.Duration // how often stuck jobs are reclaimed
	StuckTimeout       time.Duration // processing older than this is reclaimable
}

type Webhook struct {
	RequestTimeout  time.Duration
	SignatureHeader string
	EventHeader     string
	FailThreshold   int // consecutive failed jobs before deactivation
}

type Producers struct {
	ReconcileInterval time.Duration
	ErpSyncInterval   time.Duration
}

type Alert struct {
	URL     string // ops endpoint for fire-and-forget alerts; empty = log only
	Timeout time.Duration
}

type Carrier struct {
	APIBase string // carrier aggregator API, e.g. https://tracking.internal
	Codes   []string
	Timeout time.Duration
}

type Erp struct {
	BridgeURL string // HTTP bridge in front of the Ecount browser automation
	Timeout   time.Duration
}

type Config struct {
	AppName   string
	HTTPPort  string // serves /healthz and /metrics
	DB        DB
	Queue     Queue
	Webhook   Webhook
	Producers Producers
	Alert     Alert
	Carrier   Carrier
	Erp       Erp
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseBackoffSchedule(schedule string) []time.Duration {
	def := []time.Duration{30 * time.Second, 2 * time.Minute, 10 * time.Minute}
	if schedule == "" {
		return def
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}
	if len(durations) == 0 {
		return def
	}
	return durations
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "ecount-integration"),
		HTTPPort: ":" + getenv("WORKER_HTTP_PORT", "8082"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "ecount_integration"),
		},
		Queue: Queue{
			WebhookInterval:    getenvDuration("QUEUE_WEBHOOK_INTERVAL", 2*time.Second),
			WebhookConcurrency: getenvInt("QUEUE_WEBHOOK_CONCURRENCY", 5),
			ErpInterval:        getenvDuration("QUEUE_ERP_INTERVAL", 5*time.Second),
			ErpConcurrency:     getenvInt("QUEUE_ERP_CONCURRENCY", 1),
			MaxAttempts:        getenvInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffSchedule:    parseBackoffSchedule(getenv("QUEUE_BACKOFF_SCHEDULE", "")),
			JitterPercent:      getenvFloat("QUEUE_BACKOFF_JITTER_PCT", 0.2),
			SweepInterval:      getenvDuration("QUEUE_SWEEP_INTERVAL", time.Minute),
			StuckTimeout:       getenvDuration("QUEUE_STUCK_TIMEOUT", 10*time.Minute),
		},
		Webhook: Webhook{
			RequestTimeout:  getenvDuration("WEBHOOK_REQUEST_TIMEOUT", 5*time.Second),
			SignatureHeader: getenv("WEBHOOK_SIGNATURE_HEADER", "X-Webhook-Signature"),
			EventHeader:     getenv("WEBHOOK_EVENT_HEADER", "X-Webhook-Event"),
			FailThreshold:   getenvInt("WEBHOOK_FAIL_THRESHOLD", 5),
		},
		Producers: Producers{
			ReconcileInterval: getenvDuration("RECONCILE_INTERVAL", 5*time.Minute),
			ErpSyncInterval:   getenvDuration("ERP_SYNC_INTERVAL", 15*time.Minute),
		},
		Alert: Alert{
			URL:     getenv("ALERT_WEBHOOK_URL", ""),
			Timeout: getenvDuration("ALERT_TIMEOUT", 5*time.Second),
		},
		Carrier: Carrier{
			APIBase: getenv("CARRIER_API_BASE", "http://carrier-gateway:8090"),
			Codes:   splitCodes(getenv("CARRIER_CODES", "GHN,GHTK,VTP")),
			Timeout: getenvDuration("CARRIER_TIMEOUT", 10*time.Second),
		},
		Erp: Erp{
			BridgeURL: getenv("ERP_BRIDGE_URL", "http://ecount-bridge:8091"),
			Timeout:   getenvDuration("ERP_TIMEOUT", 60*time.Second),
		},
	}
}

func splitCodes(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
