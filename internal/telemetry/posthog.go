package telemetry

import (
	"crypto/sha256"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/posthog/posthog-go"
)

// counterService is a best-effort PostHog event sink for install/build/run
// counts. Grounded on internal/telemetry/posthog.go's TelemetryService,
// trimmed to asp's counter surface: no agent/environment/MCP-server event
// helpers (asp has none of those concepts), just TrackEvent's anonymous-ID
// and opt-out machinery.
type counterService struct {
	client    posthog.Client
	enabled   bool
	machineID string
}

var (
	counterOnce sync.Once
	counter     *counterService
)

// disabledFromEnv mirrors the teacher's opt-out convention (there, a
// SetEnabled(false) call; here, an environment variable checked once at
// first use, since asp has no long-lived settings object to flip).
func disabledFromEnv() bool {
	return os.Getenv("ASP_TELEMETRY_DISABLED") == "1"
}

func getCounter() *counterService {
	counterOnce.Do(func() {
		if disabledFromEnv() {
			counter = &counterService{enabled: false}
			return
		}
		client, err := posthog.NewWithConfig(
			"phc_mEeFH3zxHHot6dGC5ZfQPPBjm2rApGpVZwpKYPYwZD",
			posthog.Config{Endpoint: "https://us.i.posthog.com"},
		)
		if err != nil {
			log.Printf("telemetry: failed to initialize PostHog client: %v", err)
			counter = &counterService{enabled: false}
			return
		}
		counter = &counterService{client: client, enabled: true, machineID: machineID()}
	})
	return counter
}

func machineID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	hash := sha256.Sum256([]byte(hostname))
	return fmt.Sprintf("machine_%x", hash[:6])
}

// Counter fires a best-effort, anonymous PostHog event for an
// install/build/run/gc count. props must never carry file contents or
// filesystem paths (spec.md's no-telemetry-of-user-data constraint) — only
// counts, booleans, and durations.
func Counter(event string, props map[string]any) {
	c := getCounter()
	if !c.enabled || c.client == nil {
		return
	}

	properties := map[string]any{}
	for k, v := range props {
		properties[k] = v
	}
	properties["machine_id"] = c.machineID
	properties["os"] = runtime.GOOS
	properties["arch"] = runtime.GOARCH
	properties["timestamp"] = time.Now().UTC()
	properties["$process_person_profile"] = false

	if err := c.client.Enqueue(posthog.Capture{
		DistinctId: c.machineID,
		Event:      event,
		Properties: properties,
	}); err != nil {
		log.Printf("telemetry: failed to track event %s: %v", event, err)
	}
}

// CloseCounter flushes and shuts down the PostHog client, if one was ever
// started. Call during process shutdown.
func CloseCounter() {
	if counter != nil && counter.enabled && counter.client != nil {
		counter.client.Close()
	}
}
