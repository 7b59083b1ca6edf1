package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hackgods/jewelry-appointment-bot/internal/api"
	"github.com/hackgods/jewelry-appointment-bot/internal/slot"
)

// SimConfig drives a contention run: every round, Workers customers send
// "/at" for the same slot at the same moment. Exactly one may win.
type SimConfig struct {
	WebhookURL   string
	Workers      int
	Rounds       int
	StartSlot    int
	Cleanup      bool
	AuthToken    string
	SignatureURL string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[min2(len(latencies)*50/100, len(latencies)-1)]
	p95 = latencies[min2(len(latencies)*95/100, len(latencies)-1)]
	return avg, min, max, p50, p95
}

type roundResult struct {
	slotIndex int
	winners   int64
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	booking OperationMetrics
	clear   OperationMetrics
	rounds  []roundResult
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: webhook=%s workers=%d rounds=%d start_slot=%d",
		cfg.WebhookURL, cfg.Workers, cfg.Rounds, cfg.StartSlot)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sim.Run(ctx)

	if !sim.PrintReport() {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	_ = godotenv.Load()

	return SimConfig{
		WebhookURL:   getEnv("SIM_WEBHOOK_URL", "http://localhost:8080/webhooks/twilio"),
		Workers:      getInt("SIM_WORKERS", 20),
		Rounds:       getInt("SIM_ROUNDS", 3),
		StartSlot:    getInt("SIM_START_SLOT", 0),
		Cleanup:      getEnv("SIM_CLEANUP", "true") == "true",
		AuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		SignatureURL: os.Getenv("TWILIO_WEBHOOK_URL"),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Rounds <= 0 {
		return fmt.Errorf("SIM_ROUNDS must be > 0")
	}
	if !slot.Valid(cfg.StartSlot) || !slot.Valid(cfg.StartSlot+cfg.Rounds-1) {
		return fmt.Errorf("SIM_START_SLOT+SIM_ROUNDS must stay within %d slots", slot.Count)
	}
	return nil
}

func (s *Simulator) Run(ctx context.Context) {
	for i := 0; i < s.config.Rounds; i++ {
		idx := s.config.StartSlot + i
		winners := s.contend(ctx, idx)
		s.rounds = append(s.rounds, roundResult{slotIndex: idx, winners: winners})
		log.Printf("round %d: slot %s winners=%d", i+1, slot.DisplayTime(idx), winners)

		if s.config.Cleanup {
			s.clearSlot(ctx, idx)
		}
	}
	log.Println("simulation complete")
}

// contend releases all workers at once against one slot.
func (s *Simulator) contend(ctx context.Context, idx int) int64 {
	start := make(chan struct{})
	var winners int64
	var wg sync.WaitGroup

	for w := 0; w < s.config.Workers; w++ {
		body := fmt.Sprintf("/at %s %s, %s, %s, simulated",
			gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Phone(), slot.DisplayTime(idx))
		from := "whatsapp:+91" + gofakeit.Numerify("##########")

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			began := time.Now()
			reply, err := s.send(ctx, from, body)
			latency := time.Since(began)

			switch {
			case err != nil:
				log.Printf("booking request failed: %v", err)
				s.booking.Record(latency, false, false)
			case strings.Contains(reply, "Appointment Booked"):
				atomic.AddInt64(&winners, 1)
				s.booking.Record(latency, true, false)
			case strings.Contains(reply, "Slot Already Booked"), strings.Contains(reply, "being booked"):
				s.booking.Record(latency, false, true)
			default:
				log.Printf("unexpected reply: %q", reply)
				s.booking.Record(latency, false, false)
			}
		}()
	}

	close(start)
	wg.Wait()
	return winners
}

func (s *Simulator) clearSlot(ctx context.Context, idx int) {
	began := time.Now()
	reply, err := s.send(ctx, "whatsapp:+910000000000", "/reschedule "+slot.DisplayTime(idx)+" tomorrow")
	latency := time.Since(began)
	if err != nil {
		log.Printf("clear request failed: %v", err)
		s.clear.Record(latency, false, false)
		return
	}
	s.clear.Record(latency, strings.Contains(reply, "Slot Cleared"), strings.Contains(reply, "Nothing found"))
}

// send posts a Twilio-style form and returns the TwiML message text.
func (s *Simulator) send(ctx context.Context, from, body string) (string, error) {
	form := url.Values{
		"From": {from},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.WebhookURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if s.config.AuthToken != "" && s.config.SignatureURL != "" {
		req.Header.Set("X-Twilio-Signature", api.SignTwilioRequest(s.config.AuthToken, s.config.SignatureURL, form))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var doc api.TwiMLResponse
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("decode twiml: %w", err)
	}
	if doc.Message == nil {
		return "", nil
	}
	return *doc.Message, nil
}

// PrintReport reports false when any round had other than one winner.
func (s *Simulator) PrintReport() bool {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Workers per round: %d\n", s.config.Workers)
	fmt.Println()

	ok := true
	for _, r := range s.rounds {
		verdict := "OK"
		if r.winners != 1 {
			verdict = "DOUBLE BOOKING OR LOST BOOKING"
			ok = false
		}
		fmt.Printf("  %-10s winners=%d  %s\n", slot.DisplayTime(r.slotIndex), r.winners, verdict)
	}
	fmt.Println()

	printOperationReport("Booking", &s.booking)
	printOperationReport("Reschedule", &s.clear)
	return ok
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
