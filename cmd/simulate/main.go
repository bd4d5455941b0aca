package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medisync/clinic-scheduler/internal/config"
	"github.com/medisync/clinic-scheduler/internal/db"
)

// The simulator hammers the find-available endpoint with overlapping
// requests that deliberately contend for a small set of resources, to watch
// the lock ordering and the conflict-retry path under real concurrency.

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	PatientLimit  int
	ResourceLimit int
	HorizonDays   int
	PostgresDSN   string
}

type DataPool struct {
	ClinicID   uuid.UUID
	Patients   []uuid.UUID
	Clinicians []uuid.UUID
	Resources  []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Partial   int64
	Failed    int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, outcome string) {
	atomic.AddInt64(&om.Total, 1)
	switch outcome {
	case "success":
		atomic.AddInt64(&om.Success, 1)
	case "partial":
		atomic.AddInt64(&om.Partial, 1)
	case "failed":
		atomic.AddInt64(&om.Failed, 1)
	default:
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

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]

	p50Idx := len(latencies) * 50 / 100
	if p50Idx >= len(latencies) {
		p50Idx = len(latencies) - 1
	}
	p50 = latencies[p50Idx]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics OperationMetrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d horizon=%d",
		cfg.Duration, cfg.Workers, cfg.HorizonDays)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d patients, %d clinicians, %d resources",
		len(dataPool.Patients), len(dataPool.Clinicians), len(dataPool.Resources))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		PatientLimit:  getInt("SIM_PATIENT_LIMIT", 500),
		ResourceLimit: getInt("SIM_RESOURCE_LIMIT", 4),
		HorizonDays:   getInt("SIM_HORIZON_DAYS", 14),
		PostgresDSN:   baseCfg.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	if err := pool.QueryRow(ctx, `SELECT id FROM clinics LIMIT 1`).Scan(&dataPool.ClinicID); err != nil {
		return nil, fmt.Errorf("load clinic: %w", err)
	}

	var err error
	if dataPool.Patients, err = loadIDs(ctx, pool, "patients", cfg.PatientLimit); err != nil {
		return nil, err
	}
	if dataPool.Clinicians, err = loadIDs(ctx, pool, "clinicians", 20); err != nil {
		return nil, err
	}
	// A deliberately tiny resource pool maximizes contention.
	if dataPool.Resources, err = loadIDs(ctx, pool, "resources", cfg.ResourceLimit); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 || len(dataPool.Clinicians) == 0 || len(dataPool.Resources) == 0 {
		return nil, fmt.Errorf("data pool is empty, run cmd/seed first")
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, table string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM `+table+` LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	log.Printf("running %d workers for %s", s.config.Workers, s.config.Duration)

	deadline := time.Now().Add(s.config.Duration)
	var wg sync.WaitGroup

	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for time.Now().Before(deadline) {
				s.fireRequest(rng)
			}
		}(i)
	}

	wg.Wait()
}

func (s *Simulator) fireRequest(rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	clinician := s.pool.Clinicians[rng.Intn(len(s.pool.Clinicians))]
	resource := s.pool.Resources[rng.Intn(len(s.pool.Resources))]

	body := map[string]any{
		"clinicId":              s.pool.ClinicID.String(),
		"patientId":             patient.String(),
		"requestingClinicianId": clinician.String(),
		"requestDate":           time.Now().UTC().Format("2006-01-02"),
		"maxDaysToSearch":       s.config.HorizonDays,
		"clusteringPreference": map[string]any{
			"enabled":                    true,
			"preferExistingDays":         true,
			"maxAppointmentsPerDay":      3,
			"minTimeBetweenAppointments": 30,
			"maxTimeBetweenAppointments": 240,
		},
		"appointmentRequests": []map[string]any{
			{
				"seriesId":        "sim-" + strconv.Itoa(rng.Intn(1_000_000)),
				"resourceId":      resource.String(),
				"appointmentType": "IV_THERAPY",
				"durationMinutes": 60 + rng.Intn(4)*30,
				"recurringPattern": map[string]any{
					"totalOccurrences": 1 + rng.Intn(4),
					"maxPerWeek":       1 + rng.Intn(3),
				},
			},
		},
	}

	payload, _ := json.Marshal(body)

	start := time.Now()
	resp, err := s.client.Post(s.config.APIBaseURL+"/scheduling/find-available", "application/json", bytes.NewReader(payload))
	latency := time.Since(start)
	if err != nil {
		s.metrics.Record(latency, "error")
		return
	}
	defer resp.Body.Close()

	var decoded struct {
		Success bool `json:"success"`
		Series  []struct {
			Status string `json:"status"`
		} `json:"series"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil || resp.StatusCode != http.StatusOK {
		s.metrics.Record(latency, "error")
		return
	}

	switch {
	case !decoded.Success:
		s.metrics.Record(latency, "failed")
	case anyPartial(decoded.Series):
		s.metrics.Record(latency, "partial")
	default:
		s.metrics.Record(latency, "success")
	}
}

func anyPartial(series []struct {
	Status string `json:"status"`
}) bool {
	for _, s := range series {
		if s.Status != "FULLY_SCHEDULED" {
			return true
		}
	}
	return false
}

func (s *Simulator) PrintReport() {
	avg, min, max, p50, p95 := s.metrics.Stats()

	fmt.Println()
	fmt.Println("=== scheduling simulation report ===")
	fmt.Printf("requests:   %d\n", s.metrics.Total)
	fmt.Printf("fully:      %d\n", s.metrics.Success)
	fmt.Printf("partial:    %d\n", s.metrics.Partial)
	fmt.Printf("failed:     %d\n", s.metrics.Failed)
	fmt.Printf("errors:     %d\n", s.metrics.Error)
	fmt.Printf("latency:    avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)
}

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

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
