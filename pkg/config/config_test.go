package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("Expected default listen addr :8080, got %q", cfg.ListenAddr)
	}
	if cfg.DefaultBidWindowSeconds != 60 {
		t.Errorf("Expected default bid window 60, got %d", cfg.DefaultBidWindowSeconds)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boardd.yaml")
	content := "listen_addr: \":9090\"\nlog_level: debug\nexecute_on_assign: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("Expected :9090, got %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected debug, got %q", cfg.LogLevel)
	}
	if !cfg.ExecuteOnAssign {
		t.Error("Expected execute_on_assign true")
	}
}

func TestLoadFleet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleet.yaml")
	content := `workers:
  - worker_id: hotel-1
    address: "0xabc"
    tags: [hotel_booking, taxi]
    max_concurrent: 2
    policy:
      bid_price_ratio: 0.75
      minimum_amount: 1.5
      estimated_seconds: 90
  - worker_id: flights-1
    tags: [flight_booking]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	fleet, err := LoadFleet(path)
	if err != nil {
		t.Fatalf("LoadFleet failed: %v", err)
	}
	if len(fleet.Workers) != 2 {
		t.Fatalf("Expected 2 workers, got %d", len(fleet.Workers))
	}

	first := fleet.Workers[0]
	if first.WorkerID != "hotel-1" || len(first.Tags) != 2 || first.MaxConcurrent != 2 {
		t.Errorf("Unexpected worker: %+v", first)
	}
	if first.Policy.BidPriceRatio != 0.75 {
		t.Errorf("Expected bid ratio 0.75, got %v", first.Policy.BidPriceRatio)
	}
}

func TestLoadFleetMissingFile(t *testing.T) {
	if _, err := LoadFleet("/nonexistent/fleet.yaml"); err == nil {
		t.Error("Expected error for missing fleet file")
	}
}
