package main

import (
	"testing"
	"time"
)

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("READY_ATTEMPTS", "7")
	t.Setenv("READY_INTERVAL", "250ms")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	attempts, err := envInt("READY_ATTEMPTS", 30)
	if err != nil || attempts != 7 {
		t.Fatalf("envInt = %d, %v; want 7, nil", attempts, err)
	}
	interval, err := envDuration("READY_INTERVAL", 10*time.Second)
	if err != nil || interval != 250*time.Millisecond {
		t.Fatalf("envDuration = %s, %v; want 250ms, nil", interval, err)
	}
	rps, err := envFloat("RATE_LIMIT_RPS", 0)
	if err != nil || rps != 2.5 {
		t.Fatalf("envFloat = %v, %v; want 2.5, nil", rps, err)
	}
}

func TestEnvFallbacksUseDefaultWhenUnset(t *testing.T) {
	t.Setenv("JOB_POLL_ATTEMPTS", "")
	t.Setenv("JOB_POLL_INTERVAL", "")

	attempts, err := envInt("JOB_POLL_ATTEMPTS", 30)
	if err != nil || attempts != 30 {
		t.Fatalf("envInt = %d, %v; want 30, nil", attempts, err)
	}
	interval, err := envDuration("JOB_POLL_INTERVAL", 10*time.Second)
	if err != nil || interval != 10*time.Second {
		t.Fatalf("envDuration = %s, %v; want 10s, nil", interval, err)
	}
}

func TestEnvFallbacksRejectGarbage(t *testing.T) {
	t.Setenv("READY_ATTEMPTS", "many")
	t.Setenv("READY_INTERVAL", "soon")
	t.Setenv("RATE_LIMIT_RPS", "fast")

	if _, err := envInt("READY_ATTEMPTS", 30); err == nil {
		t.Fatal("envInt accepted a non-numeric value")
	}
	if _, err := envDuration("READY_INTERVAL", time.Second); err == nil {
		t.Fatal("envDuration accepted a non-duration value")
	}
	if _, err := envFloat("RATE_LIMIT_RPS", 0); err == nil {
		t.Fatal("envFloat accepted a non-numeric value")
	}
}
