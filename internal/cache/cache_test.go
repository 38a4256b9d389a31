package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryHangupFlag(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if ok, _ := m.TakeHangup(ctx); ok {
		t.Fatal("flag set on a fresh cache")
	}
	_ = m.SetHangup(ctx, time.Minute)
	if ok, _ := m.TakeHangup(ctx); !ok {
		t.Fatal("flag not returned")
	}
	if ok, _ := m.TakeHangup(ctx); ok {
		t.Fatal("flag not cleared after take")
	}
}

func TestMemoryFirstSeenExpires(t *testing.T) {
	m := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := m.FirstSeen(ctx, "k", time.Second); !ok {
		t.Fatal("first claim refused")
	}
	if ok, _ := m.FirstSeen(ctx, "k", time.Second); ok {
		t.Fatal("second claim accepted")
	}
	now = now.Add(2 * time.Second)
	if ok, _ := m.FirstSeen(ctx, "k", time.Second); !ok {
		t.Fatal("claim not released after ttl")
	}
}

func TestMemoryJSON(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	type meta struct {
		Phone  string `json:"phone_number"`
		LeadID string `json:"lead_id"`
	}
	if err := m.SetJSON(ctx, CallMetaKey("s1"), meta{"919800000001", "L1"}, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got meta
	hit, err := m.GetJSON(ctx, CallMetaKey("s1"), &got)
	if err != nil || !hit || got.LeadID != "L1" {
		t.Fatalf("hit=%v err=%v got=%+v", hit, err, got)
	}
	_ = m.Del(ctx, CallMetaKey("s1"))
	if hit, _ := m.GetJSON(ctx, CallMetaKey("s1"), &got); hit {
		t.Fatal("deleted key still present")
	}
}

var (
	_ Cache = (*Redis)(nil)
	_ Flags = (*Redis)(nil)
	_ Cache = (*Memory)(nil)
	_ Flags = (*Memory)(nil)
)

func TestGetTyped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	type meta struct {
		Phone  string `json:"phone"`
		LeadID string `json:"lead_id"`
	}
	if err := m.SetJSON(ctx, CallMetaKey("s-1"), meta{Phone: "9876543210", LeadID: "L1"}, CallMetaTTL); err != nil {
		t.Fatal(err)
	}
	got, hit, err := Get[meta](ctx, m, CallMetaKey("s-1"))
	if err != nil || !hit || got.Phone != "9876543210" || got.LeadID != "L1" {
		t.Fatalf("got %+v hit=%v err=%v", got, hit, err)
	}
	if _, hit, _ := Get[meta](ctx, m, CallMetaKey("missing")); hit {
		t.Fatal("unexpected hit")
	}
	if _, hit, err := Get[meta](ctx, nil, "k"); hit || err != nil {
		t.Fatal("nil cache should miss")
	}
}
