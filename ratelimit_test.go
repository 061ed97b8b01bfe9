package smsverify

import (
	"testing"
	"time"
)

func TestMobileLimiter(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	l := NewMobileLimiter(1, 2)

	if !l.Allow("27825551234", now) || !l.Allow("27825551234", now) {
		t.Fatalf("Expected a burst of 2 to be allowed")
	}
	if l.Allow("27825551234", now) {
		t.Errorf("Expected the third send to be refused")
	}
	if !l.Allow("27835551234", now) {
		t.Errorf("Expected another number to have its own bucket")
	}
	if !l.Allow("27825551234", now.Add(time.Minute)) {
		t.Errorf("Expected a token after a minute")
	}
}

func TestMobileLimiterDisabled(t *testing.T) {
	l := NewMobileLimiter(0, 5)
	if l != nil {
		t.Fatalf("Expected no limiter for a zero rate")
	}
	for i := 0; i < 10; i++ {
		if !l.Allow("27825551234", time.Now()) {
			t.Fatalf("A nil limiter must allow everything")
		}
	}
}
