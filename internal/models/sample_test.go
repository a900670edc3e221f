package models

import (
	"testing"
)

func TestNewLinkKey_OrderIndependent(t *testing.T) {
	k1 := NewLinkKey("dev-a", "dev-b")
	k2 := NewLinkKey("dev-b", "dev-a")

	if k1 != k2 {
		t.Errorf("Expected same key for both orders, got %q and %q", k1, k2)
	}
	if string(k1) != "dev-a|dev-b" {
		t.Errorf("Expected key 'dev-a|dev-b', got %q", k1)
	}
}

func TestLinkKey_Devices(t *testing.T) {
	a, b := NewLinkKey("dev-b", "dev-a").Devices()
	if a != "dev-a" || b != "dev-b" {
		t.Errorf("Expected (dev-a, dev-b), got (%s, %s)", a, b)
	}
}

func TestNormalizeDeviceID(t *testing.T) {
	cases := map[string]string{
		" 0x00124B01 ": "0x00124b01",
		"DEV-A":        "dev-a",
		"":             "",
		"  ":           "",
	}
	for in, want := range cases {
		if got := NormalizeDeviceID(in); got != want {
			t.Errorf("NormalizeDeviceID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLQIToRSSI_LinearMapping(t *testing.T) {
	// 映射端点：LQI 255 → -30dBm，LQI 0 → -100dBm
	if got := LQIToRSSI(255); got != -30 {
		t.Errorf("LQIToRSSI(255) = %d, want -30", got)
	}
	if got := LQIToRSSI(0); got != -100 {
		t.Errorf("LQIToRSSI(0) = %d, want -100", got)
	}

	// 中间值落在区间内
	mid := LQIToRSSI(128)
	if mid <= -100 || mid >= -30 {
		t.Errorf("LQIToRSSI(128) = %d, expected in (-100, -30)", mid)
	}
}

func TestRSSIToLQI_Clamps(t *testing.T) {
	if got := RSSIToLQI(-30); got != 255 {
		t.Errorf("RSSIToLQI(-30) = %d, want 255", got)
	}
	if got := RSSIToLQI(-100); got != 0 {
		t.Errorf("RSSIToLQI(-100) = %d, want 0", got)
	}
	if got := RSSIToLQI(-20); got != 255 {
		t.Errorf("RSSIToLQI(-20) = %d, want clamp to 255", got)
	}
	if got := RSSIToLQI(-120); got != 0 {
		t.Errorf("RSSIToLQI(-120) = %d, want clamp to 0", got)
	}
}
