package netctl

import "testing"

func TestSortAccessPoints(t *testing.T) {
	aps := []AccessPoint{
		{SSID: "Cafe", BSSID: "aa", Strength: 40},
		{SSID: "Home", BSSID: "bb", Strength: 80},
		{SSID: "Office", BSSID: "cc", Strength: 90},
		{SSID: "Home", BSSID: "dd", Strength: 80},
		{SSID: "Weak but active", BSSID: "ee", Strength: 10, Active: true},
	}
	SortAccessPoints(aps)

	if !aps[0].Active {
		t.Errorf("expected active access point first, got %s", aps[0].SSID)
	}
	if aps[1].SSID != "Office" {
		t.Errorf("expected strongest non-active second, got %s", aps[1].SSID)
	}
	// Duplicate SSIDs with equal strength order by BSSID.
	if aps[2].BSSID != "bb" || aps[3].BSSID != "dd" {
		t.Errorf("expected stable BSSID ordering for duplicates, got %s then %s", aps[2].BSSID, aps[3].BSSID)
	}
	if aps[4].SSID != "Cafe" {
		t.Errorf("expected weakest last, got %s", aps[4].SSID)
	}
}
