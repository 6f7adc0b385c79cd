package netctl

import "sort"

// SortAccessPoints sorts access points in place for presentation.
// The active access point comes first, then by signal strength descending,
// falling back to SSID and finally BSSID so the order is deterministic for
// duplicate names.
func SortAccessPoints(aps []AccessPoint) {
	sort.SliceStable(aps, func(i, j int) bool {
		a := aps[i]
		b := aps[j]

		if a.Active != b.Active {
			return a.Active
		}
		if a.Strength != b.Strength {
			return a.Strength > b.Strength
		}
		if a.SSID != b.SSID {
			return a.SSID < b.SSID
		}
		return a.BSSID < b.BSSID
	})
}
