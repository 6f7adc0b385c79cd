package main

import "testing"

func TestEscapeWifiString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{`semi;colon`, `semi\;colon`},
		{`a,b:c"d`, `a\,b\:c\"d`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		if got := EscapeWifiString(tt.in); got != tt.want {
			t.Errorf("EscapeWifiString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildWifiString(t *testing.T) {
	tests := []struct {
		name       string
		ssid, pass string
		hidden     bool
		want       string
	}{
		{
			name: "open network",
			ssid: "Cafe",
			want: "WIFI:S:Cafe;T:nopass;;;",
		},
		{
			name: "protected network",
			ssid: "Home",
			pass: "hunter2",
			want: "WIFI:S:Home;T:WPA;P:hunter2;;;",
		},
		{
			name:   "hidden network",
			ssid:   "Home",
			pass:   "hunter2",
			hidden: true,
			want:   "WIFI:S:Home;T:WPA;P:hunter2;H:true;;;",
		},
		{
			name: "escaped ssid",
			ssid: "semi;colon",
			want: `WIFI:S:semi\;colon;T:nopass;;;`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildWifiString(tt.ssid, tt.pass, tt.hidden); got != tt.want {
				t.Errorf("BuildWifiString() = %q, want %q", got, tt.want)
			}
		})
	}
}
