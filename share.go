package main

import (
	"fmt"
	"io"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// EscapeWifiString handles the special character escaping for SSID and
// passphrase values inside a WIFI: string.
func EscapeWifiString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`;`, `\;`,
		`,`, `\,`,
		`:`, `\:`,
		`"`, `\"`,
	)
	return r.Replace(s)
}

// BuildWifiString assembles the WIFI:... payload phone cameras understand.
func BuildWifiString(ssid, passphrase string, hidden bool) string {
	var b strings.Builder

	b.WriteString("WIFI:S:")
	b.WriteString(EscapeWifiString(ssid))
	b.WriteString(";")

	if passphrase != "" {
		b.WriteString("T:WPA;P:")
		b.WriteString(EscapeWifiString(passphrase))
		b.WriteString(";")
	} else {
		b.WriteString("T:nopass;")
	}

	if hidden {
		b.WriteString("H:true;")
	}

	b.WriteString(";;")
	return b.String()
}

// runShare prints a terminal QR code for joining the network. The passphrase
// is taken from the command line only; the coordinator never hands secrets
// back out.
func runShare(w io.Writer, ssid, passphrase string, hidden bool) error {
	q, err := qrcode.New(BuildWifiString(ssid, passphrase, hidden), qrcode.Medium)
	if err != nil {
		return fmt.Errorf("generate QR code: %w", err)
	}
	fmt.Fprint(w, q.ToSmallString(false))
	return nil
}
