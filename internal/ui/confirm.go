package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase is what the user types to confirm a disruptive operation
const ConfirmPhrase = "yes"

// Confirm displays a warning box on out and reads one line from in. It
// returns true only if the user typed ConfirmPhrase.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string) bool {
	width := GetTerminalWidth()

	lines := []string{
		"",
		WarningTitleStyle.Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)),
		"",
	}
	bullet := lipgloss.NewStyle().Foreground(TextColor)
	for _, w := range warnings {
		lines = append(lines, bullet.Render("   • "+w))
	}
	lines = append(lines, "")

	_, _ = fmt.Fprintln(out, WarningBoxStyle(width).Render(strings.Join(lines, "\n")))
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprint(out, WarningTitleStyle.Render(fmt.Sprintf("Type %q to proceed: ", ConfirmPhrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	_, _ = fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}

	if strings.EqualFold(strings.TrimSpace(input), ConfirmPhrase) {
		return true
	}
	_, _ = fmt.Fprintln(out, MutedStyle.Render("  Operation cancelled."))
	return false
}

// ConfirmRestart is the prompt shown before rebooting a device
func ConfirmRestart(in io.Reader, out io.Writer, device string) bool {
	return Confirm(in, out, "RESTART DEVICE", []string{
		"The device at " + device + " will reboot",
		"Actuator motion in progress will stop",
		"The connection banner will show until the device is back",
	})
}

// ConfirmWiFiConnect is the prompt shown before changing station credentials
func ConfirmWiFiConnect(in io.Reader, out io.Writer, ssid string) bool {
	return Confirm(in, out, "CHANGE WIFI NETWORK", []string{
		"The device will join network " + ssid,
		"If the credentials are wrong it may drop off your network",
		"The setup access point stays available for recovery",
	})
}
