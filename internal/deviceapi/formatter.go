package deviceapi

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatUptime renders a duration the way the device pages do:
// "5s", "3m 4s", "1h 2m".
func FormatUptime(d time.Duration) string {
	s := int64(d / time.Second)
	m := s / 60
	h := m / 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m%60)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s%60)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatBytes renders a byte count as B, KB or MB
func FormatBytes(b int64) string {
	switch {
	case b < 1024:
		return fmt.Sprintf("%d B", b)
	case b < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(b)/(1024*1024))
	}
}

// Uptime returns the device uptime
func (s *Status) Uptime() time.Duration {
	return time.Duration(s.UptimeMS) * time.Millisecond
}

// Summary returns a one-line summary of the device status
func (s *Status) Summary() string {
	wifi := "WiFi off"
	if s.WiFiConnected() {
		wifi = fmt.Sprintf("WiFi %s (%s, %d dBm)", s.WiFiSSID, s.WiFiIP, s.WiFiRSSI)
	}
	modbus := "Modbus down"
	if s.ModbusReady {
		modbus = "Modbus ready"
	}
	return fmt.Sprintf("up %s, heap %s, %s, %s", FormatUptime(s.Uptime()), FormatBytes(s.HeapFree), wifi, modbus)
}

// FormatDetailed returns a multi-line view of the device status
func (s *Status) FormatDetailed() string {
	var b strings.Builder

	b.WriteString("=== Device Status ===\n")
	b.WriteString(fmt.Sprintf("Uptime:     %s\n", FormatUptime(s.Uptime())))
	b.WriteString(fmt.Sprintf("Free heap:  %s\n", FormatBytes(s.HeapFree)))
	if s.WiFiConnected() {
		b.WriteString(fmt.Sprintf("WiFi:       %s\n", s.WiFiSSID))
		b.WriteString(fmt.Sprintf("IP address: %s\n", s.WiFiIP))
		b.WriteString(fmt.Sprintf("Signal:     %d dBm (%s)\n", s.WiFiRSSI, SignalQuality(s.WiFiRSSI)))
	} else {
		b.WriteString(fmt.Sprintf("WiFi:       not connected (status %d)\n", s.WiFiStatus))
	}
	b.WriteString(fmt.Sprintf("Modbus:     %s\n", readyLabel(s.ModbusReady)))

	return b.String()
}

// SignalQuality describes an RSSI value
func SignalQuality(rssi int) string {
	switch {
	case rssi >= -50:
		return "excellent"
	case rssi >= -60:
		return "good"
	case rssi >= -70:
		return "fair"
	default:
		return "weak"
	}
}

func readyLabel(ok bool) string {
	if ok {
		return "ready"
	}
	return "not ready"
}

// CPUBar is one row of the CPU usage chart
type CPUBar struct {
	Label   string
	Percent float64
}

// SortTasksByCPU returns a copy of tasks ordered by CPU usage, busiest
// first. Ties keep name order so output is stable.
func SortTasksByCPU(tasks []Task) []Task {
	out := append([]Task(nil), tasks...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CPUPercent != out[j].CPUPercent {
			return out[i].CPUPercent > out[j].CPUPercent
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func isIdleTask(name string) bool {
	return name == "IDLE0" || name == "IDLE1"
}

// CoreUsage renders the chart relative to each core: one bar per core
// computed as 100% minus that core's idle task, followed by the busiest
// `others` non-idle tasks.
func CoreUsage(tasks []Task, others int) []CPUBar {
	sorted := SortTasksByCPU(tasks)

	var cores, rest []CPUBar
	for _, t := range sorted {
		if isIdleTask(t.Name) {
			cores = append(cores, CPUBar{
				Label:   "Core " + strings.TrimPrefix(t.Name, "IDLE"),
				Percent: clampPercent(100 - t.CPUPercent),
			})
			continue
		}
		if len(rest) < others {
			rest = append(rest, CPUBar{Label: t.Name, Percent: clampPercent(t.CPUPercent)})
		}
	}

	sort.SliceStable(cores, func(i, j int) bool { return cores[i].Label < cores[j].Label })
	return append(cores, rest...)
}

// TopTasks renders the flat chart: the n busiest tasks, idle tasks included
func TopTasks(tasks []Task, n int) []CPUBar {
	sorted := SortTasksByCPU(tasks)
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	bars := make([]CPUBar, 0, len(sorted))
	for _, t := range sorted {
		bars = append(bars, CPUBar{Label: t.Name, Percent: clampPercent(t.CPUPercent)})
	}
	return bars
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// FormatBar draws a fixed-width bar for percent
func FormatBar(percent float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(clampPercent(percent) / 100 * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// FormatBars renders a chart with aligned labels
func FormatBars(bars []CPUBar, width int) string {
	labelWidth := 0
	for _, bar := range bars {
		if len(bar.Label) > labelWidth {
			labelWidth = len(bar.Label)
		}
	}

	var b strings.Builder
	for _, bar := range bars {
		b.WriteString(fmt.Sprintf("%-*s %s %5.1f%%\n", labelWidth, bar.Label, FormatBar(bar.Percent, width), bar.Percent))
	}
	return b.String()
}

// FormatTable renders the task list sorted by CPU usage
func (r *TaskReport) FormatTable() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Heap: %s free, %s minimum | Uptime: %s | Tasks: %d\n\n",
		FormatBytes(r.HeapFree), FormatBytes(r.HeapMin),
		FormatUptime(time.Duration(r.UptimeS)*time.Second), r.TaskCount))
	b.WriteString(fmt.Sprintf("%-16s %-10s %4s %7s %10s\n", "NAME", "STATE", "PRIO", "CPU", "STACK FREE"))
	for _, t := range SortTasksByCPU(r.Tasks) {
		b.WriteString(fmt.Sprintf("%-16s %-10s %4d %6.1f%% %10s\n",
			t.Name, t.State, t.Priority, t.CPUPercent, FormatBytes(t.StackFreeBytes())))
	}
	return b.String()
}

// FormatStorage renders partition usage
func (s *StorageInfo) FormatStorage() string {
	var b strings.Builder
	for _, p := range []struct {
		name string
		u    Usage
	}{{"www", s.WWW}, {"userdata", s.Userdata}} {
		b.WriteString(fmt.Sprintf("%-9s %s / %s (%.0f%%)\n", p.name+":", FormatBytes(p.u.Used), FormatBytes(p.u.Total), p.u.Percent()))
	}
	return b.String()
}

// FormatListing renders a directory listing, directories first
func (l *Listing) FormatListing() string {
	if len(l.Files) == 0 {
		return "(empty)\n"
	}

	entries := append([]FileEntry(nil), l.Files...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir {
			b.WriteString(fmt.Sprintf("%10s  %s/\n", "<dir>", e.Name))
			continue
		}
		b.WriteString(fmt.Sprintf("%10s  %s\n", FormatBytes(e.Size), e.Name))
	}
	return b.String()
}

// FormatActuators renders the actuator list
func (l *ActuatorList) FormatActuators() string {
	if len(l.Actuators) == 0 {
		return "No actuators registered\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-4s %-20s %-9s %8s %8s %7s %s\n", "ID", "NAME", "LINK", "POSITION", "CURRENT", "VOLTAGE", "STATE"))
	for _, a := range l.Actuators {
		if !a.Connected {
			b.WriteString(fmt.Sprintf("%-4d %-20s %-9s\n", a.ID, a.Label(), "offline"))
			continue
		}
		state := "idle"
		if a.Moving {
			state = "moving"
		}
		b.WriteString(fmt.Sprintf("%-4d %-20s %-9s %8d %8d %6.1fV %s\n",
			a.ID, a.Label(), "online", a.Position, a.Current, a.Voltage, state))
	}
	return b.String()
}

// FormatLED renders the LED controller state
func (s *LEDStatus) FormatLED(slaveID int) string {
	if !s.Online() {
		problem := s.Problem()
		if problem == "" {
			problem = "Disconnected"
		}
		return fmt.Sprintf("LED controller %d: %s\n", slaveID, problem)
	}

	fw := string(s.FWVersion)
	if fw == "" {
		fw = "--"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("LED controller %d (firmware %s)\n", slaveID, fw))
	b.WriteString(fmt.Sprintf("LED:    %s\n", onOff(s.LEDOn)))
	b.WriteString(fmt.Sprintf("Blink:  %s (%d ms)\n", onOff(s.BlinkMode), s.BlinkPeriod))
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
