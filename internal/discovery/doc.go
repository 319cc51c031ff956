// Package discovery finds ESP32 control panels on the local network.
//
// The device web server advertises itself as an "_http._tcp" mDNS service.
// Since many other devices do the same, every advertised service is only a
// candidate: the scanner confirms each one by reading its /api/status
// endpoint and keeps those that answer.
//
// # Usage Example
//
//	devices, err := discovery.ScanForDevices(ctx, 5*time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, d := range devices {
//	    fmt.Println(d.Name(), d.BaseURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
