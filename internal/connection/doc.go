// Package connection tracks whether the device is reachable and drives
// reconnection.
//
// The state machine is pure: Next applies one Event to a State and returns
// the effects its owner must perform, and Project maps a State to the
// banner shown to the user. Monitor owns one State, feeds it the outcomes
// of device calls and runs the probe loop.
//
// Reconnection loop:
//
//	failure while connected
//	  -> reconnecting, attempt 1, probe GET /api/status (5s timeout)
//	  -> probe fails: wait DelayForAttempt(n), attempt n+1, probe again
//	  -> probe succeeds (or any other call succeeds): connected,
//	     "Connection restored" for 2s, then hidden
//
// Delays grow as 1s * 1.5^(n-1) and are capped at 30s. The loop never
// gives up on its own; StopReconnection halts it and leaves the error
// banner up until the next success.
//
// Example usage:
//
//	client, _ := transport.NewClient("192.168.4.1")
//	mon := connection.NewMonitor(connection.TransportProber(client, ""))
//	client.AddObserver(mon)
//	defer mon.Close()
//
//	cancel := mon.Subscribe(func(s connection.Snapshot) {
//	    fmt.Println(s.Banner.Message())
//	})
//	defer cancel()
package connection
