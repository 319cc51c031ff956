// Package session wires one device connection together: the transport
// client, the connection monitor, the status poller, the module loader and
// the tab set.
//
// Every request made on behalf of the user goes through the observed
// transport, so failures reach the monitor and start the reconnection
// loop. Status polls report to the monitor directly and module assets are
// fetched without observation. Notices (action results, module load
// failures and the one-time communication error) are delivered to
// subscribers in order.
package session
