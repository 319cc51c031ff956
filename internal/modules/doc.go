// Package modules loads feature modules on demand.
//
// Each tab of the control panel is a module: a markup fragment plus a code
// unit served by the device under /tabs/<name>.html and /tabs/<name>.js.
// The first Activate of a module fetches both, injects the markup into the
// module's view and executes the code unit, which registers the module's
// initializer through Register. Later activations only re-run the
// initializer.
//
// Guarantees:
//   - at most one load per module is in flight; concurrent Activate calls
//     for the same module share it (singleflight)
//   - a load runs the initializer once, even if Register lands after the
//     code unit reports completion; each later Activate runs it again
//   - a failed load shows a placeholder, sends an error notice and leaves
//     the module unloaded so the next Activate retries
//
// Load failures are local to the loader and never reach the connection
// monitor.
package modules
