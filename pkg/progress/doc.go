// Package progress carries run progress out of the driver.
//
// Events are fire-and-forget: reporters must not block and their failures
// never affect the run. Multi fans events out to the console reporter and,
// when configured, a NATS subject.
package progress
