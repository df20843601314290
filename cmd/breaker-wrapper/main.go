// Command breaker-wrapper runs hook commands behind a failure-tracking
// circuit breaker and administers the breaker state.
package main

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	Execute()
}
