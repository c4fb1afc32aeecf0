// Command admission-demo serves the rate-limited demo endpoints and probes them.
//
//	admission-demo serve --config-dir configs
//	admission-demo token --sub alice
//	admission-demo probe --path /ratelimit/rate-limit/per-user --count 8 --token <jwt>
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
