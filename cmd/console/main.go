// Command console is the operator console of the auto-reply service: a web
// console, a terminal log viewer and a few rule commands.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
