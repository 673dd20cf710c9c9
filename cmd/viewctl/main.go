// Command viewctl records, flushes, and inspects pending views from the shell
// using the same configuration as the view agent service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
