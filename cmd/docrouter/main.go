// Command docrouter runs the document router HTTP service and offers an
// offline classify command that runs the same pipeline on a local file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
