// Command gracesrvd is the reference binary built on top of the
// supervisor package: an uninterruptible TCP/UNIX/TLS echo server with
// graceful restart and shutdown, a metrics endpoint, and a control socket
// for operators.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
