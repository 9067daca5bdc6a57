// Command signature-service runs the signature protocol HTTP service and
// offers the operator and client-side tooling around it.
package main

import (
	"fmt"
	"os"

	httpApp "github.com/munistream/signature/internal/app/http"
)

const version = "0.1.0"

// test-stubbables
var httpStart = httpApp.Start
var osExit = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		osExit(1)
	}
}
