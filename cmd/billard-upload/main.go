// Command billard-upload publishes and removes articles on a billard server
// using Hawk-signed requests. The key is read from BILLARD_HAWK_KEY.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Getenv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
