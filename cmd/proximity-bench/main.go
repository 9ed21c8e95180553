// Command proximity-bench probes the spatial extension and compares the
// indexed and scan search backends against a live database.
package main

import (
	"os"

	"github.com/mr1hm/go-disaster-proximity/cmd/proximity-bench/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
