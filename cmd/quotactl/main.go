// Command quotactl runs operator tasks against the quotagate store.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(openFromConfig).Execute(); err != nil {
		os.Exit(1)
	}
}
