// Command lazybd opens and stacks lazily-materializing container image layers.
package main

import (
	"os"

	"github.com/weftimage/lazybd/cmd/lazybd/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
