// Command trustkit issues and checks tokens and inspects the cache from a shell.
package main

import (
	"github.com/turtacn/trustkit/cmd/cli"
)

func main() {
	cli.Execute()
}
