// binwatch recycles an application when the contents of its bin directory change.
package main

import (
	"os"

	"github.com/hupe1980/binwatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
