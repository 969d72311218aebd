package main

import (
	"os"

	"github.com/flarebyte/kiln/cmd/pipeline/cli"
	"github.com/flarebyte/kiln/cmd/pipeline/root"
)

func main() {
	if err := root.Execute(os.Args[1:]); err != nil {
		// One short line on stderr; no usage or stack traces.
		_, _ = os.Stderr.WriteString(cli.Sanitize(err) + "\n")
		os.Exit(cli.Code(err))
	}
}
