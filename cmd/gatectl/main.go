package main

import (
	"github.com/rzbill/gate/pkg/cli/cmd"
)

func main() {
	cmd.Execute()
}
