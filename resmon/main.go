// Package main is the entry point of the resmon command-line tool.
package main

import (
	"github.com/sarchlab/resmon/resmon/cmd"
	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(cmd.Execute())
}
