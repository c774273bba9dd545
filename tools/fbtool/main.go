package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/buildkite/shellwords"

	"github.com/nuvoton-bsp/fbflush/tools/paths"
	"github.com/nuvoton-bsp/fbflush/tools/sim"
)

const usageString = `fbtool runs the flush coordinator on an emulated board.

Usage:

	%s <command> [arguments]

The commands are:

	sim      render a scene and report the transferred frames
	paths    show the transfer path chosen for a region

Flags in the FBTOOL_FLAGS environment variable are inserted after the
command name.
`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), usageString, os.Args[0])
	flag.PrintDefaults()
}

// args returns the command line with the flags from FBTOOL_FLAGS inserted
// after the command.
func args() []string {
	a := flag.Args()
	env := os.Getenv("FBTOOL_FLAGS")
	if env == "" {
		return a
	}
	extra, err := shellwords.Split(env)
	if err != nil {
		log.Fatalln("FBTOOL_FLAGS:", err)
	}
	return append(append([]string{a[0]}, extra...), a[1:]...)
}

func main() {
	log.Default().SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "sim":
		sim.Main(args())
	case "paths":
		paths.Main(args())
	default:
		fmt.Fprintf(flag.CommandLine.Output(), "unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}
