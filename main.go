package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

func main() {
	debug := flag.Bool("debug", false, "print every scan sample and the design matrix")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-debug] <parameters.json|parameters.yaml>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 || strings.TrimSpace(flag.Arg(0)) == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := runCalibration(flag.Arg(0), *debug); err != nil {
		warningPrintf("%v\n", err)
		os.Exit(1)
	}
}
