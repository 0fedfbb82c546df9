package main

import (
	"github.com/robotalks/uci.go/pkg/cli/sh"
	"github.com/robotalks/uci.go/pkg/platform"

	_ "github.com/robotalks/uci.go/pkg/cli/cmds/core"
)

//go-build: CGO_ENABLED=0

func init() {
	platform.SetupFlags()
}

func main() {
	sh.Main()
}
