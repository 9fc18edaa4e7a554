package main

import (
	"github.com/robotalks/iebus.go/pkg/cli/sh"
	"github.com/robotalks/iebus.go/pkg/env"

	_ "github.com/robotalks/iebus.go/pkg/cli/cmds/all"
)

func init() {
	env.SetupMQTTFlags()
}

func main() {
	sh.Main()
}
