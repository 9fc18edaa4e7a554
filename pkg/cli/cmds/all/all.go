// Package all registers every shell command set.
package all

import (
	_ "github.com/robotalks/iebus.go/pkg/cli/cmds/bus"
)
