package bus

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/iebus.go/pkg/cli/sh"
	"github.com/robotalks/iebus.go/pkg/iebus"
	"github.com/robotalks/iebus.go/pkg/wire"
)

// DefaultListenDuration is used by listen without arguments.
const DefaultListenDuration = 10 * time.Second

var (
	// SendCmd transmits a frame through the selected node.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "B|D M<hex> S<hex> C<hex> [L<len>] [HEX BYTES...]",
		Func: sh.MustUseNode(func(c *ishell.Context) {
			msg, err := iebus.ParseMessage(strings.Join(c.Args, " "))
			if err != nil {
				c.Err(fmt.Errorf("Invalid frame: %v", err))
				return
			}
			s := sh.ShellFrom(c)
			err = s.Client.Send(context.Background(), msg)
			if s.OutputJSON {
				res := wire.NewTxResult(0, err)
				sh.PrintJSON(c, res)
				return
			}
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// ListenCmd prints frames received by the selected node.
	ListenCmd = ishell.Cmd{
		Name:    "listen",
		Aliases: []string{"ls"},
		Help:    "[SECONDS]",
		Func: sh.MustUseNode(func(c *ishell.Context) {
			dur, err := ParseListenDuration(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			s := sh.ShellFrom(c)
			frameCh := make(chan *wire.Frame, 16)
			sub := s.Client.Subscribe(func(f *wire.Frame) {
				select {
				case frameCh <- f:
				default:
				}
			})
			defer sub.Close()
			timeout := time.After(dur)
			for {
				select {
				case f := <-frameCh:
					if s.OutputJSON {
						sh.PrintJSON(c, f)
						continue
					}
					c.Println(FormatFrame(f))
				case <-timeout:
					return
				}
			}
		}),
	}
)

// ParseListenDuration parses the optional SECONDS argument.
func ParseListenDuration(args []string) (time.Duration, error) {
	if len(args) == 0 {
		return DefaultListenDuration, nil
	}
	val, err := strconv.ParseFloat(args[0], 64)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("Invalid SECONDS: %q", args[0])
	}
	return time.Duration(val * float64(time.Second)), nil
}

// FormatFrame renders a frame in the bus message format with its time.
func FormatFrame(f *wire.Frame) string {
	msg, err := f.Message()
	if err != nil {
		return fmt.Sprintf("invalid frame: %v", err)
	}
	if ts := f.Time(); !ts.IsZero() {
		return ts.Format("15:04:05.000000") + " " + msg.String()
	}
	return msg.String()
}

func init() {
	sh.AddCmds(
		&SendCmd,
		&ListenCmd,
	)
}
