package main

import (
	"flag"
	"log"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/iebus.go/pkg/bridge/websocket"
	"github.com/robotalks/iebus.go/pkg/env"
	"github.com/robotalks/iebus.go/pkg/node"
	"github.com/robotalks/iebus.go/pkg/wire"
)

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.MustNewConfig()
	ctl := conf.MustNewController()
	ctl.Enable()
	defer ctl.Disable()

	mux := node.NewHandlerMux()
	n := node.New(ctl, mux)
	if conf.Driver == env.DriverSim {
		glog.Warning("sim driver is a dry run: the bus stays idle and writes time out")
		n.TimeoutBackoff = node.DefaultIdleInterval
	}
	runner := node.NewRunner().HandleSignals()

	bridge, err := conf.NewBridge(n)
	if err != nil {
		log.Fatalln(err)
	}
	if bridge != nil {
		mux.Add(bridge)
		runner.Go(bridge)
	}

	if conf.MonitorAddr != "" {
		hub := websocket.NewHub()
		mux.Add(hub)
		runner.Go(&websocket.Server{Addr: conf.MonitorAddr, Hub: hub})
	}

	if conf.CaptureFile != "" {
		f, err := os.Create(conf.CaptureFile)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		mux.Add(wire.NewRecorder(f))
	}

	glog.Infof("iebus node 0x%03x on %s", uint16(ctl.Address()), conf.Driver)
	if err := runner.Go(n).Wait(); err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
}
