package main

import (
	"flag"
	"log"
	"strings"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/iebus.go/pkg/bridge/mqtt"
	"github.com/robotalks/iebus.go/pkg/env"
	"github.com/robotalks/iebus.go/pkg/wire"
)

func init() {
	env.SetupMQTTFlags()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := env.Default().NewQueue()
	if err != nil {
		log.Fatalln(err)
	}
	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		switch {
		case strings.HasSuffix(topic, mqtt.SuffixMeta):
			log.Printf("%s: %s", topic, string(payload))
		case strings.HasSuffix(topic, mqtt.SuffixRx), strings.HasSuffix(topic, mqtt.SuffixTx):
			printFrame(topic, payload)
		case strings.HasSuffix(topic, mqtt.SuffixTxResult):
			var res wire.TxResult
			if err := proto.Unmarshal(payload, &res); err != nil {
				log.Printf("%s: bad result: %v", topic, err)
				return
			}
			log.Printf("%s: %s", topic, res.String())
		default:
			log.Printf("%s: %d bytes", topic, len(payload))
		}
	}))
	if err := q.ConnectAndWait(); err != nil {
		log.Fatalln(err)
	}
	<-(chan struct{})(nil)
}

func printFrame(topic string, payload []byte) {
	var f *wire.Frame
	if strings.HasSuffix(topic, mqtt.SuffixTx) {
		var req wire.TxRequest
		if err := proto.Unmarshal(payload, &req); err != nil || req.Frame == nil {
			log.Printf("%s: bad request: %v", topic, err)
			return
		}
		f = req.Frame
	} else {
		var err error
		if f, err = wire.DecodeFrame(payload); err != nil {
			log.Printf("%s: bad frame: %v", topic, err)
			return
		}
	}
	msg, err := f.Message()
	if err != nil {
		log.Printf("%s: invalid frame: %v", topic, err)
		return
	}
	log.Printf("%s: %s", topic, msg.String())
}
