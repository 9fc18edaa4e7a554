// Package env builds a node from flags, environment variables and an
// optional TOML file. Flags win over the file, the file over the
// environment.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/iebus.go/pkg/bridge/mqtt"
	"github.com/robotalks/iebus.go/pkg/hal"
	"github.com/robotalks/iebus.go/pkg/hal/periph"
	"github.com/robotalks/iebus.go/pkg/hal/sim"
	"github.com/robotalks/iebus.go/pkg/iebus"
)

// Drivers.
const (
	DriverSim  = "sim"
	DriverGPIO = "gpio"
)

// Config is the node configuration.
type Config struct {
	// Driver selects the HAL: sim or gpio.
	Driver    string
	RxPin     uint
	TxPin     uint
	EnablePin uint
	// Address is the local unit address, hex with 0x or decimal.
	Address string
	NodeID  string

	// MQTTBrokerURL e.g. mqtt://host:port/topic-prefix, empty to disable.
	MQTTBrokerURL string
	// MonitorAddr is the websocket monitor listen address, empty to disable.
	MonitorAddr string
	// CaptureFile records received frames, empty to disable.
	CaptureFile string

	WaitTimeoutUs    int64
	BusFreeTimeoutUs int64
}

var (
	defaultConfig = Config{
		Driver:           DriverGPIO,
		RxPin:            17,
		TxPin:            27,
		EnablePin:        22,
		Address:          "0x100",
		MQTTBrokerURL:    "mqtt://localhost:1883/iebus/",
		WaitTimeoutUs:    iebus.DefaultWaitTimeoutUs,
		BusFreeTimeoutUs: iebus.DefaultBusFreeTimeoutUs,
	}
	// baseConfig is defaultConfig before flags are parsed.
	baseConfig Config
	configFile string
)

func init() {
	if val := os.Getenv("IEBUS_DRIVER"); val != "" {
		defaultConfig.Driver = val
	}
	if val := os.Getenv("IEBUS_ADDRESS"); val != "" {
		defaultConfig.Address = val
	}
	if val := os.Getenv("IEBUS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("IEBUS_NODE_ID"); val != "" {
		defaultConfig.NodeID = val
	} else {
		defaultConfig.NodeID = MachineID()
	}
	configFile = os.Getenv("IEBUS_CONFIG")
	baseConfig = defaultConfig
}

// BindFlags registers flags writing into c.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Driver, "driver", c.Driver, "HAL driver: gpio, or sim for a dry run on an idle virtual bus.")
	fs.UintVar(&c.RxPin, "rx-pin", c.RxPin, "Receive GPIO pin.")
	fs.UintVar(&c.TxPin, "tx-pin", c.TxPin, "Transmit GPIO pin.")
	fs.UintVar(&c.EnablePin, "enable-pin", c.EnablePin, "Transceiver enable GPIO pin.")
	fs.StringVar(&c.Address, "address", c.Address, "Local unit address.")
	fs.StringVar(&c.NodeID, "id", c.NodeID, "Node ID on the broker.")
	fs.StringVar(&c.MQTTBrokerURL, "mqtt", c.MQTTBrokerURL, "MQTT broker URL.")
	fs.StringVar(&c.MonitorAddr, "monitor", c.MonitorAddr, "Websocket monitor listen address.")
	fs.StringVar(&c.CaptureFile, "capture", c.CaptureFile, "Record received frames to file.")
	fs.Int64Var(&c.WaitTimeoutUs, "wait-timeout-us", c.WaitTimeoutUs, "Bound of a bus transition wait.")
	fs.Int64Var(&c.BusFreeTimeoutUs, "bus-free-timeout-us", c.BusFreeTimeoutUs, "Bound of the wait for a free bus.")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	defaultConfig.BindFlags(flag.CommandLine)
	flag.StringVar(&configFile, "config", configFile, "TOML config file.")
}

// SetupMQTTFlags sets only the flags needed by broker clients.
func SetupMQTTFlags() {
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config from defaults, the config file and flags.
func NewConfig() (*Config, error) {
	if configFile == "" {
		conf := defaultConfig
		return &conf, nil
	}
	conf := baseConfig
	if err := conf.LoadFile(configFile); err != nil {
		return nil, err
	}
	if err := conf.ApplyFlags(flag.CommandLine); err != nil {
		return nil, err
	}
	return &conf, nil
}

// MustNewConfig creates a Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

type fileConfig struct {
	Driver           string `toml:"driver"`
	RxPin            uint   `toml:"rx_pin"`
	TxPin            uint   `toml:"tx_pin"`
	EnablePin        uint   `toml:"enable_pin"`
	Address          string `toml:"address"`
	NodeID           string `toml:"node_id"`
	MQTTBrokerURL    string `toml:"mqtt_url"`
	MonitorAddr      string `toml:"monitor_addr"`
	CaptureFile      string `toml:"capture_file"`
	WaitTimeoutUs    int64  `toml:"wait_timeout_us"`
	BusFreeTimeoutUs int64  `toml:"bus_free_timeout_us"`
}

// LoadFile applies the keys defined in a TOML file.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	if meta.IsDefined("driver") {
		c.Driver = strings.TrimSpace(raw.Driver)
	}
	if meta.IsDefined("rx_pin") {
		c.RxPin = raw.RxPin
	}
	if meta.IsDefined("tx_pin") {
		c.TxPin = raw.TxPin
	}
	if meta.IsDefined("enable_pin") {
		c.EnablePin = raw.EnablePin
	}
	if meta.IsDefined("address") {
		c.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("node_id") {
		c.NodeID = strings.TrimSpace(raw.NodeID)
	}
	if meta.IsDefined("mqtt_url") {
		c.MQTTBrokerURL = strings.TrimSpace(raw.MQTTBrokerURL)
	}
	if meta.IsDefined("monitor_addr") {
		c.MonitorAddr = strings.TrimSpace(raw.MonitorAddr)
	}
	if meta.IsDefined("capture_file") {
		c.CaptureFile = strings.TrimSpace(raw.CaptureFile)
	}
	if meta.IsDefined("wait_timeout_us") {
		c.WaitTimeoutUs = raw.WaitTimeoutUs
	}
	if meta.IsDefined("bus_free_timeout_us") {
		c.BusFreeTimeoutUs = raw.BusFreeTimeoutUs
	}
	return nil
}

// ApplyFlags copies the flags explicitly set on fs onto c. Flags on fs
// that Config doesn't bind are ignored.
func (c *Config) ApplyFlags(fs *flag.FlagSet) error {
	bound := flag.NewFlagSet("config", flag.ContinueOnError)
	c.BindFlags(bound)
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil || bound.Lookup(f.Name) == nil {
			return
		}
		err = bound.Set(f.Name, f.Value.String())
	})
	return err
}

// ParseAddress parses a unit address, hex with 0x or decimal.
func ParseAddress(s string) (iebus.Address, error) {
	val, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %v", s, err)
	}
	if val > uint64(iebus.MaxAddress) {
		return 0, fmt.Errorf("address %q out of range", s)
	}
	return iebus.Address(val), nil
}

// LocalAddress returns the parsed local unit address.
func (c *Config) LocalAddress() (iebus.Address, error) {
	return ParseAddress(c.Address)
}

// NewHAL creates the hardware capability selected by Driver.
func (c *Config) NewHAL() (hal.HAL, error) {
	switch c.Driver {
	case DriverSim:
		return sim.New(hal.Pin(c.RxPin), hal.Pin(c.TxPin)), nil
	case DriverGPIO:
		return periph.New()
	}
	return nil, fmt.Errorf("unknown driver %q", c.Driver)
}

// NewController creates a controller on h using the configured pins.
func (c *Config) NewController(h hal.HAL) (*iebus.Controller, error) {
	addr, err := c.LocalAddress()
	if err != nil {
		return nil, err
	}
	for _, pin := range []uint{c.RxPin, c.TxPin, c.EnablePin} {
		if pin > 255 {
			return nil, fmt.Errorf("pin %d out of range", pin)
		}
	}
	return iebus.NewController(h, hal.Pin(c.RxPin), hal.Pin(c.TxPin), hal.Pin(c.EnablePin), addr,
		iebus.WithWaitTimeout(c.WaitTimeoutUs),
		iebus.WithBusFreeTimeout(c.BusFreeTimeoutUs))
}

// MustNewController creates the HAL and the controller and fails on error.
func (c *Config) MustNewController() *iebus.Controller {
	h, err := c.NewHAL()
	if err != nil {
		log.Fatalln(err)
	}
	ctl, err := c.NewController(h)
	if err != nil {
		log.Fatalln(err)
	}
	return ctl
}

// NodeMeta describes the node on the broker.
func (c *Config) NodeMeta() (mqtt.NodeMeta, error) {
	addr, err := c.LocalAddress()
	if err != nil {
		return mqtt.NodeMeta{}, err
	}
	if c.NodeID == "" {
		return mqtt.NodeMeta{}, fmt.Errorf("node id must be specified")
	}
	return mqtt.NodeMeta{
		ID:          c.NodeID,
		Address:     uint16(addr),
		Description: fmt.Sprintf("IEBus node 0x%03x", uint16(addr)),
		Labels:      map[string]string{"driver": c.Driver},
	}, nil
}

// NewBridge creates the MQTT bridge, nil when no broker is configured.
func (c *Config) NewBridge(sender mqtt.Sender) (*mqtt.Bridge, error) {
	if c.MQTTBrokerURL == "" {
		return nil, nil
	}
	meta, err := c.NodeMeta()
	if err != nil {
		return nil, err
	}
	b, err := mqtt.NewBridge(c.MQTTBrokerURL, meta, sender)
	if err != nil {
		return nil, fmt.Errorf("create MQTT bridge error: %v", err)
	}
	return b, nil
}

// NewQueue creates an MQTT queue for broker clients.
func (c *Config) NewQueue() (*mqtt.Queue, error) {
	if c.MQTTBrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL must be specified")
	}
	return mqtt.NewQueueFromURL(c.MQTTBrokerURL)
}
