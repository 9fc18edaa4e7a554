// Package sh provides the interactive shell of iebuscli.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/iebus.go/pkg/bridge/mqtt"
	"github.com/robotalks/iebus.go/pkg/env"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// NodeID is the node to use on start, if set.
	NodeID string

	Shell  *ishell.Shell
	Config *env.Config
	Queue  *mqtt.Queue
	Client *mqtt.Client
}

const (
	shellKey       = "$shell"
	noNodePrompt   = "[none] > "
	requestTimeout = 3 * time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	nodeID     string

	commands = []*ishell.Cmd{
		&NodesCmd,
		&UseCmd,
		&UnuseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&nodeID, "node", nodeID, "Node to use.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		NodeID:      nodeID,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(noNodePrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustUseNode wraps a command func requiring a selected node.
func MustUseNode(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Client == nil {
			c.Err(fmt.Errorf("no node selected, see 'use'"))
			return
		}
		fn(c)
	}
}

// FormatNode prints node metadata for display.
func FormatNode(meta mqtt.NodeMeta) string {
	s := fmt.Sprintf("%s @0x%03x", meta.ID, meta.Address)
	if meta.Description != "" {
		s += ": " + meta.Description
	}
	return s
}

// PrintJSON prints v as a JSON line.
func PrintJSON(c *ishell.Context, v interface{}) error {
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return err
	}
	c.Println(string(out))
	return nil
}

// ConnectQueue connects to the broker once.
func (s *Shell) ConnectQueue() (*mqtt.Queue, error) {
	if s.Queue != nil {
		return s.Queue, nil
	}
	q, err := s.Config.NewQueue()
	if err != nil {
		return nil, err
	}
	if err := q.ConnectAndWait(); err != nil {
		return nil, fmt.Errorf("connect %s: %v", s.Config.MQTTBrokerURL, err)
	}
	s.Queue = q
	return q, nil
}

// DiscoverNodes lists nodes on the broker.
func (s *Shell) DiscoverNodes() ([]mqtt.NodeMeta, error) {
	q, err := s.ConnectQueue()
	if err != nil {
		return nil, err
	}
	return mqtt.Discover(context.TODO(), q, mqtt.DefaultDiscoverTimeout)
}

// SelectNode discovers nodes and asks for a choice.
func (s *Shell) SelectNode() (*mqtt.NodeMeta, error) {
	nodes, err := s.DiscoverNodes()
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	var index int
	if len(nodes) > 1 {
		if !s.Interactive {
			return nil, fmt.Errorf("more than 1 node discovered in non-interactive mode")
		}
		items := make([]string, len(nodes))
		for n, meta := range nodes {
			items[n] = FormatNode(meta)
		}
		index = s.Shell.MultiChoice(items, "Which node?")
		if index < 0 {
			return nil, nil
		}
	}
	return &nodes[index], nil
}

// Use selects the node for subsequent commands.
func (s *Shell) Use(id string) error {
	client, err := s.newClient(id)
	if err != nil {
		return err
	}
	s.Unuse()
	s.Client = client
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", id))
	return nil
}

// newClient opens a dedicated broker connection for the node, so closing
// it leaves the discovery queue open.
func (s *Shell) newClient(id string) (*mqtt.Client, error) {
	q, err := s.Config.NewQueue()
	if err != nil {
		return nil, err
	}
	client := mqtt.NewClient(q, id)
	client.Timeout = requestTimeout
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %v", s.Config.MQTTBrokerURL, err)
	}
	return client, nil
}

// Unuse drops the selected node.
func (s *Shell) Unuse() {
	if s.Client != nil {
		s.Client.Close()
		s.Client = nil
		s.Shell.SetPrompt(noNodePrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.NodeID != "" {
		if err := s.Use(s.NodeID); err != nil {
			log.Fatalf("use %q failed: %v", s.NodeID, err)
		}
	}
	defer s.Unuse()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// NodesCmd lists nodes on the broker.
	NodesCmd = ishell.Cmd{
		Name:    "nodes",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			nodes, err := s.DiscoverNodes()
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if nodes == nil {
					nodes = []mqtt.NodeMeta{}
				}
				PrintJSON(c, nodes)
				return
			}
			if len(nodes) == 0 {
				c.Println("No nodes found")
				return
			}
			for _, meta := range nodes {
				c.Println(FormatNode(meta))
			}
		},
	}

	// UseCmd selects a node.
	UseCmd = ishell.Cmd{
		Name:    "use",
		Aliases: []string{"u"},
		Help:    "[NODE]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			id := ""
			if len(c.Args) > 0 {
				id = c.Args[0]
			} else {
				meta, err := s.SelectNode()
				if err != nil {
					c.Err(err)
					return
				}
				if meta == nil {
					c.Err(fmt.Errorf("no node discovered"))
					return
				}
				id = meta.ID
			}
			if err := s.Use(id); err != nil {
				c.Err(err)
			}
		},
	}

	// UnuseCmd drops the selected node.
	UnuseCmd = ishell.Cmd{
		Name:    "unuse",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Unuse()
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.MustNewConfig()).Run(flag.Args()...)
}
