// Package mqtt bridges IEBus nodes over an MQTT broker.
//
// A node publishes received frames on "<node>/rx", accepts transmit
// requests on "<node>/tx" and answers them on "<node>/txres". Its
// metadata is retained on "<node>/meta" and cleared by a will when the
// node goes away. Topics are relative to the prefix in the broker URL,
// e.g. mqtt://localhost:1883/iebus/.
package mqtt

import (
	"net/url"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler is the callback when a message is received.
type Handler func(topic string, payload []byte)

// ConnectHandler is called on connect and disconnect.
type ConnectHandler func(*Queue)

// Queue wraps a paho client with a topic prefix and local fan-out of
// subscriptions. Each distinct filter is subscribed on the broker once.
type Queue struct {
	Client       paho.Client
	TopicPrefix  string
	OnConnect    ConnectHandler
	OnDisconnect ConnectHandler

	lock sync.RWMutex
	subs map[string][]*Subscription
}

// Subscription is a handler registered on a topic filter.
type Subscription struct {
	// Token is the broker subscription token, nil if the filter was
	// already subscribed.
	Token paho.Token

	queue   *Queue
	filter  string
	handler Handler
}

// MatchTopic reports whether topic matches the filter. "+" matches one
// level and a trailing "#" matches any remaining levels.
func MatchTopic(topic, filter string) bool {
	levels, patterns := strings.Split(topic, "/"), strings.Split(filter, "/")
	for i, pattern := range patterns {
		if pattern == "#" && i == len(patterns)-1 {
			return true
		}
		if i >= len(levels) {
			return false
		}
		if pattern != "+" && pattern != levels[i] {
			return false
		}
	}
	return len(levels) == len(patterns)
}

// ClientOptionsFromURL creates client options from a broker URL and
// returns the topic prefix in its path. Scheme mqtt maps to tcp; the
// client-id query parameter sets the client ID.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}
	opts := paho.NewClientOptions().
		AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// NewQueue creates a Queue, installing its connection handlers on options.
func NewQueue(options *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix, subs: make(map[string][]*Subscription)}
	options.SetOnConnectHandler(q.handleConnect)
	options.SetConnectionLostHandler(q.handleConnectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueFromURL creates a Queue from a broker URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, prefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewQueue(opts, prefix), nil
}

// Connect starts connecting.
func (q *Queue) Connect() paho.Token {
	return q.Client.Connect()
}

// ConnectAndWait connects and waits for the result.
func (q *Queue) ConnectAndWait() error {
	token := q.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(250)
	return nil
}

// Sub registers handler on a topic filter.
func (q *Queue) Sub(filter string, handler Handler) *Subscription {
	sub := &Subscription{queue: q, filter: filter, handler: handler}
	q.lock.Lock()
	first := len(q.subs[filter]) == 0
	q.subs[filter] = append(q.subs[filter], sub)
	q.lock.Unlock()
	if first {
		glog.V(2).Infof("SUB %q", q.TopicPrefix+filter)
		sub.Token = q.Client.Subscribe(q.TopicPrefix+filter, 0, q.handleMessage)
	}
	return sub
}

// Pub publishes with QoS 0.
func (q *Queue) Pub(topic string, payload []byte) paho.Token {
	return q.PubWith(topic, payload, 0, false)
}

// PubWith publishes with QoS and retain settings.
func (q *Queue) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	return q.Client.Publish(q.TopicPrefix+topic, qos, retain, payload)
}

// Resubscribe subscribes all registered filters again, after a reconnect.
func (q *Queue) Resubscribe() paho.Token {
	filters := make(map[string]byte)
	q.lock.RLock()
	for filter := range q.subs {
		filters[q.TopicPrefix+filter] = 0
	}
	q.lock.RUnlock()
	if len(filters) == 0 {
		return &paho.DummyToken{}
	}
	for filter := range filters {
		glog.V(2).Infof("SUB %q", filter)
	}
	return q.Client.SubscribeMultiple(filters, q.handleMessage)
}

func (q *Queue) handleConnect(paho.Client) {
	glog.Info("MQTT connected")
	q.Resubscribe()
	if h := q.OnConnect; h != nil {
		h(q)
	}
}

func (q *Queue) handleConnectionLost(_ paho.Client, err error) {
	glog.Warningf("MQTT connection lost: %v", err)
	if h := q.OnDisconnect; h != nil {
		h(q)
	}
}

func (q *Queue) handleMessage(_ paho.Client, msg paho.Message) {
	q.deliver(msg.Topic(), msg.Payload())
}

// deliver dispatches a message with a full topic to matching handlers.
func (q *Queue) deliver(topic string, payload []byte) {
	if !strings.HasPrefix(topic, q.TopicPrefix) {
		return
	}
	glog.V(4).Infof("RCV %q", topic)
	topic = topic[len(q.TopicPrefix):]
	var handlers []Handler
	q.lock.RLock()
	for filter, subs := range q.subs {
		if !MatchTopic(topic, filter) {
			continue
		}
		for _, sub := range subs {
			handlers = append(handlers, sub.handler)
		}
	}
	q.lock.RUnlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

// Close removes the handler, unsubscribing the filter from the broker
// when it was the last one.
func (s *Subscription) Close() error {
	q := s.queue
	var unsub bool
	q.lock.Lock()
	subs := q.subs[s.filter]
	for i, sub := range subs {
		if sub == s {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if unsub = len(subs) == 0; unsub {
		delete(q.subs, s.filter)
	} else {
		q.subs[s.filter] = subs
	}
	q.lock.Unlock()
	if !unsub {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", q.TopicPrefix+s.filter)
	token := q.Client.Unsubscribe(q.TopicPrefix + s.filter)
	token.Wait()
	return token.Error()
}
