package mqtt

import (
	"encoding/json"
	"strings"
)

// Topic suffixes under a node.
const (
	SuffixRx       = "/rx"
	SuffixTx       = "/tx"
	SuffixTxResult = "/txres"
	SuffixMeta     = "/meta"
)

// RxTopic carries frames received by the node.
func RxTopic(nodeID string) string { return nodeID + SuffixRx }

// TxTopic carries transmit requests for the node.
func TxTopic(nodeID string) string { return nodeID + SuffixTx }

// TxResultTopic carries transmit results from the node.
func TxResultTopic(nodeID string) string { return nodeID + SuffixTxResult }

// MetaTopic carries the retained node metadata.
func MetaTopic(nodeID string) string { return nodeID + SuffixMeta }

// NodeIDFromTopic extracts the node ID of a node topic.
func NodeIDFromTopic(topic string) (string, bool) {
	pos := strings.IndexByte(topic, '/')
	if pos <= 0 {
		return "", false
	}
	return topic[:pos], true
}

// NodeMeta describes a node on the broker.
type NodeMeta struct {
	ID          string            `json:"id"`
	Address     uint16            `json:"address"`
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// ParseNodeMeta decodes the retained metadata. An empty payload means the
// node is gone and gives ok false.
func ParseNodeMeta(payload []byte) (meta NodeMeta, ok bool, err error) {
	if len(payload) == 0 {
		return meta, false, nil
	}
	if err = json.Unmarshal(payload, &meta); err != nil {
		return meta, false, err
	}
	return meta, true, nil
}
