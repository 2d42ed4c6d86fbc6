package graph

import (
	"encoding/binary"
	"errors"
)

// ValueType tags the encoding of a property value
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeInt
)

// ErrValueType is returned when a property is read as the wrong type
var ErrValueType = errors.New("property value has a different type")

// Value is a property value. Data holds the raw string bytes or a
// little-endian int64, and is what the WAL persists.
type Value struct {
	Type ValueType `json:"t"`
	Data []byte    `json:"d"`
}

// StringValue wraps s as a property value
func StringValue(s string) Value {
	return Value{Type: TypeString, Data: []byte(s)}
}

// IntValue wraps i as a property value
func IntValue(i int64) Value {
	return Value{Type: TypeInt, Data: binary.LittleEndian.AppendUint64(nil, uint64(i))}
}

func (v Value) AsString() (string, error) {
	if v.Type != TypeString {
		return "", ErrValueType
	}
	return string(v.Data), nil
}

func (v Value) AsInt() (int64, error) {
	if v.Type != TypeInt || len(v.Data) != 8 {
		return 0, ErrValueType
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), nil
}

// Node is a labelled vertex with properties
type Node struct {
	ID         uint64           `json:"id"`
	Labels     []string         `json:"labels"`
	Properties map[string]Value `json:"properties"`
	CreatedAt  int64            `json:"created_at"`
	UpdatedAt  int64            `json:"updated_at"`
}

// HasLabel reports whether the node carries label
func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n *Node) clone() *Node {
	c := *n
	c.Labels = append([]string(nil), n.Labels...)
	c.Properties = make(map[string]Value, len(n.Properties))
	for k, v := range n.Properties {
		c.Properties[k] = v
	}
	return &c
}

// Edge is a typed, directed relationship between two nodes
type Edge struct {
	ID         uint64           `json:"id"`
	FromNodeID uint64           `json:"from"`
	ToNodeID   uint64           `json:"to"`
	Type       string           `json:"type"`
	Properties map[string]Value `json:"properties"`
	CreatedAt  int64            `json:"created_at"`
}

func (e *Edge) clone() *Edge {
	c := *e
	c.Properties = make(map[string]Value, len(e.Properties))
	for k, v := range e.Properties {
		c.Properties[k] = v
	}
	return &c
}

// TxState is the lifecycle state of a native transaction
type TxState uint8

const (
	TxActive TxState = iota
	TxCommitted
	TxRolledBack
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitted:
		return "committed"
	case TxRolledBack:
		return "rolledBack"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time summary of a database
type Stats struct {
	Nodes        int
	Edges        int
	Committed    uint64
	RolledBack   uint64
	OpenTx       int64
	WALRecords   uint64
	ReplayedTxns uint64
}
