// Package packer implements the structured binary serialization of the
// row and node blocks described in spec §6: row blocks are a positional list of
// Values; node blocks are a tagged {kind, node id, items} record whose
// items are either LeafItem (key, heap id) or InternalItem (key, child
// node id) pairs.
//
// The original Python implementation (gertrude/lib/packer.py) builds this
// exact shape on top of the msgpack wire format, using msgpack ExtType
// codes 1 (Value), 2 (LeafItem), and 3 (InternalItem). This package
// keeps the same logical shape without per-item extension tags (a node's
// kind byte decides its item type, and every Value is stored as its
// length-prefixed raw form) and, in the teacher's own
// idiom (see internal/core/messages_write.go and
// internal/structures/btreev2_write.go in the teacher for the pattern of
// hand-rolled, length-prefixed tagged binary records), encodes it directly
// with encoding/binary rather than through a third-party messagepack
// library: every field here has a statically known shape (a Value's raw
// form is self-describing via its own header byte, and both item kinds are
// a fixed (key, int64) pair), so a general-purpose dynamic-typing
// serializer buys nothing a fixed binary layout doesn't already give, and
// no example in the retrieved pack imports a messagepack library directly
// (see DESIGN.md).
package packer

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/value"
)

// NodeKind tags whether a B+-tree node block is a leaf or internal node
// (spec §3 "Index node").
type NodeKind byte

const (
	KindLeaf     NodeKind = 'L'
	KindInternal NodeKind = 'I'
)

func (k NodeKind) String() string { return string(rune(k)) }

// LeafItem is a (key, heap_id) pair stored in a LEAF node (spec §3).
type LeafItem struct {
	Key    value.Value
	HeapID int64
}

// InternalItem is a (key, child_node_id) pair stored in an INTERNAL node
// (spec §3).
type InternalItem struct {
	Key     value.Value
	ChildID int64
}

// Node is the decoded form of a B+-tree node block.
type Node struct {
	Kind      NodeKind
	NodeID    int64
	Leaves    []LeafItem
	Internals []InternalItem
}

func putUint32Prefixed(buf []byte, raw []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, raw...)
}

func readUint32Prefixed(data []byte) (raw []byte, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, errors.New("packer: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, errors.New("packer: truncated payload")
	}
	return data[:n], data[n:], nil
}

// EncodeRow packs a row's positional Value array (spec §6 "Row block
// format").
func EncodeRow(vals []value.Value) []byte {
	buf := make([]byte, 0, 4+len(vals)*9)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(vals)))
	buf = append(buf, countBuf[:]...)
	for i := range vals {
		buf = putUint32Prefixed(buf, vals[i].Raw())
	}
	return buf
}

// DecodeRow unpacks a row block produced by EncodeRow.
func DecodeRow(data []byte) ([]value.Value, error) {
	if len(data) < 4 {
		return nil, errors.New("packer: truncated row block")
	}
	count := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	out := make([]value.Value, 0, count)
	for i := uint32(0); i < count; i++ {
		raw, rest, err := readUint32Prefixed(data)
		if err != nil {
			return nil, errors.Wrap(err, "packer: decoding row")
		}
		v, err := value.Decode(raw)
		if err != nil {
			return nil, errors.Wrap(err, "packer: decoding row value")
		}
		out = append(out, v)
		data = rest
	}
	return out, nil
}

// EncodeNode packs a B+-tree node block (spec §6 "Node block format").
func EncodeNode(n Node) ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(n.Kind))

	var idBuf [8]byte
	binary.BigEndian.PutUint64(idBuf[:], uint64(n.NodeID))
	buf = append(buf, idBuf[:]...)

	switch n.Kind {
	case KindLeaf:
		var countBuf [4]byte
		binary.BigEndian.PutUint32(countBuf[:], uint32(len(n.Leaves)))
		buf = append(buf, countBuf[:]...)
		for i := range n.Leaves {
			buf = putUint32Prefixed(buf, n.Leaves[i].Key.Raw())
			var hBuf [8]byte
			binary.BigEndian.PutUint64(hBuf[:], uint64(n.Leaves[i].HeapID))
			buf = append(buf, hBuf[:]...)
		}
	case KindInternal:
		var countBuf [4]byte
		binary.BigEndian.PutUint32(countBuf[:], uint32(len(n.Internals)))
		buf = append(buf, countBuf[:]...)
		for i := range n.Internals {
			buf = putUint32Prefixed(buf, n.Internals[i].Key.Raw())
			var cBuf [8]byte
			binary.BigEndian.PutUint64(cBuf[:], uint64(n.Internals[i].ChildID))
			buf = append(buf, cBuf[:]...)
		}
	default:
		return nil, errors.Errorf("packer: unknown node kind %q", byte(n.Kind))
	}
	return buf, nil
}

// DecodeNode unpacks a node block produced by EncodeNode.
func DecodeNode(data []byte) (Node, error) {
	if len(data) < 1+8+4 {
		return Node{}, errors.New("packer: truncated node block")
	}
	kind := NodeKind(data[0])
	nodeID := int64(binary.BigEndian.Uint64(data[1:9]))
	count := binary.BigEndian.Uint32(data[9:13])
	data = data[13:]

	n := Node{Kind: kind, NodeID: nodeID}
	switch kind {
	case KindLeaf:
		n.Leaves = make([]LeafItem, 0, count)
		for i := uint32(0); i < count; i++ {
			raw, rest, err := readUint32Prefixed(data)
			if err != nil {
				return Node{}, errors.Wrap(err, "packer: decoding leaf item key")
			}
			k, err := value.Decode(raw)
			if err != nil {
				return Node{}, errors.Wrap(err, "packer: decoding leaf item value")
			}
			if len(rest) < 8 {
				return Node{}, errors.New("packer: truncated heap id")
			}
			heapID := int64(binary.BigEndian.Uint64(rest[:8]))
			n.Leaves = append(n.Leaves, LeafItem{Key: k, HeapID: heapID})
			data = rest[8:]
		}
	case KindInternal:
		n.Internals = make([]InternalItem, 0, count)
		for i := uint32(0); i < count; i++ {
			raw, rest, err := readUint32Prefixed(data)
			if err != nil {
				return Node{}, errors.Wrap(err, "packer: decoding internal item key")
			}
			k, err := value.Decode(raw)
			if err != nil {
				return Node{}, errors.Wrap(err, "packer: decoding internal item value")
			}
			if len(rest) < 8 {
				return Node{}, errors.New("packer: truncated child id")
			}
			childID := int64(binary.BigEndian.Uint64(rest[:8]))
			n.Internals = append(n.Internals, InternalItem{Key: k, ChildID: childID})
			data = rest[8:]
		}
	default:
		return Node{}, errors.Errorf("packer: unknown node kind %q", byte(kind))
	}
	return n, nil
}
