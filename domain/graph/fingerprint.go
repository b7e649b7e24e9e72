package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprints cover exactly the fields that are persisted. Two lists with the
// same fingerprint are structurally equal for save purposes; element order is
// significant.

type nodeProjection struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Position       `json:"position"`
	Data     map[string]any `json:"data"`
}

type edgeProjection struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	Label        string `json:"label"`
	SourceHandle string `json:"sourceHandle"`
}

func projectNode(n Node) nodeProjection {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	return nodeProjection{ID: n.ID, Type: n.Type, Position: n.Position, Data: data}
}

// NodesFingerprint returns a stable digest of a node list.
func NodesFingerprint(nodes []Node) string {
	proj := make([]nodeProjection, len(nodes))
	for i, n := range nodes {
		proj[i] = projectNode(n)
	}
	return checksum(proj)
}

// NodeFingerprint returns a stable digest of a single node.
func NodeFingerprint(n Node) string {
	return checksum(projectNode(n))
}

// EdgesFingerprint returns a stable digest of an edge list.
func EdgesFingerprint(edges []Edge) string {
	proj := make([]edgeProjection, len(edges))
	for i, e := range edges {
		proj[i] = edgeProjection(e)
	}
	return checksum(proj)
}

// EqualNodes reports whether two node lists are structurally equal.
func EqualNodes(a, b []Node) bool {
	return NodesFingerprint(a) == NodesFingerprint(b)
}

// EqualEdges reports whether two edge lists are structurally equal.
func EqualEdges(a, b []Edge) bool {
	return EdgesFingerprint(a) == EdgesFingerprint(b)
}

// checksum hashes the canonical JSON form of v. encoding/json sorts map keys,
// so nested data hashes the same regardless of insertion order.
func checksum(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Only graphs that fail Validate get here, such as NaN coordinates.
		// Their digest is stable for plain values; pointers and funcs in data
		// hash by address.
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
