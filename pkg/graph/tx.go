package graph

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Tx buffers writes until commit; reads see committed data overlaid with
// the transaction's own pending changes.
type Tx struct {
	db      *DB
	id      uint64
	started time.Time

	mu           sync.Mutex
	state        TxState
	createdNodes map[uint64]*Node
	updatedNodes map[uint64]map[string]Value
	deletedNodes map[uint64]struct{}
	createdEdges map[uint64]*Edge
	deletedEdges map[uint64]struct{}
}

var _ Transaction = (*Tx)(nil)

func newTx(db *DB, id uint64) *Tx {
	return &Tx{
		db:           db,
		id:           id,
		started:      time.Now(),
		state:        TxActive,
		createdNodes: make(map[uint64]*Node),
		updatedNodes: make(map[uint64]map[string]Value),
		deletedNodes: make(map[uint64]struct{}),
		createdEdges: make(map[uint64]*Edge),
		deletedEdges: make(map[uint64]struct{}),
	}
}

// ID returns the transaction identifier
func (tx *Tx) ID() uint64 {
	return tx.id
}

// State returns the lifecycle state
func (tx *Tx) State() TxState {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

// Commit validates and applies the buffered changes atomically. On error
// the transaction stays active (unless it timed out) so it can be rolled back.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != TxActive {
		return ErrTransactionAlreadyEnded
	}

	if timeout := tx.db.settings.TxTimeout; timeout > 0 && time.Since(tx.started) > timeout {
		tx.finish(TxRolledBack)
		return ErrTransactionTimedOut
	}

	rec := tx.record()
	if !rec.empty() && tx.db.settings.ReadOnly {
		return ErrReadOnly
	}

	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseShutdown
	}

	for _, e := range rec.Edges {
		for _, endpoint := range []uint64{e.FromNodeID, e.ToNodeID} {
			if !tx.nodeVisibleLocked(endpoint) {
				return fmt.Errorf("edge %d endpoint: %w", e.ID, nodeNotFound(endpoint))
			}
		}
	}

	if !rec.empty() && db.wal != nil {
		if err := db.wal.append(rec); err != nil {
			return err
		}
	}

	db.apply(rec)
	tx.finish(TxCommitted)
	return nil
}

// Rollback discards the buffered changes. Rolling back a finished
// transaction is a no-op.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.state != TxActive {
		return nil
	}
	tx.finish(TxRolledBack)
	return nil
}

func (tx *Tx) finish(state TxState) {
	tx.state = state
	tx.createdNodes = nil
	tx.updatedNodes = nil
	tx.deletedNodes = nil
	tx.createdEdges = nil
	tx.deletedEdges = nil

	atomic.AddInt64(&tx.db.openTx, -1)
	if state == TxCommitted {
		atomic.AddUint64(&tx.db.committed, 1)
	} else {
		atomic.AddUint64(&tx.db.rolledBack, 1)
	}
}

func (tx *Tx) record() *commitRecord {
	rec := &commitRecord{
		TxID:       tx.id,
		NextNodeID: atomic.LoadUint64(&tx.db.nextNodeID),
		NextEdgeID: atomic.LoadUint64(&tx.db.nextEdgeID),
	}
	for _, n := range tx.createdNodes {
		rec.Nodes = append(rec.Nodes, n)
	}
	for _, e := range tx.createdEdges {
		rec.Edges = append(rec.Edges, e)
	}
	for id := range tx.deletedNodes {
		rec.DeletedNodes = append(rec.DeletedNodes, id)
	}
	for id := range tx.deletedEdges {
		rec.DeletedEdges = append(rec.DeletedEdges, id)
	}
	if len(tx.updatedNodes) > 0 {
		rec.Updates = tx.updatedNodes
	}
	sort.Slice(rec.Nodes, func(i, j int) bool { return rec.Nodes[i].ID < rec.Nodes[j].ID })
	sort.Slice(rec.Edges, func(i, j int) bool { return rec.Edges[i].ID < rec.Edges[j].ID })
	return rec
}

func (tx *Tx) checkActive() error {
	if tx.state != TxActive {
		return ErrTransactionNotActive
	}
	return nil
}

// nodeVisibleLocked reports whether id exists from this transaction's point
// of view. Callers hold tx.mu and at least a read lock on db.mu.
func (tx *Tx) nodeVisibleLocked(id uint64) bool {
	if _, ok := tx.createdNodes[id]; ok {
		return true
	}
	if _, ok := tx.deletedNodes[id]; ok {
		return false
	}
	_, ok := tx.db.nodes[id]
	return ok
}

func (tx *Tx) edgeVisibleLocked(e *Edge) bool {
	if _, ok := tx.deletedEdges[e.ID]; ok {
		return false
	}
	_, fromDeleted := tx.deletedNodes[e.FromNodeID]
	_, toDeleted := tx.deletedNodes[e.ToNodeID]
	return !fromDeleted && !toDeleted
}

// overlay returns a copy of a committed node with pending updates applied
func (tx *Tx) overlay(n *Node) *Node {
	c := n.clone()
	for k, v := range tx.updatedNodes[n.ID] {
		c.Properties[k] = v
	}
	return c
}

// CreateNode creates a node within the transaction
func (tx *Tx) CreateNode(labels []string, properties map[string]Value) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	node := &Node{
		ID:         tx.db.allocateNodeID(),
		Labels:     append([]string(nil), labels...),
		Properties: make(map[string]Value, len(properties)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for k, v := range properties {
		node.Properties[k] = v
	}

	tx.createdNodes[node.ID] = node
	return node.clone(), nil
}

// GetNode returns a copy of the node as seen by this transaction
func (tx *Tx) GetNode(id uint64) (*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	if n, ok := tx.createdNodes[id]; ok {
		return n.clone(), nil
	}
	if _, ok := tx.deletedNodes[id]; ok {
		return nil, nodeNotFound(id)
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	n, ok := tx.db.nodes[id]
	if !ok {
		return nil, nodeNotFound(id)
	}
	return tx.overlay(n), nil
}

// SetNodeProperties merges properties into the node
func (tx *Tx) SetNodeProperties(id uint64, properties map[string]Value) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return err
	}
	if n, ok := tx.createdNodes[id]; ok {
		for k, v := range properties {
			n.Properties[k] = v
		}
		return nil
	}

	tx.db.mu.RLock()
	visible := tx.nodeVisibleLocked(id)
	tx.db.mu.RUnlock()
	if !visible {
		return nodeNotFound(id)
	}

	updates, ok := tx.updatedNodes[id]
	if !ok {
		updates = make(map[string]Value, len(properties))
		tx.updatedNodes[id] = updates
	}
	for k, v := range properties {
		updates[k] = v
	}
	return nil
}

// DeleteNode deletes the node and every edge touching it
func (tx *Tx) DeleteNode(id uint64) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return err
	}

	for edgeID, e := range tx.createdEdges {
		if e.FromNodeID == id || e.ToNodeID == id {
			delete(tx.createdEdges, edgeID)
		}
	}

	if _, ok := tx.createdNodes[id]; ok {
		delete(tx.createdNodes, id)
		return nil
	}

	tx.db.mu.RLock()
	visible := tx.nodeVisibleLocked(id)
	tx.db.mu.RUnlock()
	if !visible {
		return nodeNotFound(id)
	}

	delete(tx.updatedNodes, id)
	tx.deletedNodes[id] = struct{}{}
	return nil
}

// CreateEdge creates a directed edge between two visible nodes
func (tx *Tx) CreateEdge(fromID, toID uint64, edgeType string, properties map[string]Value) (*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}

	tx.db.mu.RLock()
	fromOK, toOK := tx.nodeVisibleLocked(fromID), tx.nodeVisibleLocked(toID)
	tx.db.mu.RUnlock()
	if !fromOK {
		return nil, nodeNotFound(fromID)
	}
	if !toOK {
		return nil, nodeNotFound(toID)
	}

	edge := &Edge{
		ID:         tx.db.allocateEdgeID(),
		FromNodeID: fromID,
		ToNodeID:   toID,
		Type:       edgeType,
		Properties: make(map[string]Value, len(properties)),
		CreatedAt:  time.Now().Unix(),
	}
	for k, v := range properties {
		edge.Properties[k] = v
	}

	tx.createdEdges[edge.ID] = edge
	return edge.clone(), nil
}

// GetEdge returns a copy of the edge as seen by this transaction
func (tx *Tx) GetEdge(id uint64) (*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}
	if e, ok := tx.createdEdges[id]; ok {
		return e.clone(), nil
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	e, ok := tx.db.edges[id]
	if !ok || !tx.edgeVisibleLocked(e) {
		return nil, edgeNotFound(id)
	}
	return e.clone(), nil
}

// DeleteEdge deletes an edge
func (tx *Tx) DeleteEdge(id uint64) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return err
	}
	if _, ok := tx.createdEdges[id]; ok {
		delete(tx.createdEdges, id)
		return nil
	}

	tx.db.mu.RLock()
	e, ok := tx.db.edges[id]
	visible := ok && tx.edgeVisibleLocked(e)
	tx.db.mu.RUnlock()
	if !visible {
		return edgeNotFound(id)
	}

	tx.deletedEdges[id] = struct{}{}
	return nil
}

// NodesByLabel returns every visible node carrying label, ordered by ID
func (tx *Tx) NodesByLabel(label string) ([]*Node, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}

	var result []*Node
	tx.db.mu.RLock()
	for id := range tx.db.nodesByLabel[label] {
		if _, deleted := tx.deletedNodes[id]; deleted {
			continue
		}
		result = append(result, tx.overlay(tx.db.nodes[id]))
	}
	tx.db.mu.RUnlock()

	for _, n := range tx.createdNodes {
		if n.HasLabel(label) {
			result = append(result, n.clone())
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// OutgoingEdges returns the visible edges leaving nodeID, ordered by ID
func (tx *Tx) OutgoingEdges(nodeID uint64) ([]*Edge, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return nil, err
	}

	tx.db.mu.RLock()
	if !tx.nodeVisibleLocked(nodeID) {
		tx.db.mu.RUnlock()
		return nil, nodeNotFound(nodeID)
	}
	var result []*Edge
	for id := range tx.db.outgoing[nodeID] {
		e := tx.db.edges[id]
		if tx.edgeVisibleLocked(e) {
			result = append(result, e.clone())
		}
	}
	tx.db.mu.RUnlock()

	for _, e := range tx.createdEdges {
		if e.FromNodeID == nodeID {
			result = append(result, e.clone())
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// CountNodes returns the number of visible nodes
func (tx *Tx) CountNodes() (int, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return 0, err
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	count := len(tx.db.nodes) + len(tx.createdNodes)
	for id := range tx.deletedNodes {
		if _, ok := tx.db.nodes[id]; ok {
			count--
		}
	}
	return count, nil
}

// CountEdges returns the number of visible edges
func (tx *Tx) CountEdges() (int, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkActive(); err != nil {
		return 0, err
	}

	tx.db.mu.RLock()
	defer tx.db.mu.RUnlock()

	count := len(tx.createdEdges)
	if len(tx.deletedNodes) == 0 && len(tx.deletedEdges) == 0 {
		return count + len(tx.db.edges), nil
	}
	for _, e := range tx.db.edges {
		if tx.edgeVisibleLocked(e) {
			count++
		}
	}
	return count, nil
}
