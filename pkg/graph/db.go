// Package graph is a small embedded property-graph engine. Every read and
// write goes through a Transaction; committed transactions are appended to
// a write-ahead log and replayed when the database is reopened.
package graph

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// Operations are the graph reads and writes available inside a transaction.
type Operations interface {
	CreateNode(labels []string, properties map[string]Value) (*Node, error)
	GetNode(id uint64) (*Node, error)
	SetNodeProperties(id uint64, properties map[string]Value) error
	DeleteNode(id uint64) error
	CreateEdge(fromID, toID uint64, edgeType string, properties map[string]Value) (*Edge, error)
	GetEdge(id uint64) (*Edge, error)
	DeleteEdge(id uint64) error
	NodesByLabel(label string) ([]*Node, error)
	OutgoingEdges(nodeID uint64) ([]*Edge, error)
	CountNodes() (int, error)
	CountEdges() (int, error)
}

// Transaction is a native transaction handle.
type Transaction interface {
	Operations
	ID() uint64
	State() TxState
	Commit() error
	Rollback() error
}

// Database is a native database handle.
type Database interface {
	Begin(ctx context.Context) (Transaction, error)
	Shutdown() error
}

// DB is an opened embedded database
type DB struct {
	dir      string
	settings Settings

	mu           sync.RWMutex
	nodes        map[uint64]*Node
	edges        map[uint64]*Edge
	nodesByLabel map[string]map[uint64]struct{}
	outgoing     map[uint64]map[uint64]struct{}
	incoming     map[uint64]map[uint64]struct{}
	closed       bool

	nextNodeID uint64 // atomic
	nextEdgeID uint64 // atomic
	nextTxID   uint64 // atomic

	committed  uint64 // atomic
	rolledBack uint64 // atomic
	openTx     int64  // atomic
	replayed   uint64

	wal *wal
}

var _ Database = (*DB)(nil)

// Open opens the database in dir with default settings
func Open(dir string) (*DB, error) {
	return NewBuilder(dir).Open()
}

func open(dir string, settings Settings) (*DB, error) {
	if err := os.MkdirAll(dir, dirPermission); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db := &DB{
		dir:          dir,
		settings:     settings,
		nodes:        make(map[uint64]*Node),
		edges:        make(map[uint64]*Edge),
		nodesByLabel: make(map[string]map[uint64]struct{}),
		outgoing:     make(map[uint64]map[uint64]struct{}),
		incoming:     make(map[uint64]map[uint64]struct{}),
	}

	replayed, err := replayWAL(dir, !settings.ReadOnly, db.apply)
	if err != nil {
		return nil, fmt.Errorf("failed to replay WAL: %w", err)
	}
	db.replayed = replayed

	if settings.WALEnabled && !settings.ReadOnly {
		w, err := openWAL(dir, settings)
		if err != nil {
			return nil, err
		}
		db.wal = w
	}

	return db, nil
}

// Path returns the directory backing the database
func (db *DB) Path() string {
	return db.dir
}

// Settings returns the settings the database was opened with
func (db *DB) Settings() Settings {
	return db.settings
}

// Begin starts a new transaction
func (db *DB) Begin(ctx context.Context) (Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	db.mu.RLock()
	closed := db.closed
	db.mu.RUnlock()
	if closed {
		return nil, ErrDatabaseShutdown
	}

	atomic.AddInt64(&db.openTx, 1)
	return newTx(db, atomic.AddUint64(&db.nextTxID, 1)), nil
}

// Shutdown closes the WAL and rejects further transactions. Transactions
// still open are left to fail on commit.
func (db *DB) Shutdown() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrDatabaseShutdown
	}
	db.closed = true

	if db.wal != nil {
		if err := db.wal.close(); err != nil {
			return fmt.Errorf("failed to close WAL: %w", err)
		}
	}
	return nil
}

// Stats returns a snapshot of database counters
func (db *DB) Stats() Stats {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s := Stats{
		Nodes:        len(db.nodes),
		Edges:        len(db.edges),
		Committed:    atomic.LoadUint64(&db.committed),
		RolledBack:   atomic.LoadUint64(&db.rolledBack),
		OpenTx:       atomic.LoadInt64(&db.openTx),
		ReplayedTxns: db.replayed,
	}
	if db.wal != nil {
		s.WALRecords = db.wal.count()
	}
	return s
}

func (db *DB) allocateNodeID() uint64 {
	return atomic.AddUint64(&db.nextNodeID, 1)
}

func (db *DB) allocateEdgeID() uint64 {
	return atomic.AddUint64(&db.nextEdgeID, 1)
}

// apply installs a commit record. Callers hold db.mu for writing, except
// during replay when the database is not yet shared.
func (db *DB) apply(rec *commitRecord) {
	for _, id := range rec.DeletedEdges {
		db.removeEdge(id)
	}
	for _, id := range rec.DeletedNodes {
		db.removeNode(id)
	}
	for _, n := range rec.Nodes {
		db.nodes[n.ID] = n
		for _, label := range n.Labels {
			addToSet(db.nodesByLabel, label, n.ID)
		}
	}
	for id, props := range rec.Updates {
		node, ok := db.nodes[id]
		if !ok {
			continue
		}
		for k, v := range props {
			node.Properties[k] = v
		}
	}
	for _, e := range rec.Edges {
		db.edges[e.ID] = e
		addToSet(db.outgoing, e.FromNodeID, e.ID)
		addToSet(db.incoming, e.ToNodeID, e.ID)
	}

	if cur := atomic.LoadUint64(&db.nextNodeID); rec.NextNodeID > cur {
		atomic.StoreUint64(&db.nextNodeID, rec.NextNodeID)
	}
	if cur := atomic.LoadUint64(&db.nextEdgeID); rec.NextEdgeID > cur {
		atomic.StoreUint64(&db.nextEdgeID, rec.NextEdgeID)
	}
	if cur := atomic.LoadUint64(&db.nextTxID); rec.TxID > cur {
		atomic.StoreUint64(&db.nextTxID, rec.TxID)
	}
}

func (db *DB) removeEdge(id uint64) {
	e, ok := db.edges[id]
	if !ok {
		return
	}
	delete(db.edges, id)
	removeFromSet(db.outgoing, e.FromNodeID, id)
	removeFromSet(db.incoming, e.ToNodeID, id)
}

// removeNode deletes a node together with every edge touching it
func (db *DB) removeNode(id uint64) {
	n, ok := db.nodes[id]
	if !ok {
		return
	}
	for edgeID := range db.outgoing[id] {
		db.removeEdge(edgeID)
	}
	for edgeID := range db.incoming[id] {
		db.removeEdge(edgeID)
	}
	for _, label := range n.Labels {
		removeFromSet(db.nodesByLabel, label, id)
	}
	delete(db.nodes, id)
	delete(db.outgoing, id)
	delete(db.incoming, id)
}

func addToSet[K comparable](m map[K]map[uint64]struct{}, key K, id uint64) {
	set, ok := m[key]
	if !ok {
		set = make(map[uint64]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

func removeFromSet[K comparable](m map[K]map[uint64]struct{}, key K, id uint64) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
	}
}
