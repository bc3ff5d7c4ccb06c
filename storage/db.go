package storage

import (
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
)

// Database is a generic interface for the key-value store backing the state
// trie. Raw Put/Get operate on the same store the trie nodes live in, which
// lets callers persist out-of-trie metadata such as the latest committed root.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Close()
	// TrieDB exposes the trie database handle layered over this store.
	TrieDB() *triedb.Database
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	kv     *memorydb.Database
	trieDB *triedb.Database
}

func NewMemDB() *MemDB {
	kv := memorydb.New()
	return &MemDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	return db.kv.Put(key, value)
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	return db.kv.Get(key)
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	_ = db.kv.Close()
}

func (db *MemDB) TrieDB() *triedb.Database {
	return db.trieDB
}

// --- Persistent DB ---

const (
	levelDBCache   = 128
	levelDBHandles = 1024
)

// LevelDB is a persistent key-value store.
type LevelDB struct {
	kv     ethdb.KeyValueStore
	trieDB *triedb.Database
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := leveldb.New(path, levelDBCache, levelDBHandles, "launchpad", false)
	if err != nil {
		return nil, err
	}
	return &LevelDB{
		kv:     kv,
		trieDB: triedb.NewDatabase(rawdb.NewDatabase(kv), triedb.HashDefaults),
	}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.kv.Put(key, value)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	return ldb.kv.Get(key)
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	_ = ldb.kv.Close()
}

func (ldb *LevelDB) TrieDB() *triedb.Database {
	return ldb.trieDB
}
