// Package vectorstore implements the embedded vector store (C9): a
// pure-Go HNSW graph of embedding vectors, each row carrying a denormalized
// copy of its chunk's metadata, per §4.9.
package vectorstore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"docsmcp/internal/errs"
)

// Record is one vector row: its embedding plus the denormalized metadata
// carried alongside it so search results don't require a metadata-store
// round trip.
type Record struct {
	VectorID    string
	Vector      []float32
	SiteID      int64
	PageTitle   string
	PageURL     string
	HeadingPath string
	Content     string
	TokenCount  int
	ChunkIndex  int
	CreatedAt   time.Time
}

// SearchResult is one nearest-neighbor hit. Record is embedded so callers
// can read hit.Content, hit.SiteID, etc. directly.
type SearchResult struct {
	Record
	Distance   float32
	Similarity float32
}

type diskMetadata struct {
	IDMap      map[string]uint64
	KeyMap     map[uint64]string
	NextKey    uint64
	Dimensions int
	Records    map[string]Record
}

// Store is a single-process, disk-backed HNSW vector index.
type Store struct {
	mu   sync.RWMutex
	dir  string
	dim  int
	graph *hnsw.Graph[uint64]

	idMap   map[string]uint64
	keyMap  map[uint64]string
	records map[string]Record
	nextKey uint64
}

const (
	indexFileName = "index.hnsw"
	metaFileName  = "index.meta"
)

// Open loads an existing index from dir, or starts a fresh empty one. On
// corruption (substring match on "corrupt"|"invalid"|"malformed"|"schema"
// from the underlying decode error) the directory is renamed to a
// *.corrupted_backup sibling and a fresh empty store is returned.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindStore, "create vector store directory", err)
	}

	s := newEmptyStore(dir, 0)
	err := s.load()
	if err == nil {
		return s, nil
	}
	if os.IsNotExist(err) {
		return s, nil
	}
	if isCorruption(err) {
		backup := dir + ".corrupted_backup"
		_ = os.RemoveAll(backup)
		if renameErr := os.Rename(dir, backup); renameErr != nil {
			return nil, errs.Wrap(errs.KindStoreCorrupt, "quarantine corrupt vector store", renameErr)
		}
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return nil, errs.Wrap(errs.KindStore, "recreate vector store directory", mkErr)
		}
		return newEmptyStore(dir, 0), nil
	}
	return nil, err
}

func newEmptyStore(dir string, dim int) *Store {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	return &Store{
		dir:     dir,
		dim:     dim,
		graph:   graph,
		idMap:   map[string]uint64{},
		keyMap:  map[uint64]string{},
		records: map[string]Record{},
	}
}

func isCorruption(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"corrupt", "invalid", "malformed", "schema"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func (s *Store) load() error {
	metaPath := filepath.Join(s.dir, metaFileName)
	f, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return errs.Wrap(errs.KindStoreCorrupt, "open vector store metadata", err)
	}
	defer f.Close()

	var meta diskMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return errs.Wrap(errs.KindStoreCorrupt, "decode vector store metadata", err)
	}

	indexPath := filepath.Join(s.dir, indexFileName)
	idxFile, err := os.Open(indexPath)
	if err != nil {
		return errs.Wrap(errs.KindStoreCorrupt, "open vector store index", err)
	}
	defer idxFile.Close()

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	if err := graph.Import(bufio.NewReader(idxFile)); err != nil {
		return errs.Wrap(errs.KindStoreCorrupt, "import vector store graph", err)
	}

	s.graph = graph
	s.idMap = meta.IDMap
	s.keyMap = meta.KeyMap
	s.nextKey = meta.NextKey
	s.dim = meta.Dimensions
	s.records = meta.Records
	return nil
}

// save persists the graph and metadata to dir via a temp-file-then-rename.
func (s *Store) save() error {
	indexPath := filepath.Join(s.dir, indexFileName)
	tmpIndex := indexPath + ".tmp"
	f, err := os.Create(tmpIndex)
	if err != nil {
		return errs.Wrap(errs.KindStore, "create vector index temp file", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpIndex)
		return errs.Wrap(errs.KindStore, "export vector index", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpIndex)
		return errs.Wrap(errs.KindStore, "close vector index temp file", err)
	}
	if err := os.Rename(tmpIndex, indexPath); err != nil {
		os.Remove(tmpIndex)
		return errs.Wrap(errs.KindStore, "rename vector index", err)
	}

	metaPath := filepath.Join(s.dir, metaFileName)
	tmpMeta := metaPath + ".tmp"
	mf, err := os.Create(tmpMeta)
	if err != nil {
		return errs.Wrap(errs.KindStore, "create vector metadata temp file", err)
	}
	meta := diskMetadata{IDMap: s.idMap, KeyMap: s.keyMap, NextKey: s.nextKey, Dimensions: s.dim, Records: s.records}
	if err := gob.NewEncoder(mf).Encode(meta); err != nil {
		mf.Close()
		os.Remove(tmpMeta)
		return errs.Wrap(errs.KindStore, "encode vector metadata", err)
	}
	if err := mf.Close(); err != nil {
		os.Remove(tmpMeta)
		return errs.Wrap(errs.KindStore, "close vector metadata temp file", err)
	}
	return os.Rename(tmpMeta, metaPath)
}

// Upsert inserts or replaces records. If the store's recorded dimension
// differs from an incoming vector's length, the table is dropped and
// recreated with the new dimension (the existing invariant: the vector
// store only ever holds one dimension at a time).
func (s *Store) Upsert(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newDim := len(records[0].Vector)
	if s.dim != 0 && s.dim != newDim {
		s.recreateLocked(newDim)
	} else if s.dim == 0 {
		s.dim = newDim
	}

	for _, r := range records {
		if len(r.Vector) != s.dim {
			return errs.New(errs.KindDimensionMismatch, fmt.Sprintf("record %s has dimension %d, store expects %d", r.VectorID, len(r.Vector), s.dim))
		}

		if existingKey, ok := s.idMap[r.VectorID]; ok {
			delete(s.keyMap, existingKey)
			delete(s.idMap, r.VectorID)
		}

		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		normalize(vec)

		key := s.nextKey
		s.nextKey++
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[r.VectorID] = key
		s.keyMap[key] = r.VectorID
		s.records[r.VectorID] = r
	}

	return s.save()
}

// recreateLocked drops the graph and all records, starting over at dim.
// Caller must hold s.mu.
func (s *Store) recreateLocked(dim int) {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	s.graph = graph
	s.idMap = map[string]uint64{}
	s.keyMap = map[uint64]string{}
	s.records = map[string]Record{}
	s.nextKey = 0
	s.dim = dim
}

// Reset explicitly drops and recreates the store at a new dimension,
// independent of any Upsert call — the operator-driven path for a
// deliberate re-embedding migration.
func (s *Store) Reset(dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recreateLocked(dim)
	return s.save()
}

// Search returns the k nearest records to query, optionally restricted to
// siteFilter, ordered by ascending distance.
func (s *Store) Search(query []float32, k int, siteFilter *int64) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim != 0 && len(query) != s.dim {
		return nil, errs.New(errs.KindDimensionMismatch, fmt.Sprintf("query dimension %d does not match store dimension %d", len(query), s.dim))
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	// Over-fetch to compensate for site-filter exclusion and lazily deleted
	// nodes still resident in the graph.
	fetch := k * 4
	if fetch < k+16 {
		fetch = k + 16
	}
	nodes := s.graph.Search(q, fetch)

	var out []SearchResult
	for _, node := range nodes {
		vectorID, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		rec, ok := s.records[vectorID]
		if !ok {
			continue
		}
		if siteFilter != nil && rec.SiteID != *siteFilter {
			continue
		}
		dist := s.graph.Distance(q, node.Value)
		out = append(out, SearchResult{Record: rec, Distance: dist, Similarity: 1 - dist})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

// DeleteSite removes every row with the given site id.
func (s *Store) DeleteSite(siteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for vectorID, rec := range s.records {
		if rec.SiteID != siteID {
			continue
		}
		if key, ok := s.idMap[vectorID]; ok {
			delete(s.keyMap, key)
			delete(s.idMap, vectorID)
		}
		delete(s.records, vectorID)
	}
	return s.save()
}

// DeleteVector removes a single vector by its vector_id. A no-op if the id
// is not present.
func (s *Store) DeleteVector(vectorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.idMap[vectorID]; ok {
		delete(s.keyMap, key)
		delete(s.idMap, vectorID)
	}
	delete(s.records, vectorID)
	return s.save()
}

// Count returns the number of live (non-lazily-deleted) vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Optimize persists the current in-memory state; coder/hnsw has no compact
// operation, so this is the closest equivalent to a vacuum.
func (s *Store) Optimize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

// CreateVectorIndex is a no-op: the HNSW graph IS the index, built
// incrementally on every Upsert. Kept so callers can treat index creation
// uniformly across store backends.
func (s *Store) CreateVectorIndex() error { return nil }

// ValidateIntegrity reports whether every live id-mapping resolves to a
// record and the graph's node count is at least the number of live ids.
func (s *Store) ValidateIntegrity() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() < len(s.idMap) {
		return false
	}
	for vectorID, key := range s.idMap {
		if _, ok := s.keyMap[key]; !ok {
			return false
		}
		if _, ok := s.records[vectorID]; !ok {
			return false
		}
	}
	return true
}

// Repair drops any id-mapping whose record or graph key went missing.
func (s *Store) Repair() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for vectorID, key := range s.idMap {
		if _, ok := s.keyMap[key]; !ok {
			delete(s.idMap, vectorID)
			continue
		}
		if _, ok := s.records[vectorID]; !ok {
			delete(s.idMap, vectorID)
			delete(s.keyMap, key)
		}
	}
	for vectorID := range s.records {
		if _, ok := s.idMap[vectorID]; !ok {
			delete(s.records, vectorID)
		}
	}
	return s.save()
}

// AllVectorIDs returns the set of live vector ids, the "V" set used by the
// consistency validator.
func (s *Store) AllVectorIDs() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.idMap))
	for id := range s.idMap {
		out[id] = true
	}
	return out
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
