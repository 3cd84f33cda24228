package syncctl

import (
	"sync"

	"github.com/kestrelframe/photosync/internal/config"
)

// scopeIndex answers "does this folder lie beneath one of the configured
// roots" for incremental-scan filtering. It holds a folder→parent edge
// map assembled from two sources: the ancestor chains full scans observe
// while walking down from a configured root, and the folder entries
// incremental change feeds deliver for newly created or moved folders.
// isInScope walks those edges upward, bounded to ancestorMaxDepth hops
// and guarded against cycles by a visited set, until it reaches a
// configured root, a folder already confirmed in-scope, or runs out of
// known edges.
type scopeIndex struct {
	mu      sync.RWMutex
	roots   map[string]bool
	known   map[string]bool
	parents map[string]string
}

func newScopeIndex(folders []config.FolderSpec) *scopeIndex {
	roots := make(map[string]bool, len(folders))
	for _, f := range folders {
		roots[f.FolderID] = true
	}

	return &scopeIndex{
		roots:   roots,
		known:   make(map[string]bool),
		parents: make(map[string]string),
	}
}

func (s *scopeIndex) recordRoot(folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roots[folderID] = true
}

// recordScan stores the ancestry chain observed for one full-scan photo:
// its parent folder, then each ancestor nearest-first. Every folder on
// the chain below rootID is marked in-scope and linked to its parent;
// nothing above the scan root is recorded, so a chain that continues past
// it (e.g. up to an account root) cannot widen the scope.
func (s *scopeIndex) recordScan(rootID, folderID string, ancestors []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := append([]string{folderID}, ancestors...)

	for i, id := range chain {
		if id == rootID || id == "" {
			break
		}

		s.known[id] = true

		if i+1 < len(chain) {
			s.parents[id] = chain[i+1]
		}
	}
}

// recordEdges stores folder→parent links along a chain without granting
// any of them scope — neutral facts for isInScope's walk to follow.
func (s *scopeIndex) recordEdges(folderID string, ancestors []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := append([]string{folderID}, ancestors...)

	for i := 0; i+1 < len(chain); i++ {
		if chain[i] == "" {
			continue
		}

		s.parents[chain[i]] = chain[i+1]
	}
}

// recordEdge stores a single folder→parent link, e.g. from a change
// feed's folder entry.
func (s *scopeIndex) recordEdge(folderID, parentID string) {
	if folderID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.parents[folderID] = parentID
}

// markKnown records that folderID has been confirmed to lie within scope.
func (s *scopeIndex) markKnown(folderID string) {
	if folderID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.known[folderID] = true
}

// isInScope walks the folder→parent edges upward from folderID, at most
// ancestorMaxDepth hops, cycle-guarded, looking for a configured root or
// a folder already confirmed in-scope.
func (s *scopeIndex) isInScope(folderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]bool, ancestorMaxDepth)
	current := folderID

	for depth := 0; depth < ancestorMaxDepth; depth++ {
		if visited[current] {
			return false
		}

		visited[current] = true

		if s.roots[current] || s.known[current] {
			return true
		}

		parent, ok := s.parents[current]
		if !ok {
			return false
		}

		current = parent
	}

	return false
}
