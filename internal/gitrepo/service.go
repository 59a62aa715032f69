// Package gitrepo is the go-git backed repository adapter. Everything the
// engine knows about earlier runs is read back from commit trailers and the
// file blobs they point at.
package gitrepo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"rulehistory/internal/rules"
)

const readmePath = "README.md"

// readmeTime stamps the initial commit so rebuilt repositories hash the same.
var readmeTime = time.Date(1970, time.January, 1, rules.CommitHour, 0, 0, 0, time.UTC)

var (
	ErrNotInitialized = errors.New("repository not initialized")
	ErrNoCommit       = errors.New("no commit touches path")
)

type Identity struct {
	Name  string
	Email string
}

func (id Identity) signature(when time.Time) *object.Signature {
	return &object.Signature{Name: id.Name, Email: id.Email, When: when}
}

// Service manages the repositories under one base directory.
type Service struct {
	baseDir  string
	identity Identity
	lockMu   sync.Mutex
	locks    map[string]*sync.Mutex
}

func New(baseDir string, identity Identity) *Service {
	return &Service{
		baseDir:  baseDir,
		identity: identity,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *Service) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

func (s *Service) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.Path(name), ".git"))
	return err == nil
}

// Ensure opens the named repository, initializing it with a README commit
// when it does not exist yet.
func (s *Service) Ensure(name, readme string) (*Repo, error) {
	lock := s.repoLock(name)
	lock.Lock()
	defer lock.Unlock()

	path := s.Path(name)
	if s.Exists(name) {
		return s.open(name)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err := git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, readmePath), []byte(readme), 0o644); err != nil {
		return nil, fmt.Errorf("write readme: %w", err)
	}
	if _, err := worktree.Add(readmePath); err != nil {
		return nil, fmt.Errorf("git add readme: %w", err)
	}
	if _, err := worktree.Commit("Initialize repository", &git.CommitOptions{
		Author:    s.identity.signature(readmeTime),
		Committer: s.identity.signature(readmeTime),
	}); err != nil {
		return nil, fmt.Errorf("commit readme: %w", err)
	}
	return s.open(name)
}

// Open returns ErrNotInitialized when the repository does not exist.
func (s *Service) Open(name string) (*Repo, error) {
	lock := s.repoLock(name)
	lock.Lock()
	defer lock.Unlock()

	if !s.Exists(name) {
		return nil, fmt.Errorf("open %s: %w", name, ErrNotInitialized)
	}
	return s.open(name)
}

// Reset deletes the repository. Only an explicit force rebuild calls it.
func (s *Service) Reset(name string) error {
	lock := s.repoLock(name)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.Path(name)); err != nil {
		return fmt.Errorf("remove repo %s: %w", name, err)
	}
	return nil
}

func (s *Service) open(name string) (*Repo, error) {
	repo, err := git.PlainOpen(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return &Repo{
		name:     name,
		repo:     repo,
		identity: s.identity,
		lock:     s.repoLock(name),
	}, nil
}

func (s *Service) repoLock(name string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[name]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[name] = lock
	return lock
}

// Repo is one open repository. Its methods are safe for concurrent use but
// mutations are expected to come from a single writer.
type Repo struct {
	name     string
	repo     *git.Repository
	identity Identity
	lock     *sync.Mutex

	// index memoizes the trailer scan for indexHead; any other HEAD forces a rescan.
	index     *Snapshot
	indexHead plumbing.Hash
}

func (r *Repo) Name() string { return r.name }

// Snapshot is the recorded history of every path at one HEAD.
type Snapshot struct {
	Head    string
	Commits int
	byPath  map[string][]rules.RecordedVersion
}

// Versions returns the path's recorded versions, oldest commit first.
func (s *Snapshot) Versions(path string) []rules.RecordedVersion {
	return append([]rules.RecordedVersion(nil), s.byPath[path]...)
}

func (s *Snapshot) Paths() []string {
	out := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *Snapshot) latest(path string) (rules.RecordedVersion, bool) {
	versions := s.byPath[path]
	if len(versions) == 0 {
		return rules.RecordedVersion{}, false
	}
	return versions[len(versions)-1], true
}

func (r *Repo) Snapshot() (*Snapshot, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	copied := &Snapshot{Head: snap.Head, Commits: snap.Commits, byPath: make(map[string][]rules.RecordedVersion, len(snap.byPath))}
	for p, vs := range snap.byPath {
		copied.byPath[p] = append([]rules.RecordedVersion(nil), vs...)
	}
	return copied, nil
}

func (r *Repo) History(path string) ([]rules.RecordedVersion, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	snap, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	return snap.Versions(path), nil
}

// LatestState returns the most recent commit recorded for path.
func (r *Repo) LatestState(path string) (rules.RecordedVersion, bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	snap, err := r.snapshot()
	if err != nil {
		return rules.RecordedVersion{}, false, err
	}
	v, ok := snap.latest(path)
	return v, ok, nil
}

// ContentAsOf returns the version of path in force on date.
func (r *Repo) ContentAsOf(path string, date rules.Date) (rules.RecordedVersion, bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	snap, err := r.snapshot()
	if err != nil {
		return rules.RecordedVersion{}, false, err
	}
	var (
		found rules.RecordedVersion
		ok    bool
	)
	for _, v := range snap.byPath[path] {
		if v.Key.Effective.After(date) {
			continue
		}
		if !ok || v.Key.Compare(found.Key) >= 0 {
			found, ok = v, true
		}
	}
	return found, ok, nil
}

func (r *Repo) CommitCount() (int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	snap, err := r.snapshot()
	if err != nil {
		return 0, err
	}
	return snap.Commits, nil
}

type CommitInfo struct {
	Hash     string
	Subject  string
	Document string
	Path     string
	Key      string
	When     time.Time
}

// Log lists commits newest first. An empty path lists every commit.
func (r *Repo) Log(path string, limit int) ([]CommitInfo, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	head, err := r.head()
	if err != nil || head.IsZero() {
		return nil, err
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(c *object.Commit) error {
		st, ok := parseStamp(c.Message)
		if path != "" && (!ok || st.Path != path) {
			return nil
		}
		info := CommitInfo{Hash: c.Hash.String(), Subject: subject(c.Message), When: c.Author.When}
		if ok {
			info.Document = st.Document.String()
			info.Path = st.Path
			info.Key = st.Key.String()
		}
		items = append(items, info)
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// WriteAndCommit writes rev.Content to rev.Path and commits it with author
// and committer both stamped rev.When. The branch moves only once the commit
// object exists.
func (r *Repo) WriteAndCommit(rev rules.Revision) (string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	full := filepath.Join(worktree.Filesystem.Root(), filepath.FromSlash(rev.Path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create dir for %s: %w", rev.Path, err)
	}
	if err := os.WriteFile(full, []byte(rev.Content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", rev.Path, err)
	}
	if _, err := worktree.Add(rev.Path); err != nil {
		return "", fmt.Errorf("git add %s: %w", rev.Path, err)
	}

	st := stamp{Document: rev.Document, Path: rev.Path, Key: rev.Key}
	hash, err := worktree.Commit(withTrailers(rev.Message, st), &git.CommitOptions{
		AllowEmptyCommits: true,
		Author:            r.identity.signature(rev.When),
		Committer:         r.identity.signature(rev.When),
	})
	if err != nil {
		return "", fmt.Errorf("commit %s: %w", rev.Path, err)
	}

	r.extendIndex(hash, rules.RecordedVersion{
		Document: rev.Document,
		Path:     rev.Path,
		Key:      rev.Key,
		Content:  rev.Content,
		Commit:   hash.String(),
		Message:  rev.Message,
		When:     rev.When,
	})
	return hash.String(), nil
}

// AmendLastCommit replaces the content and message of the newest commit that
// touches path, keeping its trailers and timestamps. Later commits do not
// touch path; they are replayed on top with the new blob so their own trees
// stay consistent. The branch ref is swapped once, compare-and-set, and the
// worktree is then hard-reset to it.
func (r *Repo) AmendLastCommit(path, content, message string) (string, int, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	headRef, err := r.repo.Head()
	if err != nil {
		return "", 0, fmt.Errorf("resolve head: %w", err)
	}

	var (
		target      *object.Commit
		descendants []*object.Commit
	)
	for c, err := r.repo.CommitObject(headRef.Hash()); ; c, err = c.Parent(0) {
		if errors.Is(err, object.ErrParentNotFound) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("walk history: %w", err)
		}
		st, ok := parseStamp(c.Message)
		if ok && st.Path == path {
			target = c
			break
		}
		descendants = append(descendants, c)
	}
	if target == nil {
		return "", 0, fmt.Errorf("amend %s: %w", path, ErrNoCommit)
	}
	st, _ := parseStamp(target.Message)

	blob, err := r.writeBlob(content)
	if err != nil {
		return "", 0, err
	}
	parts := strings.Split(path, "/")

	tree, err := r.replaceInTree(target.TreeHash, parts, blob)
	if err != nil {
		return "", 0, err
	}
	newHead, err := r.writeCommit(&object.Commit{
		Author:       target.Author,
		Committer:    target.Committer,
		Message:      withTrailers(message, st),
		TreeHash:     tree,
		ParentHashes: target.ParentHashes,
	})
	if err != nil {
		return "", 0, err
	}
	amended := newHead

	for i := len(descendants) - 1; i >= 0; i-- {
		d := descendants[i]
		tree, err := r.replaceInTree(d.TreeHash, parts, blob)
		if err != nil {
			return "", 0, err
		}
		newHead, err = r.writeCommit(&object.Commit{
			Author:       d.Author,
			Committer:    d.Committer,
			Message:      d.Message,
			TreeHash:     tree,
			ParentHashes: []plumbing.Hash{newHead},
		})
		if err != nil {
			return "", 0, err
		}
	}

	next := plumbing.NewHashReference(headRef.Name(), newHead)
	if err := r.repo.Storer.CheckAndSetReference(next, headRef); err != nil {
		return "", 0, fmt.Errorf("swap %s: %w", headRef.Name(), err)
	}
	worktree, err := r.repo.Worktree()
	if err != nil {
		return "", 0, fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: newHead, Mode: git.HardReset}); err != nil {
		return "", 0, fmt.Errorf("reset worktree: %w", err)
	}

	r.index = nil
	return amended.String(), len(descendants), nil
}

func (r *Repo) head() (plumbing.Hash, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, nil
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve head: %w", err)
	}
	return ref.Hash(), nil
}

// snapshot must be called with r.lock held.
func (r *Repo) snapshot() (*Snapshot, error) {
	head, err := r.head()
	if err != nil {
		return nil, err
	}
	if r.index != nil && r.indexHead == head {
		return r.index, nil
	}

	snap := &Snapshot{Head: head.String(), byPath: make(map[string][]rules.RecordedVersion)}
	if head.IsZero() {
		r.index, r.indexHead = snap, head
		return snap, nil
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var newestFirst []rules.RecordedVersion
	err = iter.ForEach(func(c *object.Commit) error {
		snap.Commits++
		st, ok := parseStamp(c.Message)
		if !ok {
			return nil
		}
		content, err := fileContent(c, st.Path)
		if errors.Is(err, object.ErrFileNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		body, _, _ := splitTrailers(c.Message)
		newestFirst = append(newestFirst, rules.RecordedVersion{
			Document: st.Document,
			Path:     st.Path,
			Key:      st.Key,
			Content:  content,
			Commit:   c.Hash.String(),
			Message:  body,
			When:     c.Author.When.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		v := newestFirst[i]
		snap.byPath[v.Path] = append(snap.byPath[v.Path], v)
	}

	r.index, r.indexHead = snap, head
	return snap, nil
}

// extendIndex records a commit just made on top of the indexed HEAD.
func (r *Repo) extendIndex(hash plumbing.Hash, v rules.RecordedVersion) {
	if r.index == nil {
		return
	}
	c, err := r.repo.CommitObject(hash)
	if err != nil || len(c.ParentHashes) != 1 || c.ParentHashes[0] != r.indexHead {
		r.index = nil
		return
	}
	r.index.byPath[v.Path] = append(r.index.byPath[v.Path], v)
	r.index.Commits++
	r.index.Head = hash.String()
	r.indexHead = hash
}

func fileContent(c *object.Commit, path string) (string, error) {
	file, err := c.File(path)
	if err != nil {
		return "", fmt.Errorf("load %s from commit %s: %w", path, c.Hash, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s from commit %s: %w", path, c.Hash, err)
	}
	return content, nil
}

func (r *Repo) writeBlob(content string) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open blob writer: %w", err)
	}
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}
	return hash, nil
}

func (r *Repo) writeCommit(c *object.Commit) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store commit: %w", err)
	}
	return hash, nil
}

// replaceInTree returns a tree equal to treeHash with parts pointing at blob,
// creating intermediate directories as needed.
func (r *Repo) replaceInTree(treeHash plumbing.Hash, parts []string, blob plumbing.Hash) (plumbing.Hash, error) {
	var entries []object.TreeEntry
	if !treeHash.IsZero() {
		tree, err := object.GetTree(r.repo.Storer, treeHash)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("load tree %s: %w", treeHash, err)
		}
		entries = append(entries, tree.Entries...)
	}

	name := parts[0]
	idx := -1
	for i, e := range entries {
		if e.Name == name {
			idx = i
			break
		}
	}

	entry := object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: blob}
	if len(parts) > 1 {
		sub := plumbing.ZeroHash
		if idx >= 0 && entries[idx].Mode == filemode.Dir {
			sub = entries[idx].Hash
		}
		hash, err := r.replaceInTree(sub, parts[1:], blob)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entry = object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash}
	} else if idx >= 0 && entries[idx].Mode != filemode.Dir {
		entry.Mode = entries[idx].Mode
	}
	if idx >= 0 {
		entries[idx] = entry
	} else {
		entries = append(entries, entry)
	}
	sortTreeEntries(entries)

	obj := r.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: entries}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	hash, err := r.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store tree: %w", err)
	}
	return hash, nil
}

// sortTreeEntries applies git's order, where directories compare as if their
// name ended in "/".
func sortTreeEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return key(entries[i]) < key(entries[j]) })
}
