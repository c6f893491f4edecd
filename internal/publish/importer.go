package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// DefaultMessage is the commit message used when ImportOptions.Message is empty.
const DefaultMessage = "Update documentation"

// ImportOptions configures Importer.Import.
type ImportOptions struct {
	// RepoDir is any path inside the repository that receives the commit.
	RepoDir string
	// SourceDir is the rendered site; its contents become the root tree.
	SourceDir string
	Branch    string
	Message   string
	// NoJekyll adds an empty .nojekyll file to the root tree.
	NoJekyll bool
	Author   *object.Signature
}

// ImportResult describes the commit written by Import.
type ImportResult struct {
	Commit string
	Parent string
	Files  int
	// Unchanged is true when the tree matched the branch tip and no commit was made.
	Unchanged bool
}

// Importer writes a directory into a repository as a new commit on a branch
// without touching the worktree or the index.
type Importer struct {
	now func() time.Time
}

// NewImporter returns an Importer that stamps commits with the current time.
func NewImporter() *Importer {
	return &Importer{now: time.Now}
}

// Import creates blobs and trees for opts.SourceDir, commits them on top of the
// current tip of opts.Branch (if any) and moves the branch to the new commit.
func (im *Importer) Import(ctx context.Context, opts ImportOptions) (*ImportResult, error) {
	if opts.Branch == "" {
		return nil, errors.ValidationError("import requires a branch").Build()
	}
	info, err := os.Stat(opts.SourceDir)
	if err != nil || !info.IsDir() {
		return nil, errors.FileSystemError("import source is not a directory").
			WithCause(err).
			WithContext("dir", opts.SourceDir).
			Build()
	}

	repo, err := git.PlainOpenWithOptions(opts.RepoDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, errors.GitError("open repository").WithCause(err).WithContext("dir", opts.RepoDir).Build()
	}

	w := &treeWriter{ctx: ctx, store: repo.Storer}
	root, err := w.writeDir(opts.SourceDir, true, opts.NoJekyll)
	if err != nil {
		return nil, err
	}

	refName := plumbing.NewBranchReferenceName(opts.Branch)
	res := &ImportResult{Files: w.files}
	var parents []plumbing.Hash
	tip, err := repo.Reference(refName, true)
	switch {
	case err == nil:
		parents = append(parents, tip.Hash())
		res.Parent = tip.Hash().String()
		parent, cerr := repo.CommitObject(tip.Hash())
		if cerr != nil {
			return nil, errors.GitError("read branch tip").WithCause(cerr).WithContext("branch", opts.Branch).Build()
		}
		if parent.TreeHash == root {
			res.Commit = res.Parent
			res.Unchanged = true
			slog.Info("Site unchanged, skipping commit", logfields.Branch(opts.Branch), logfields.Commit(res.Commit))
			return res, nil
		}
	case stderrors.Is(err, plumbing.ErrReferenceNotFound):
	default:
		return nil, errors.GitError("resolve branch").WithCause(err).WithContext("branch", opts.Branch).Build()
	}

	sig := opts.Author
	if sig == nil {
		sig = &object.Signature{Name: "docpipe", Email: "docpipe@localhost"}
	}
	stamped := *sig
	if stamped.When.IsZero() {
		stamped.When = im.now()
	}
	msg := opts.Message
	if msg == "" {
		msg = DefaultMessage
	}
	commit := &object.Commit{
		Author:       stamped,
		Committer:    stamped,
		Message:      msg,
		TreeHash:     root,
		ParentHashes: parents,
	}
	hash, err := storeObject(repo.Storer, commit.Encode)
	if err != nil {
		return nil, errors.GitError("write commit").WithCause(err).Build()
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)); err != nil {
		return nil, errors.GitError("update branch").WithCause(err).WithContext("branch", opts.Branch).Build()
	}

	res.Commit = hash.String()
	slog.Info("Imported site into branch",
		logfields.Branch(opts.Branch),
		logfields.Commit(res.Commit),
		slog.Int("files", res.Files))
	return res, nil
}

type treeWriter struct {
	ctx   context.Context
	store storer.EncodedObjectStorer
	files int
}

func (w *treeWriter) writeDir(dir string, root, noJekyll bool) (plumbing.Hash, error) {
	if err := w.ctx.Err(); err != nil {
		return plumbing.ZeroHash, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return plumbing.ZeroHash, errors.FileSystemError("read directory").WithCause(err).WithContext("dir", dir).Build()
	}

	var tree object.Tree
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		entry, ok, err := w.writeEntry(path, e)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		if ok {
			tree.Entries = append(tree.Entries, entry)
		}
	}
	if noJekyll && !slices.ContainsFunc(tree.Entries, func(e object.TreeEntry) bool { return e.Name == ".nojekyll" }) {
		h, err := w.writeBlob(strings.NewReader(""))
		if err != nil {
			return plumbing.ZeroHash, err
		}
		w.files++
		tree.Entries = append(tree.Entries, object.TreeEntry{Name: ".nojekyll", Mode: filemode.Regular, Hash: h})
	}
	if len(tree.Entries) == 0 && !root {
		return plumbing.ZeroHash, nil
	}
	sortTreeEntries(tree.Entries)
	h, err := storeObject(w.store, tree.Encode)
	if err != nil {
		return plumbing.ZeroHash, errors.GitError("write tree").WithCause(err).WithContext("dir", dir).Build()
	}
	return h, nil
}

// writeEntry stores one directory entry. Empty directories are skipped since
// git cannot represent them.
func (w *treeWriter) writeEntry(path string, e fs.DirEntry) (object.TreeEntry, bool, error) {
	switch {
	case e.IsDir():
		h, err := w.writeDir(path, false, false)
		if err != nil || h.IsZero() {
			return object.TreeEntry{}, false, err
		}
		return object.TreeEntry{Name: e.Name(), Mode: filemode.Dir, Hash: h}, true, nil
	case e.Type()&fs.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return object.TreeEntry{}, false, errors.FileSystemError("read symlink").WithCause(err).WithContext("path", path).Build()
		}
		h, err := w.writeBlob(strings.NewReader(target))
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		w.files++
		return object.TreeEntry{Name: e.Name(), Mode: filemode.Symlink, Hash: h}, true, nil
	case e.Type().IsRegular():
		info, err := e.Info()
		if err != nil {
			return object.TreeEntry{}, false, errors.FileSystemError("stat file").WithCause(err).WithContext("path", path).Build()
		}
		f, err := os.Open(path) // #nosec G304 -- walking the rendered site directory
		if err != nil {
			return object.TreeEntry{}, false, errors.FileSystemError("open file").WithCause(err).WithContext("path", path).Build()
		}
		h, err := w.writeBlob(f)
		_ = f.Close()
		if err != nil {
			return object.TreeEntry{}, false, err
		}
		w.files++
		mode := filemode.Regular
		if info.Mode()&0o111 != 0 {
			mode = filemode.Executable
		}
		return object.TreeEntry{Name: e.Name(), Mode: mode, Hash: h}, true, nil
	default:
		slog.Debug("Skipping special file", logfields.Path(path))
		return object.TreeEntry{}, false, nil
	}
}

func (w *treeWriter) writeBlob(r io.Reader) (plumbing.Hash, error) {
	obj := w.store.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	wr, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, errors.GitError("write blob").WithCause(err).Build()
	}
	if _, err := io.Copy(wr, r); err != nil {
		_ = wr.Close()
		return plumbing.ZeroHash, errors.GitError("write blob").WithCause(err).Build()
	}
	if err := wr.Close(); err != nil {
		return plumbing.ZeroHash, errors.GitError("write blob").WithCause(err).Build()
	}
	h, err := w.store.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, errors.GitError("store blob").WithCause(err).Build()
	}
	return h, nil
}

func storeObject(s storer.EncodedObjectStorer, encode func(plumbing.EncodedObject) error) (plumbing.Hash, error) {
	obj := s.NewEncodedObject()
	if err := encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode object: %w", err)
	}
	return s.SetEncodedObject(obj)
}

// sortTreeEntries orders entries the way git does: directories compare as if
// their name had a trailing slash.
func sortTreeEntries(entries []object.TreeEntry) {
	key := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	slices.SortFunc(entries, func(a, b object.TreeEntry) int { return strings.Compare(key(a), key(b)) })
}
