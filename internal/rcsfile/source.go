package rcsfile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/schema"
)

const (
	rcsSuffix = ",v"
	atticDir  = "Attic"
)

// Source is a ContentSource over a CVS repository on the local disk.
type Source struct {
	root   string
	module string
	client contract.RCSClient

	files  map[string]string            // normalized path -> revision file
	expand map[string]schema.ExpandMode // normalized path -> keyword mode
}

var _ contract.ContentSource = &Source{} // Compile-time check

// NewSource creates a content source for the repository at root.
func NewSource(root string, client contract.RCSClient) *Source {
	return &Source{
		root:   root,
		module: ".",
		client: client,
		files:  make(map[string]string),
		expand: make(map[string]schema.ExpandMode),
	}
}

// WithModule sets the module that normalized paths are relative to, for lookups
// that do not follow a Walk.
func (s *Source) WithModule(module string) *Source {
	s.module = module
	return s
}

// Walk visits the revision files below module directory by directory. The
// files of a directory, its Attic included, come before its subdirectories.
func (s *Source) Walk(ctx context.Context, module string, visit func(schema.SourceFile) error) error {
	s.module = module
	return s.walkDir(ctx, ".", visit)
}

func (s *Source) walkDir(ctx context.Context, rel string, visit func(schema.SourceFile) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, s.module, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []found
	var subdirs []string
	for _, e := range entries {
		switch {
		case e.IsDir() && e.Name() == atticDir:
			attic, err := os.ReadDir(filepath.Join(dir, atticDir))
			if err != nil {
				return fmt.Errorf("read directory %s: %w", filepath.Join(dir, atticDir), err)
			}
			for _, a := range attic {
				if f, ok := s.sourceFile(rel, filepath.Join(dir, atticDir), a); ok {
					files = append(files, found{f, true})
				}
			}
		case e.IsDir():
			if rel == "." && s.module == "." && e.Name() == "CVSROOT" {
				continue
			}
			subdirs = append(subdirs, path.Join(rel, e.Name()))
		default:
			if f, ok := s.sourceFile(rel, dir, e); ok {
				files = append(files, found{f, false})
			}
		}
	}

	// The live file wins over a removed copy left in the Attic.
	sort.Slice(files, func(i, j int) bool {
		if files[i].Path != files[j].Path {
			return files[i].Path < files[j].Path
		}
		return !files[i].attic && files[j].attic
	})
	for i, f := range files {
		if i > 0 && files[i-1].Path == f.Path {
			continue
		}
		if err := visit(f.SourceFile); err != nil {
			return err
		}
	}
	for _, sub := range subdirs {
		if err := s.walkDir(ctx, sub, visit); err != nil {
			return err
		}
	}
	return nil
}

// found is a revision file seen while reading one directory.
type found struct {
	schema.SourceFile
	attic bool
}

// sourceFile records one revision file found in dir. rel is the normalized
// directory the file belongs to.
func (s *Source) sourceFile(rel, dir string, e fs.DirEntry) (schema.SourceFile, bool) {
	if e.IsDir() || !strings.HasSuffix(e.Name(), rcsSuffix) {
		return schema.SourceFile{}, false
	}
	info, err := e.Info()
	if err != nil {
		return schema.SourceFile{}, false
	}
	norm := path.Join(rel, strings.TrimSuffix(e.Name(), rcsSuffix))
	rcsPath := filepath.Join(dir, e.Name())
	if prev, ok := s.files[norm]; !ok || filepath.Base(filepath.Dir(prev)) == atticDir {
		s.files[norm] = rcsPath
	}
	return schema.SourceFile{Path: norm, Dir: rel, ModTime: info.ModTime()}, true
}

// resolve returns the revision file of a normalized path.
func (s *Source) resolve(p string) (string, error) {
	if rcsPath, ok := s.files[p]; ok {
		return rcsPath, nil
	}
	base := filepath.Join(s.root, s.module, filepath.FromSlash(p))
	candidates := []string{
		base + rcsSuffix,
		filepath.Join(filepath.Dir(base), atticDir, filepath.Base(base)+rcsSuffix),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			s.files[p] = c
			return c, nil
		}
	}
	return "", fmt.Errorf("no revision file for %s", p)
}

// Open implements the ContentSource interface.
func (s *Source) Open(ctx context.Context, p string) (*schema.FileHistory, error) {
	rcsPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	out, err := s.client.Run(ctx, "rlog", rcsPath)
	if err != nil {
		return nil, err
	}
	h, err := ParseRlog(out)
	if err != nil {
		return nil, fmt.Errorf("parse rlog of %s: %w", rcsPath, err)
	}
	h.Path = rcsPath
	s.expand[p] = h.ExpandMode
	return h, nil
}

// Log implements the ContentSource interface.
func (s *Source) Log(ctx context.Context, p, rev string) (string, error) {
	rcsPath, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	out, err := s.client.Run(ctx, "rlog", "-r"+rev, rcsPath)
	if err != nil {
		return "", err
	}
	h, err := ParseRlog(out)
	if err != nil {
		return "", fmt.Errorf("parse rlog of %s: %w", rcsPath, err)
	}
	r, ok := h.Revisions[rev]
	if !ok {
		return "", fmt.Errorf("%s has no revision %s", p, rev)
	}
	return r.Log, nil
}

// Materialize implements the ContentSource interface.
func (s *Source) Materialize(ctx context.Context, p, rev string) (*schema.FileContent, error) {
	rcsPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	mode, err := s.expandMode(ctx, p, rcsPath)
	if err != nil {
		return nil, err
	}
	data, err := s.client.Run(ctx, "co", "-q", "-ko", "-p", "-r"+rev, rcsPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(rcsPath)
	if err != nil {
		return nil, err
	}
	uid, gid := fileOwner(info)
	return &schema.FileContent{
		Data:   data,
		Mode:   info.Mode().Perm(),
		UID:    uid,
		GID:    gid,
		Expand: mode,
	}, nil
}

// expandMode returns the keyword mode of a file, reading the header when the
// file was never opened.
func (s *Source) expandMode(ctx context.Context, p, rcsPath string) (schema.ExpandMode, error) {
	if mode, ok := s.expand[p]; ok {
		return mode, nil
	}
	out, err := s.client.Run(ctx, "rlog", "-h", rcsPath)
	if err != nil {
		return "", err
	}
	h, err := ParseRlog(out)
	if err != nil {
		return "", fmt.Errorf("parse rlog of %s: %w", rcsPath, err)
	}
	s.expand[p] = h.ExpandMode
	return h.ExpandMode, nil
}
