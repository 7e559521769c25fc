package cmd

import (
	"errors"
	"fmt"
	"slices"

	"github.com/seanfarley/fromcvs/core"
	"github.com/seanfarley/fromcvs/internal/authormap"
	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/internal/fastimport"
	"github.com/seanfarley/fromcvs/internal/gitlib"
	"github.com/seanfarley/fromcvs/internal/index"
	"github.com/seanfarley/fromcvs/internal/keyword"
	"github.com/seanfarley/fromcvs/internal/outwriter"
	"github.com/seanfarley/fromcvs/internal/rcsfile"
	"github.com/seanfarley/fromcvs/internal/textenc"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/spf13/cobra"
)

// newPipeline wires the content source and the optional collaborators
// selected by cfg.
func newPipeline(cfg *contract.Config) (*core.Pipeline, error) {
	client := contract.NewLocalRCSClient(cfg.RlogPath, cfg.CoPath)
	p := &core.Pipeline{
		Source: rcsfile.NewSource(cfg.SourceRoot, client),
		Log:    contract.Logger,
	}

	decoder, err := textenc.NewDecoder(cfg.FallbackEncoding)
	if err != nil {
		return nil, err
	}
	p.Decoder = decoder

	if cfg.AuthorMapFile != "" {
		authors, err := authormap.Load(cfg.AuthorMapFile)
		if err != nil {
			return nil, err
		}
		contract.Logger.Debugf("loaded %d authors from %s", authors.Len(), cfg.AuthorMapFile)
		p.Authors = authors
	}

	if cfg.ExpandKeywords {
		expander, err := keyword.New(cfg.SourceRoot, cfg.Module)
		if err != nil {
			return nil, err
		}
		p.Expander = expander
	}
	return p, nil
}

// indexConnString returns the connection string of the index, preferring
// an explicit SQLite file over the configured one.
func indexConnString(cfg *contract.Config, file string) string {
	if cfg.IndexBackend == schema.SQLiteBackend && file != "" {
		return file
	}
	if cfg.IndexBackend == schema.SQLiteBackend && cfg.IndexDBConnect == "" {
		return contract.GetIndexDBFilePath()
	}
	return cfg.IndexDBConnect
}

// openDestination opens the destination selected by cfg.DestKind. The
// returned function releases it after the run.
func openDestination(cfg *contract.Config) (contract.Destination, func() error, error) {
	noop := func() error { return nil }
	switch cfg.DestKind {
	case schema.GoGitDest:
		if cfg.DestPath == "" {
			return nil, nil, fmt.Errorf("%w: a destination directory is required", contract.ErrDestination)
		}
		d, err := gitlib.Open(cfg.DestPath, cfg.TrunkName, contract.Logger)
		if err != nil {
			return nil, nil, err
		}
		return d, noop, nil

	case schema.IndexDest:
		if cfg.IndexBackend == schema.NoneBackend {
			return nil, nil, fmt.Errorf("%w: the index destination needs an index backend", contract.ErrDestination)
		}
		store, err := index.Open(cfg.IndexBackend, indexConnString(cfg, cfg.DestPath), contract.Logger)
		if err != nil {
			return nil, nil, err
		}
		if err := recordSource(store, cfg); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		if cfg.DestPath == "" {
			return nil, nil, fmt.Errorf("%w: a destination repository is required", contract.ErrDestination)
		}
		git := contract.NewLocalGitClient(cfg.GitPath)
		return fastimport.New(cfg.DestPath, cfg.TrunkName, git, contract.Logger), noop, nil
	}
}

// recordSource stores the repository root and adds the module to the
// modules the index already describes.
func recordSource(store *index.Store, cfg *contract.Config) error {
	root, err := store.SourceRoot()
	if err != nil {
		return err
	}
	if root != "" && root != cfg.SourceRoot {
		return fmt.Errorf("%w: index describes %s, not %s", contract.ErrDestination, root, cfg.SourceRoot)
	}
	modules, err := store.Modules()
	if err != nil {
		return err
	}
	if !slices.Contains(modules, cfg.Module) {
		modules = append(modules, cfg.Module)
	}
	return store.Init(cfg.SourceRoot, modules)
}

// convertCmd replays the CVS history of a module into a destination.
var convertCmd = &cobra.Command{
	Use:   "convert <cvsroot> <module> [destination]",
	Short: "Convert a CVS module into atomic commits",
	Long: `Scan every revision file of a CVS module, group the revisions into
changesets and replay them into the destination.

Destinations (--dest-kind):
  git    - a git repository fed through 'git fast-import' (default)
  gogit  - a git repository written directly, no git binary needed
  index  - a relational changeset index (see 'fromcvs index')

Runs are incremental: only revisions newer than the newest commit already
in the destination are converted. A git destination is created when it
does not exist. For the index destination the third argument is an
optional SQLite file.

Examples:
  # Convert into a new git repository
  fromcvs convert /var/cvs src /tmp/src.git

  # Map logins to full names and skip vendor test branches
  fromcvs convert /var/cvs src /tmp/src.git --author-map authors.txt --ignore-branches '^TEST_'

  # Build a changeset index for lookups with 'fromcvs show'
  fromcvs convert /var/cvs src --dest-kind index

  # Write into a shared PostgreSQL index
  fromcvs convert /var/cvs src --dest-kind index --index-backend postgresql \
      --index-db-connect "host=db port=5432 user=cvs dbname=changesets"`,
	Args:    cobra.RangeArgs(2, 3),
	PreRunE: sourceSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := runConvert(cfg); err != nil {
			contract.LogFatal("Conversion failed", err)
		}
	},
}

func runConvert(cfg *contract.Config) error {
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	dest, release, err := openDestination(cfg)
	if err != nil {
		return err
	}
	p.Dest = dest

	summary, err := core.Convert(rootCtx, cfg, p)
	if cerr := release(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return err
	}
	return outwriter.NewOutWriter().WriteSummary(summary, cfg)
}
