package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/seanfarley/fromcvs/internal/contract"
	"github.com/seanfarley/fromcvs/internal/index"
	"github.com/seanfarley/fromcvs/internal/outwriter"
	"github.com/seanfarley/fromcvs/internal/rcsfile"
	"github.com/seanfarley/fromcvs/schema"
	"github.com/spf13/cobra"
)

// showCmd prints the changeset a file revision belongs to.
var showCmd = &cobra.Command{
	Use:   "show <file> <revision>",
	Short: "Show the changeset that contains a file revision",
	Long: `Look up a file revision in the changeset index and print the changeset
it belongs to: author, branch, date, log message and all member revisions.

The index is filled by 'fromcvs convert --dest-kind index'. The log message
and, with --diff, the member contents are read from the CVS repository the
index was built from.

Examples:
  # Which commit did src/main.c 1.42 go into?
  fromcvs show src/main.c 1.42

  # Review the whole change as a patch
  fromcvs show src/main.c 1.42 --diff

  # Machine-readable output
  fromcvs show src/main.c 1.42 --output json`,
	Args:    cobra.ExactArgs(2),
	PreRunE: plainSetup,
	Run: func(_ *cobra.Command, args []string) {
		if err := runShow(rootCtx, cfg, args[0], args[1]); err != nil {
			contract.LogFatal("Failed to show changeset", err)
		}
	},
}

func runShow(ctx context.Context, cfg *contract.Config, file, rev string) error {
	store, err := index.Open(cfg.IndexBackend, indexConnString(cfg, ""), contract.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cs, err := store.LookupChangeset(file, rev)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return fmt.Errorf("%s:%s is not in the index; run 'fromcvs convert --dest-kind index' first: %w", file, rev, err)
		}
		return err
	}

	source, hist, err := openIndexedFile(ctx, store, cfg, file)
	if err != nil {
		return err
	}
	view := &schema.ChangesetView{Changeset: *cs}
	if r, ok := hist.Revisions[rev]; ok {
		view.Log = r.Log
	}

	if cfg.Diff {
		for _, m := range cs.Members {
			text, err := memberText(ctx, source, m)
			if err != nil {
				return err
			}
			view.Texts = append(view.Texts, text)
		}
	}
	return outwriter.NewOutWriter().WriteChangeset(view, cfg)
}

// openIndexedFile finds the module of the index that holds file and returns
// a source rooted there with the history of file.
func openIndexedFile(ctx context.Context, store *index.Store, cfg *contract.Config, file string) (*rcsfile.Source, *schema.FileHistory, error) {
	root, err := store.SourceRoot()
	if err != nil {
		return nil, nil, err
	}
	if root == "" {
		return nil, nil, fmt.Errorf("%w: index does not record its repository", contract.ErrDestination)
	}
	modules, err := store.Modules()
	if err != nil {
		return nil, nil, err
	}

	client := contract.NewLocalRCSClient(cfg.RlogPath, cfg.CoPath)
	var errs []error
	for _, module := range modules {
		source := rcsfile.NewSource(root, client).WithModule(module)
		hist, err := source.Open(ctx, file)
		if err == nil {
			return source, hist, nil
		}
		errs = append(errs, fmt.Errorf("module %s: %w", module, err))
	}
	return nil, nil, fmt.Errorf("cannot read %s below %s: %w", file, root, errors.Join(errs...))
}

// memberText materializes a member and its predecessor. Dead revisions have
// no content.
func memberText(ctx context.Context, source *rcsfile.Source, m schema.RevisionMember) (schema.MemberText, error) {
	text := schema.MemberText{Path: m.Path, From: m.NextRevision, To: m.Revision}
	hist, err := source.Open(ctx, m.Path)
	if err != nil {
		return text, err
	}

	content := func(rev string) ([]byte, error) {
		if r, ok := hist.Revisions[rev]; !ok || r.State == schema.StateDead {
			return nil, nil
		}
		fc, err := source.Materialize(ctx, m.Path, rev)
		if err != nil {
			return nil, err
		}
		if fc.Data == nil {
			return []byte{}, nil
		}
		return fc.Data, nil
	}

	if text.New, err = content(m.Revision); err != nil {
		return text, err
	}
	if m.NextRevision != "" {
		if text.Old, err = content(m.NextRevision); err != nil {
			return text, err
		}
		if text.Old == nil {
			text.From = ""
		}
	}
	return text, nil
}
