package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"wte/shelf"
	"wte/state"
)

// withShelf runs fn with opened shelf, closing it afterwards.
func withShelf(ctx context.Context, fn func(store *shelf.Store, log *zap.Logger) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("bookshelf")

	store, err := openShelf(env, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()
	return fn(store, log)
}

func bookshelfName(cmd *cli.Command) (string, error) {
	name := cmd.Args().Get(0)
	if len(name) == 0 {
		return "", errors.New("no bookshelf has been specified")
	}
	return name, nil
}

// BookshelfCreate is "bookshelf create" command action.
func BookshelfCreate(ctx context.Context, cmd *cli.Command) error {
	name, err := bookshelfName(cmd)
	if err != nil {
		return err
	}
	return withShelf(ctx, func(store *shelf.Store, _ *zap.Logger) error {
		return createBookshelf(store, os.Stdout, name)
	})
}

func createBookshelf(store *shelf.Store, w io.Writer, name string) error {
	created, err := store.CreateBookshelf(name)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(w, "Created bookshelf %q\n", name)
	} else {
		fmt.Fprintf(w, "Bookshelf %q already exists\n", name)
	}
	return nil
}

// BookshelfDelete is "bookshelf delete" command action.
func BookshelfDelete(ctx context.Context, cmd *cli.Command) error {
	name, err := bookshelfName(cmd)
	if err != nil {
		return err
	}
	return withShelf(ctx, func(store *shelf.Store, _ *zap.Logger) error {
		if err := store.DeleteBookshelf(name); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Deleted bookshelf %q\n", name)
		return nil
	})
}

// BookshelfList is "bookshelf list" command action.
func BookshelfList(ctx context.Context, _ *cli.Command) error {
	return withShelf(ctx, func(store *shelf.Store, _ *zap.Logger) error {
		return listBookshelves(store, os.Stdout)
	})
}

func listBookshelves(store *shelf.Store, w io.Writer) error {
	names, err := store.Bookshelves()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

// BookshelfShow is "bookshelf show" command action.
func BookshelfShow(ctx context.Context, cmd *cli.Command) error {
	name, err := bookshelfName(cmd)
	if err != nil {
		return err
	}
	nameOnly := cmd.Bool("name-only")
	return withShelf(ctx, func(store *shelf.Store, _ *zap.Logger) error {
		stories, err := store.BookshelfStories(name)
		if err != nil {
			return err
		}
		printStories(os.Stdout, stories, nameOnly)
		return nil
	})
}

// BookshelfAdd is "bookshelf add" command action.
func BookshelfAdd(ctx context.Context, cmd *cli.Command) error {
	return changeBookshelf(ctx, cmd, true)
}

// BookshelfRemove is "bookshelf remove" command action.
func BookshelfRemove(ctx context.Context, cmd *cli.Command) error {
	return changeBookshelf(ctx, cmd, false)
}

func changeBookshelf(ctx context.Context, cmd *cli.Command, add bool) error {
	name, err := bookshelfName(cmd)
	if err != nil {
		return err
	}
	if cmd.Args().Len() < 2 {
		return errors.New("no story has been specified")
	}
	identifiers := cmd.Args().Slice()[1:]
	return withShelf(ctx, func(store *shelf.Store, log *zap.Logger) error {
		return shelveStories(store, os.Stdout, name, identifiers, add, log)
	})
}

// shelveStories puts stories on bookshelf or takes them off it. Stories
// which could not be found are reported in returned error, the rest are
// processed.
func shelveStories(store *shelf.Store, w io.Writer, name string, identifiers []string, add bool, log *zap.Logger) (err error) {
	for _, identifier := range identifiers {
		story, er := store.Get(identifier)
		if er != nil {
			err = multierr.Append(err, fmt.Errorf("story %q: %w", identifier, er))
			continue
		}

		var changed bool
		if add {
			changed, er = store.ShelveStory(name, story.ID)
		} else {
			changed, er = store.UnshelveStory(name, story.ID)
		}
		if errors.Is(er, shelf.ErrNoBookshelf) {
			// nothing else would succeed
			return multierr.Append(err, er)
		}
		if er != nil {
			err = multierr.Append(err, er)
			continue
		}

		switch {
		case !changed:
			log.Debug("Bookshelf not changed", zap.String("bookshelf", name), zap.Stringer("story", story), zap.Bool("add", add))
		case add:
			fmt.Fprintf(w, "Added %s\n", story)
		default:
			fmt.Fprintf(w, "Removed %s\n", story)
		}
	}
	return err
}
