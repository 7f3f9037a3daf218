package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"wte/shelf"
	"wte/state"
)

// ShelfAdd is "shelf add" command action.
func ShelfAdd(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("shelf")

	arg := cmd.Args().Get(0)
	if len(arg) == 0 {
		return errors.New("no story id has been specified")
	}
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return fmt.Errorf("bad story id %q", arg)
	}
	return addStory(ctx, env, os.Stdout, id, cmd.String("handle"), cmd.Int("last-read"), log)
}

func addStory(ctx context.Context, env *state.LocalEnv, w io.Writer, id int, handle string, lastRead int, log *zap.Logger) (err error) {
	_, meta, err := openStory(ctx, env, id, log)
	if err != nil {
		return err
	}

	store, err := openShelf(env, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	story := shelf.NewStory(id, handle, meta.Title, lastRead, meta.ChapterCount)
	if story.LastRead > meta.ChapterCount {
		return fmt.Errorf("last read chapter %d is past the end of story with %d chapters", story.LastRead, meta.ChapterCount)
	}
	if err := store.Add(story); err != nil {
		return err
	}
	fmt.Fprintln(w, story)
	return nil
}

// ShelfList is "shelf list" command action.
func ShelfList(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	return listStories(env, os.Stdout, cmd.Bool("name-only"), env.Log.Named("shelf"))
}

func listStories(env *state.LocalEnv, w io.Writer, nameOnly bool, log *zap.Logger) (err error) {
	store, err := openShelf(env, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	stories, err := store.List()
	if err != nil {
		return err
	}
	printStories(w, stories, nameOnly)
	return nil
}

func printStories(w io.Writer, stories []shelf.Story, nameOnly bool) {
	if nameOnly {
		for _, s := range stories {
			fmt.Fprintln(w, s.Handle)
		}
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Handle", "Title", "Last read"})
	for _, s := range stories {
		tw.AppendRow(table.Row{s.ID, s.Handle, s.Title, s.LastRead})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	fmt.Fprintln(w, tw.Render())
}

// ShelfRemove is "shelf remove" command action.
func ShelfRemove(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return errors.New("no story has been specified")
	}
	return removeStories(env, os.Stdout, cmd.Args().Slice(), env.Log.Named("shelf"))
}

// removeStories takes every story it could find off the shelf, stories
// which are not there are reported in returned error.
func removeStories(env *state.LocalEnv, w io.Writer, identifiers []string, log *zap.Logger) (err error) {
	store, err := openShelf(env, log)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, store.Close())
	}()

	for _, identifier := range identifiers {
		story, er := store.Get(identifier)
		if er == nil {
			er = store.Remove(story.ID)
		}
		if er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to remove %q: %w", identifier, er))
			continue
		}
		fmt.Fprintf(w, "Removed %s\n", story)
	}
	return err
}
