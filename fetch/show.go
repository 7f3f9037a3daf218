package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"wte/shelf"
	"wte/state"
)

// Show is "show" command action: lists chapter titles in requested range
// marking the last one read.
func Show(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("show")

	req := request{
		identifier: cmd.Args().Get(0),
		start:      optionalInt(cmd, "start"),
		end:        optionalInt(cmd, "end"),
	}
	if len(req.identifier) == 0 {
		return errors.New("no story has been specified")
	}
	return show(ctx, env, os.Stdout, req, log)
}

func show(ctx context.Context, env *state.LocalEnv, w io.Writer, req request, log *zap.Logger) (err error) {
	s, err := openSession(ctx, env, req.identifier, log)
	if err != nil {
		return err
	}
	defer func() {
		if er := s.close(); er != nil && err == nil {
			err = er
		}
	}()

	start, end, err := shelf.ChapterBounds(req.start, req.end, s.entry.LastRead, s.meta.ChapterCount)
	if err != nil {
		return err
	}
	values := s.values(start, end)

	if s.tracked {
		fmt.Fprintln(w, s.entry)
	}
	fmt.Fprintf(w, "%q, %d chapters\n", values.Title+chapterInfo(values.First, values.Last), s.meta.ChapterCount)
	if start > end {
		fmt.Fprintln(w, "\tNo chapters found.")
		return nil
	}
	for index := start; index <= end; index++ {
		title, err := s.src.PeekChapterTitle(index)
		if err != nil {
			return err
		}
		var mark string
		if index+1 == s.entry.LastRead {
			mark = "[+]"
		}
		fmt.Fprintf(w, "%s\tChapter#<%d>: %q\n", mark, index+1, title)
	}
	return nil
}
