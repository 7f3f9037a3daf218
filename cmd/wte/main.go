package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"wte/config"
	"wte/fetch"
	"wte/misc"
	"wte/state"
)

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		// nothing to do, just return
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if env.Cfg, err = config.LoadConfiguration(configFile); err != nil {
		return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.Bool("debug") {
		if env.Rpt, err = env.Cfg.Reporting.Prepare(); err != nil {
			return ctx, fmt.Errorf("unable to prepare debug reporter: %w", err)
		}
		// save complete processed configuration if external configuration was provided
		if len(configFile) > 0 {
			// cookie is masked when dumped
			if data, err := config.Dump(env.Cfg); err == nil {
				env.Rpt.StoreData(fmt.Sprintf("config/%s", filepath.Base(configFile)), data)
			}
		}
	}
	if env.Log, err = env.Cfg.Logging.Prepare(env.Rpt); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", misc.GetVersion()), zap.String("runtime", runtime.Version()), zap.String("hash", misc.GetGitHash()))

	if env.Rpt != nil {
		env.Log.Info("Creating debug report", zap.String("location", env.Rpt.Name()))
	}
	if len(configFile) == 0 && env.Log != nil {
		env.Log.Info("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	}

	// close logging
	env.RestoreStdLog()

	// log is synced now and result can be used in report if necessary, errors
	// must be reported directly to stderr from now on
	if env.Rpt != nil {
		if er := env.Rpt.Close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close debug report: %w", er))
		}
	}
	// reporting is closed now - remove empty panic file if any
	if env.Cfg != nil && len(env.Cfg.Logging.FileLogger.Destination) > 0 {
		debug.SetCrashOutput(nil, debug.CrashOptions{})
		fname := filepath.Join(filepath.Dir(env.Cfg.Logging.FileLogger.Destination), misc.GetAppName()+"-panic.log")
		if fi, er := os.Stat(fname); er == nil && fi.Size() == 0 {
			if er := os.Remove(fname); er != nil {
				err = multierr.Append(err, fmt.Errorf("unable to remove empty panic log file '%s': %w", fname, er))
			}
		}
	}
	return
}

// Subcommands return regular errors, cli.Exit() is not used.
var errWasHandled bool

// this is called before appContext is destroyed, so we have a chance to
// properly log any error from subcommand
func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {

	env := state.EnvFromContext(ctx)

	if env.Log != nil {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	// do nothing special, error is reported either by exitErrHandler or on
	// exit directly to stderr.
	return err
}

func subcommandNotFoundHandler(ctx context.Context, _ *cli.Command, name string) {
	state.EnvFromContext(ctx).Named("main").Warn("Unknown command, nothing to do", zap.String("command", name))
}

const storyHelp = `
STORY:
    story id on the site, shelf handle or story title (case insensitive)
    stories which are not on the shelf could only be referenced by id
`

func main() {

	// allow graceful shutdown on interrupt, chapters in flight are abandoned
	// and partial book is removed
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)

	app := &cli.Command{
		Name:            misc.GetAppName(),
		Usage:           "converts web serials to EPUB books",
		Version:         misc.GetVersion() + " (" + runtime.Version() + ") : " + misc.GetGitHash(),
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		CommandNotFound: subcommandNotFoundHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, DefaultText: "", Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "changes program behavior to help troubleshooting, produces report archive"},
		},
		Commands: []*cli.Command{
			{
				Name:         "fetch",
				Usage:        "Fetches range of story chapters and builds EPUB book",
				OnUsageError: usageErrorHandler,
				Action:       fetch.Run,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "start", Aliases: []string{"s"}, Usage: "first chapter `NUMBER` (1-based, negative counts from the end)"},
					&cli.IntFlag{Name: "end", Aliases: []string{"e"}, Usage: "last chapter `NUMBER` (1-based, negative counts from the end)"},
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "book title `TEMPLATE`, overrides configured title template"},
					&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exists, overwrite files"},
					&cli.BoolFlag{Name: "keep-last-read", Aliases: []string{"k"}, Usage: "do not update last read chapter on the shelf"},
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "fetch unread chapters of every story on the shelf"},
					&cli.StringFlag{Name: "bookshelf", Aliases: []string{"b"}, Usage: "fetch unread chapters of every story on bookshelf `NAME`"},
				},
				ArgsUsage: "STORY [DESTINATION] | --all|--bookshelf NAME [DESTINATION]",
				CustomHelpTemplate: fmt.Sprintf(`%s%s
DESTINATION:
    path to resulting .epub file or to directory where book will be created
    if absent - current working directory
    directory is required when several stories are fetched

Without chapter numbers fetching continues after last read chapter up to the
last published one. When only end is given before last read chapter, fetching
starts from the first chapter. Stories without new chapters are skipped.
`, cli.CommandHelpTemplate, storyHelp),
			},
			{
				Name:         "show",
				Usage:        "Shows titles of story chapters",
				OnUsageError: usageErrorHandler,
				Action:       fetch.Show,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "start", Aliases: []string{"s"}, Value: -10, Usage: "first chapter `NUMBER` (1-based, negative counts from the end)"},
					&cli.IntFlag{Name: "end", Aliases: []string{"e"}, Value: -1, Usage: "last chapter `NUMBER` (1-based, negative counts from the end)"},
				},
				ArgsUsage:          "STORY",
				CustomHelpTemplate: cli.CommandHelpTemplate + storyHelp,
			},
			{
				Name:            "shelf",
				Usage:           "Maintains list of followed stories",
				HideHelpCommand: true,
				OnUsageError:    usageErrorHandler,
				Commands: []*cli.Command{
					{
						Name:         "add",
						Usage:        "Puts story on the shelf",
						OnUsageError: usageErrorHandler,
						Action:       fetch.ShelfAdd,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "last-read", Aliases: []string{"l"}, Usage: "last read chapter `NUMBER` (negative counts from the end, -1 - everything was read)"},
							&cli.StringFlag{Name: "handle", Aliases: []string{"n"}, Usage: "short `NAME` to refer to the story, story id if absent"},
						},
						ArgsUsage: "ID",
					},
					{
						Name:         "list",
						Usage:        "Lists stories on the shelf",
						OnUsageError: usageErrorHandler,
						Action:       fetch.ShelfList,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "name-only", Usage: "output handles only"},
						},
					},
					{
						Name:               "remove",
						Usage:              "Takes stories off the shelf",
						OnUsageError:       usageErrorHandler,
						Action:             fetch.ShelfRemove,
						ArgsUsage:          "STORY...",
						CustomHelpTemplate: cli.CommandHelpTemplate + storyHelp,
					},
				},
			},
			{
				Name:            "bookshelf",
				Usage:           "Groups stories on the shelf to be fetched together",
				HideHelpCommand: true,
				OnUsageError:    usageErrorHandler,
				Commands: []*cli.Command{
					{
						Name:         "create",
						Usage:        "Creates empty bookshelf",
						OnUsageError: usageErrorHandler,
						Action:       fetch.BookshelfCreate,
						ArgsUsage:    "NAME",
					},
					{
						Name:         "delete",
						Usage:        "Deletes bookshelf, stories stay on the shelf",
						OnUsageError: usageErrorHandler,
						Action:       fetch.BookshelfDelete,
						ArgsUsage:    "NAME",
					},
					{
						Name:         "list",
						Usage:        "Lists bookshelves",
						OnUsageError: usageErrorHandler,
						Action:       fetch.BookshelfList,
					},
					{
						Name:         "show",
						Usage:        "Lists stories on bookshelf",
						OnUsageError: usageErrorHandler,
						Action:       fetch.BookshelfShow,
						Flags: []cli.Flag{
							&cli.BoolFlag{Name: "name-only", Usage: "output handles only"},
						},
						ArgsUsage: "NAME",
					},
					{
						Name:               "add",
						Usage:              "Puts stories from the shelf on bookshelf",
						OnUsageError:       usageErrorHandler,
						Action:             fetch.BookshelfAdd,
						ArgsUsage:          "NAME STORY...",
						CustomHelpTemplate: cli.CommandHelpTemplate + storyHelp,
					},
					{
						Name:               "remove",
						Usage:              "Takes stories off bookshelf",
						OnUsageError:       usageErrorHandler,
						Action:             fetch.BookshelfRemove,
						ArgsUsage:          "NAME STORY...",
						CustomHelpTemplate: cli.CommandHelpTemplate + storyHelp,
					},
				},
			},
			{
				Name:  "dumpconfig",
				Usage: "Dumps either default or actual configuration (YAML)",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default embedded configuration"},
				},
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
				CustomHelpTemplate: fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag.
`, cli.CommandHelpTemplate),
			},
		},
	}

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deferred functions after that
	defer func() {
		stop()
		if err != nil {
			// It may happen that log is either not set yet (argument parsing) or already closed,
			// report errors to stderr directly
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}
