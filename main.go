package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/abennett/rolltree/pkg"
	"github.com/abennett/rolltree/pkg/client"
	"github.com/abennett/rolltree/pkg/i18n"
	"github.com/abennett/rolltree/pkg/rolltree"
	"github.com/abennett/rolltree/pkg/server"
	"github.com/abennett/rolltree/pkg/sheet"
)

const envPrefix = "ROLLTREE"

// partsFlag collects repeated --part and --primary-part flags.
type partsFlag struct {
	parts   *[]rolltree.Part
	primary bool
}

func (p partsFlag) String() string {
	if p.parts == nil {
		return ""
	}
	var formulas []string
	for _, part := range *p.parts {
		if part.IsPrimary == p.primary {
			formulas = append(formulas, part.Formula)
		}
	}
	return strings.Join(formulas, ",")
}

func (p partsFlag) Set(formula string) error {
	*p.parts = append(*p.parts, rolltree.Part{
		Formula:   formula,
		IsPrimary: p.primary,
		Enabled:   true,
	})
	return nil
}

type rollModeSetting rolltree.RollMode

func (s rollModeSetting) DefaultRollMode() rolltree.RollMode {
	return rolltree.RollMode(s)
}

// rollFlags are shared by the commands that build roll trees.
type rollFlags struct {
	debug          bool
	sheetPath      string
	locale         string
	rollMode       string
	mainDie        string
	bonusEveryPart bool
	parts          []rolltree.Part
}

func (f *rollFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&f.debug, "debug", false, "log every roll stage")
	fs.StringVar(&f.sheetPath, "sheet", "", "YAML sheet with the roll context")
	fs.StringVar(&f.locale, "locale", i18n.BaseLocale, "locale of roll labels")
	fs.StringVar(&f.rollMode, "roll-mode", string(rolltree.RollModePublic), "default roll mode")
	fs.StringVar(&f.mainDie, "main-die", "1d20", "main die shown in the dialog")
	fs.BoolVar(&f.bonusEveryPart, "bonus-every-part", true, "append the bonus to every part")
	fs.Var(partsFlag{parts: &f.parts}, "part", "extra part formula (repeatable)")
	fs.Var(partsFlag{parts: &f.parts, primary: true}, "primary-part", "part formula the roll is added to (repeatable)")
}

func (f *rollFlags) context() (*rolltree.Context, error) {
	if f.sheetPath == "" {
		return rolltree.NewContext(nil), nil
	}
	return sheet.Load(f.sheetPath)
}

func (f *rollFlags) validate() error {
	if _, err := pkg.ParseDiceRoll(f.mainDie); err != nil {
		return fmt.Errorf("--main-die: %w", err)
	}
	if !rolltree.RollMode(f.rollMode).Valid() {
		return fmt.Errorf("--roll-mode: unknown roll mode %q", f.rollMode)
	}
	return nil
}

func setupLogger(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}

var (
	localFlags = flag.NewFlagSet("roll_local", flag.ExitOnError)
	localRoll  rollFlags
	skipDialog = localFlags.Bool("skip-dialog", false, "roll without asking for modifiers")
	bonus      = localFlags.String("bonus", "", "bonus added when the dialog is skipped")
)

var diceRollCmd = &ffcli.Command{
	Name:       "roll_local",
	ShortUsage: "roll_local [flags] <formula>",
	FlagSet:    localFlags,
	Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
	Exec:       rollLocal,
}

var resultStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#01c5d1"))

func rollLocal(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Println("a roll argument is required")
		return nil
	}
	setupLogger(os.Stderr, localRoll.debug)
	if err := localRoll.validate(); err != nil {
		return err
	}
	rollCtx, err := localRoll.context()
	if err != nil {
		return err
	}
	loc := i18n.Default().Localizer(localRoll.locale)
	mode := rolltree.RollMode(localRoll.rollMode)

	formula := strings.Join(args, " ")
	tree := rolltree.New(formula, rollCtx, rolltree.Config{
		Dialog:         teaDialog{loc: loc, mode: mode},
		Settings:       rollModeSetting(mode),
		Localizer:      loc,
		Debug:          localRoll.debug,
		BonusEveryPart: localRoll.bonusEveryPart,
	})
	res, err := tree.Roll(ctx, rolltree.RollOptions{
		Title:         loc.Format("dialog.title", map[string]any{"formula": formula}),
		MainDie:       localRoll.mainDie,
		DefaultButton: rolltree.ButtonRoll,
		Parts:         localRoll.parts,
		SkipUI:        *skipDialog,
		Bonus:         *bonus,
	})
	if err != nil {
		return err
	}
	if res.Cancelled {
		fmt.Println(loc.Format("result.cancelled", nil))
		return nil
	}
	for _, roll := range res.Rolls {
		evaluated, err := pkg.Evaluate(roll.FinalRoll, nil)
		if err != nil {
			return err
		}
		prefix := ""
		if roll.Part != nil && roll.Part.Label != "" {
			prefix = roll.Part.Label + " "
		}
		fmt.Printf("%s%s => %s (%s)\n", prefix, roll.Formula,
			resultStyle.Render(fmt.Sprint(evaluated.Total)), evaluated)
	}
	return nil
}

var (
	serveFlags  = flag.NewFlagSet("serve", flag.ExitOnError)
	serveRoll   rollFlags
	addr        = serveFlags.String("addr", ":8080", "listen address")
	roomFormula = serveFlags.String("formula", "1d20", "formula every room rolls")
)

var serveCmd = &ffcli.Command{
	Name:       "serve",
	ShortUsage: "serve [flags]",
	FlagSet:    serveFlags,
	Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
	Exec:       serve,
}

func serve(ctx context.Context, args []string) error {
	setupLogger(os.Stderr, serveRoll.debug)
	if err := serveRoll.validate(); err != nil {
		return err
	}
	rollCtx, err := serveRoll.context()
	if err != nil {
		return err
	}
	loc := i18n.Default().Localizer(serveRoll.locale)
	srv := server.NewServer(server.RoomConfig{
		Formula:        *roomFormula,
		Title:          loc.Format("dialog.title", map[string]any{"formula": *roomFormula}),
		MainDie:        serveRoll.mainDie,
		Parts:          serveRoll.parts,
		Sheet:          rollCtx,
		Localizer:      loc,
		Settings:       rollModeSetting(serveRoll.rollMode),
		Debug:          serveRoll.debug,
		BonusEveryPart: serveRoll.bonusEveryPart,
	})
	slog.Info("serving", "addr", *addr, "formula", *roomFormula)
	return http.ListenAndServe(*addr, server.NewMux(srv))
}

var (
	remoteFlags  = flag.NewFlagSet("roll_remote", flag.ExitOnError)
	logFile      = remoteFlags.String("log-file", "", "file to write client logs to")
	remoteLocale = remoteFlags.String("locale", i18n.BaseLocale, "locale of the dialog")
)

var rollCmd = &ffcli.Command{
	Name:       "roll_remote",
	ShortUsage: "roll_remote [flags] <ws://host:port> <room> <username>",
	FlagSet:    remoteFlags,
	Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
	Exec:       rollRemote,
}

func remoteLogWriter() (io.Writer, error) {
	if *logFile == "" {
		return io.Discard, nil
	}
	return os.OpenFile(*logFile, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
}

var errUsage = errors.New("usage: roll_remote <ws://host:port> <room> <username>")

func rollRemote(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	logWriter, err := remoteLogWriter()
	if err != nil {
		return err
	}
	setupLogger(logWriter, true)
	c, err := client.New(args[0], args[1], args[2], logWriter)
	if err != nil {
		return err
	}
	return runRemote(ctx, c, i18n.Default().Localizer(*remoteLocale))
}

func init() {
	localRoll.register(localFlags)
	serveRoll.register(serveFlags)
}

func main() {
	root := &ffcli.Command{
		ShortUsage: "rolltree <subcommand>",
		Subcommands: []*ffcli.Command{
			diceRollCmd,
			serveCmd,
			rollCmd,
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}

	err := root.ParseAndRun(context.Background(), os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
}
