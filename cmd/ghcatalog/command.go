// Command ghcatalog is a thin batch driver over the catalog/query
// packages, in the teacher's cmd/influx_inspect single-purpose-tool
// idiom: a flag.FlagSet-based Command type with no subcommand tree.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ghcatalog/engine/catalog"
)

// Command represents one run of the ghcatalog batch driver.
type Command struct {
	Stderr io.Writer
	Stdout io.Writer
	Logger *zap.Logger
}

// NewCommand returns a new, default-wired Command.
func NewCommand() *Command {
	return &Command{
		Stderr: os.Stderr,
		Stdout: os.Stdout,
		Logger: zap.NewNop(),
	}
}

// Run builds (or reopens) the catalogue named by -entrada/-saida/-config
// and, if a query-list file is given as the sole positional argument,
// runs each listed query and writes its result to
// saida/command<N>_output.txt. With no positional argument it just
// builds the catalogue and logs a summary — the interactive viewer and
// its argument surface are out of scope here (spec.md's own Non-goals).
func (cmd *Command) Run(args ...string) error {
	fs := flag.NewFlagSet("ghcatalog", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional path to a TOML config file")
	entradaDir := fs.String("entrada", "", "override: input directory")
	saidaDir := fs.String("saida", "", "override: output directory")
	fs.SetOutput(cmd.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return errors.New("ghcatalog: at most one positional argument (a query-list file) is accepted")
	}

	cfg, err := catalog.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *entradaDir != "" {
		cfg.EntradaDir = *entradaDir
	}
	if *saidaDir != "" {
		cfg.SaidaDir = *saidaDir
	}

	cmd.Logger = newConsoleLogger(cmd.Stderr)

	started := time.Now()
	cat, err := catalog.Open(cfg, cmd.Logger)
	if err != nil {
		return errors.Wrap(err, "ghcatalog: open catalogue")
	}
	defer cat.Close()

	cmd.Logger.Info("catalogue ready",
		zap.String("elapsed", time.Since(started).String()),
		zap.String("accounts", humanize.Comma(int64(cat.AccountsByID.ElementCount()))),
		zap.String("repositories", humanize.Comma(int64(cat.ReposByID.ElementCount()))),
		zap.String("commits", humanize.Comma(int64(cat.CommitsByDate.ElementCount()))),
	)

	if fs.NArg() == 0 {
		return nil
	}
	return cmd.runQueryList(cat, fs.Arg(0), cfg.SaidaDir)
}

// runQueryList reads listPath one query invocation per line (see
// runQueryLine) and writes each result to saida/command<N>_output.txt,
// 1-indexed in file order.
func (cmd *Command) runQueryList(cat *catalog.Catalog, listPath, saidaDir string) error {
	f, err := os.Open(listPath)
	if err != nil {
		return errors.Wrapf(err, "ghcatalog: open query list %s", listPath)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	n := 0
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		n++
		out, err := runQueryLine(cat, line)
		if err != nil {
			return errors.Wrapf(err, "ghcatalog: command %d (%q)", n, line)
		}
		outPath := filepath.Join(saidaDir, fmt.Sprintf("command%d_output.txt", n))
		if err := os.WriteFile(outPath, []byte(out), 0o644); err != nil {
			return errors.Wrapf(err, "ghcatalog: write %s", outPath)
		}
		cmd.Logger.Debug("command complete", zap.Int("n", n), zap.String("output", outPath))
	}
	return errors.Wrapf(sc.Err(), "ghcatalog: scan %s", listPath)
}

func newConsoleLogger(w io.Writer) *zap.Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format(time.RFC3339))
	}
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.Lock(zapcore.AddSync(w)),
		zapcore.InfoLevel,
	))
}
