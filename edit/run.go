package edit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"epubalt/archive"
	"epubalt/state"
)

// RunList is "list" command action: it outputs listing of all images of the
// source archive and optionally saves images themselves.
func RunList(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("list")

	src, err := sourcePath(cmd)
	if err != nil {
		return err
	}
	dst := cmd.Args().Get(1)
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	prepareEnv(env, cmd, log)

	ctx, cancel, log := beginRequest(ctx, env, log)
	defer cancel()

	log.Info("Listing starting", zap.String("source", src))
	defer func(start time.Time) {
		log.Info("Listing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	a, err := archive.Open(src, archive.WithCodePage(env.CodePage))
	if err != nil {
		return fmt.Errorf("unable to open source archive: %w", err)
	}
	defer a.Close()

	recs, err := Extract(ctx, a, &env.Cfg.Document, log)
	if err != nil {
		return fmt.Errorf("unable to extract images: %w", err)
	}
	env.Rpt.StoreData("listing.txt", dumpRecords(recs))

	out := os.Stdout
	if len(dst) > 0 {
		if out, err = os.Create(dst); err != nil {
			return fmt.Errorf("unable to create listing file '%s': %w", dst, err)
		}
		defer out.Close()
		env.Rpt.Store("result/"+filepath.Base(dst), dst)
	}
	if err := WriteListing(out, recs); err != nil {
		return err
	}

	if dir := cmd.String("images"); len(dir) > 0 {
		n, err := DumpImages(dir, recs, env.Overwrite)
		if err != nil {
			return fmt.Errorf("unable to save images: %w", err)
		}
		log.Info("Images saved", zap.String("dir", dir), zap.Int("count", n))
	}
	log.Debug("Listing prepared", zap.Int("images", len(recs)))
	return nil
}

// RunApply is "apply" command action: it applies updates file to the
// source archive and writes updated copy into destination directory.
func RunApply(ctx context.Context, cmd *cli.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("apply")

	src, err := sourcePath(cmd)
	if err != nil {
		return err
	}
	updatesPath := cmd.Args().Get(1)
	if len(updatesPath) == 0 {
		return errors.New("no updates file has been specified")
	}
	dst := cmd.Args().Get(2)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}
	if cmd.Args().Len() > 3 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[3:]))
	}
	prepareEnv(env, cmd, log)

	updates, err := LoadUpdates(updatesPath)
	if err != nil {
		return err
	}
	if updatesPath != "-" {
		env.Rpt.Store("updates/"+filepath.Base(updatesPath), updatesPath)
	}

	ctx, cancel, log := beginRequest(ctx, env, log)
	defer cancel()

	out := OutputPath(src, dst, requestID(ctx), &env.Cfg.Document, log)

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", out), zap.Int("updates", len(updates)))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	a, err := archive.Open(src, archive.WithCodePage(env.CodePage))
	if err != nil {
		return fmt.Errorf("unable to open source archive: %w", err)
	}
	defer a.Close()

	sum, err := UpdateFile(ctx, a, out, updates, &env.Cfg.Document, env.Overwrite, log)
	if err != nil {
		return err
	}
	env.Rpt.StoreData("summary.txt", dumpSummary(sum))
	env.Rpt.Store("result/"+filepath.Base(out), out)

	for _, issue := range multierr.Errors(sum.Issues) {
		log.Warn("Document was not updated", zap.Error(issue))
	}
	log.Info("Updates applied", zap.Int("documents", len(sum.Documents)), zap.Int("changed", len(sum.Changed)), zap.Int("skipped", len(sum.Skipped)))
	return nil
}

type requestKey struct{}

// beginRequest assigns id to the request, attaches it to the logger and
// limits request time when configured.
func beginRequest(ctx context.Context, env *state.LocalEnv, log *zap.Logger) (context.Context, context.CancelFunc, *zap.Logger) {
	id := "unknown"
	if u, err := uuid.NewV7(); err == nil {
		id = u.String()
	} else {
		log.Warn("Unable to generate request id", zap.Error(err))
	}
	ctx = context.WithValue(ctx, requestKey{}, id)
	log = log.With(zap.String("request", id))

	if timeout := env.Cfg.Document.Timeout; timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		return ctx, cancel, log
	}
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, log
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestKey{}).(string)
	return id
}

func sourcePath(cmd *cli.Command) (string, error) {
	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return "", errors.New("no input source has been specified")
	}
	return filepath.Abs(src)
}

func prepareEnv(env *state.LocalEnv, cmd *cli.Command, log *zap.Logger) {
	env.Overwrite = cmd.Bool("overwrite")

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	cp := cmd.String("force-zip-cp")
	if len(cp) == 0 {
		return
	}
	var err error
	env.CodePage, err = ianaindex.IANA.Encoding(cp)
	if err != nil || env.CodePage == nil {
		log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
		env.CodePage = nil
		return
	}
	n, _ := ianaindex.IANA.Name(env.CodePage)
	log.Debug("Forcefully converting all non UTF-8 file names in archive", zap.String("charset", n))
}
