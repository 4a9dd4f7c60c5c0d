package strategy

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/hostbackup/internal/backup"
	"github.com/edvin/hostbackup/internal/model"
	"github.com/edvin/hostbackup/internal/platform"
)

// Web backs up a filesystem tree as a reproducible tar.gz. Entries are
// written in lexical order with ownership and access times stripped, so an
// unchanged tree produces a byte-identical artifact.
type Web struct {
	logger zerolog.Logger
}

// NewWeb creates a Web strategy.
func NewWeb(logger zerolog.Logger) *Web {
	return &Web{logger: logger.With().Str("strategy", model.ProjectTypeWeb).Logger()}
}

func (w *Web) Extension() string { return ".tar.gz" }

func (w *Web) ScratchTarget(_ model.Project, dir string) string {
	return filepath.Join(dir, "site")
}

func (w *Web) Backup(ctx context.Context, project model.Project, scratchDir string) (string, error) {
	root := project.Source
	info, err := os.Stat(root)
	if err != nil {
		return "", &backup.BackupFailure{Cause: "stat source tree", Err: err}
	}
	if !info.IsDir() {
		return "", &backup.BackupFailure{Cause: fmt.Sprintf("source %s is not a directory", root)}
	}

	out := filepath.Join(scratchDir, project.ID+w.Extension())
	if err := w.writeArchive(ctx, root, out); err != nil {
		os.Remove(out)
		return "", &backup.BackupFailure{Cause: "archive source tree", Err: err}
	}
	w.logger.Debug().Str("project", project.ID).Str("source", root).Str("artifact", out).Msg("tree archived")
	return out, nil
}

func (w *Web) writeArchive(ctx context.Context, root, out string) (err error) {
	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	// WalkDir visits entries in lexical order.
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return addEntry(tw, p, filepath.ToSlash(rel), d)
	})
	if walkErr != nil {
		return walkErr
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

func addEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	switch mode := info.Mode(); {
	case mode.IsRegular(), mode.IsDir():
	case mode&fs.ModeSymlink != 0:
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	default:
		// Devices, sockets and pipes are not site content.
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return fmt.Errorf("header for %s: %w", name, err)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""
	hdr.ModTime = info.ModTime().UTC().Truncate(time.Second)
	hdr.AccessTime, hdr.ChangeTime = time.Time{}, time.Time{}
	hdr.PAXRecords = nil
	hdr.Format = tar.FormatPAX

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	src, err := os.Open(p)
	if err != nil {
		return err
	}
	defer src.Close()
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("copy %s: %w", name, err)
	}
	return nil
}

// Restore extracts the archive into a staging directory next to the target
// and swaps it into place, so a repeated restore yields the same tree.
func (w *Web) Restore(ctx context.Context, artifactPath string, project model.Project, opts backup.RestoreOptions) error {
	target := opts.Target
	if target == "" {
		target = project.Source
	}
	target = filepath.Clean(target)

	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return &backup.RestoreFailure{Cause: "create target parent", Err: err}
	}
	staging, err := os.MkdirTemp(parent, "."+filepath.Base(target)+".restore-")
	if err != nil {
		return &backup.RestoreFailure{Cause: "create staging directory", Err: err}
	}
	defer os.RemoveAll(staging)

	if err := extractArchive(ctx, artifactPath, staging); err != nil {
		var rf *backup.RestoreFailure
		if errors.As(err, &rf) {
			return err
		}
		return &backup.RestoreFailure{Cause: "extract archive", Err: err}
	}

	if err := swapDir(staging, target); err != nil {
		return &backup.RestoreFailure{Cause: "swap restored tree into place", Err: err}
	}
	w.logger.Info().Str("project", project.ID).Str("target", target).Msg("tree restored")
	return nil
}

func extractArchive(ctx context.Context, artifactPath, dest string) error {
	f, err := os.Open(artifactPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}

		name, err := safeEntryName(hdr.Name)
		if err != nil {
			return &backup.RestoreFailure{Cause: err.Error()}
		}
		p := filepath.Join(dest, filepath.FromSlash(name))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(p, hdr.FileInfo().Mode().Perm()|0o700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, p, hdr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if !symlinkStaysInside(name, hdr.Linkname) {
				return &backup.RestoreFailure{Cause: fmt.Sprintf("symlink %s points outside the restore target", hdr.Name)}
			}
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, p); err != nil {
				return err
			}
		default:
			// Only what Backup writes is restored.
		}
	}
}

func writeEntry(r io.Reader, p string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, hdr.FileInfo().Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", hdr.Name, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(p, hdr.ModTime, hdr.ModTime)
}

// safeEntryName rejects entry names that would land outside the extraction
// root.
func safeEntryName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return "", fmt.Errorf("archive entry %q resolves outside the restore target", name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("archive entry %q resolves outside the restore target", name)
	}
	return clean, nil
}

func symlinkStaysInside(name, link string) bool {
	if link == "" || path.IsAbs(link) {
		return false
	}
	resolved := path.Clean(path.Join(path.Dir(name), link))
	return resolved != ".." && !strings.HasPrefix(resolved, "../")
}

// swapDir replaces target with staging. The previous tree is moved aside
// first and removed only after staging is in place.
func swapDir(staging, target string) error {
	var old string
	if _, err := os.Lstat(target); err == nil {
		old = target + ".old-" + platform.NewName("")
		if err := os.Rename(target, old); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.Rename(staging, target); err != nil {
		if old != "" {
			os.Rename(old, target)
		}
		return err
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return err
	}
	if old != "" {
		return os.RemoveAll(old)
	}
	return nil
}
