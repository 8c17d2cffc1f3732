package descriptor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ngicks/go-devrun/fsutil"
	"github.com/ngicks/go-devrun/project"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var _ project.ResourceFilter = (*Filter)(nil)

// Filter processes resources in-process, and optionally hands whole goals
// to an external build command.
type Filter struct {
	host   afero.Fs
	logger logrus.FieldLogger
	// command, when non empty, is run as command... -f descriptor goal by Invoke.
	command []string
}

func NewFilter(host afero.Fs, logger logrus.FieldLogger, command ...string) *Filter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Filter{host: host, logger: logger, command: command}
}

var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Filter copies every resource directory into req.OutputDir.
// In directories with filtering enabled ${key} placeholders are replaced
// by req.Properties; unknown keys are left as is.
func (f *Filter) Filter(ctx context.Context, req project.FilterRequest) error {
	for _, r := range req.Resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := f.host.Stat(r.Dir); err != nil {
			if fsutil.IsMissing(err) {
				continue
			}
			return fmt.Errorf("%w: %w", project.ErrFilteringFailed, err)
		}

		if err := f.host.MkdirAll(req.OutputDir, fs.ModePerm); err != nil {
			return fmt.Errorf("%w: %w", project.ErrFilteringFailed, err)
		}

		var err error
		if r.Filtering {
			err = f.filterDir(r.Dir, req)
		} else {
			_, err = fsutil.CopyFsOption[afero.Fs, afero.File]{OnlyNewer: true}.CopyAll(
				f.host,
				afero.NewIOFS(afero.NewBasePathFs(f.host, r.Dir)),
				req.OutputDir,
			)
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %w", project.ErrFilteringFailed, r.Dir, err)
		}
	}
	return nil
}

func (f *Filter) filterDir(dir string, req project.FilterRequest) error {
	return afero.Walk(f.host, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(req.OutputDir, rel)
		if info.IsDir() {
			return f.host.MkdirAll(dst, fs.ModePerm)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		b, err := afero.ReadFile(f.host, path)
		if err != nil {
			return err
		}
		b = placeholder.ReplaceAllFunc(b, func(m []byte) []byte {
			key := string(m[2 : len(m)-1])
			if v, ok := req.Properties[key]; ok {
				return []byte(v)
			}
			return m
		})
		return fsutil.SafeWrite[afero.File](f.host, dst, bytes.NewReader(b), info.Mode().Perm())
	})
}

// Invoke runs the configured command for descriptor and goal, logging its output line by line.
// It returns [project.ErrNoInvoker] when no command is configured.
func (f *Filter) Invoke(ctx context.Context, descriptor string, goal string) error {
	if len(f.command) == 0 {
		return project.ErrNoInvoker
	}
	args := append(append([]string{}, f.command[1:]...), "-f", descriptor, goal)
	cmd := exec.CommandContext(ctx, f.command[0], args...)
	cmd.Dir = filepath.Dir(descriptor)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	logger := f.logger.WithField("goal", goal)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sc := bufio.NewScanner(pr)
		for sc.Scan() {
			logger.Info(strings.TrimRight(sc.Text(), "\r"))
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := cmd.Run()
	_ = pw.Close()
	<-done
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", project.ErrFilteringFailed, f.command[0], goal, err)
	}
	return nil
}
