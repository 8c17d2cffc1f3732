// Package scriptfs runs third-party scripts against an overlay instead of the host filesystem.
//
// Scripts see the java.io.File, java.io.FileInputStream and java.io.FileOutputStream
// constructors, also reachable under Packages.java.io, all of which resolve paths
// through the overlay handed to [Run]. No other way to reach the host exists in the runtime.
package scriptfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/dop251/goja"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/sirupsen/logrus"
)

// ScriptError is a script that failed to compile or threw.
type ScriptError struct {
	Script string
	// Message is the thrown value as a string.
	Message string
	// Stack is the script stack trace, if any.
	Stack string
	Err   error
}

func (e *ScriptError) Error() string {
	return e.Script + ": " + e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

type Options struct {
	Fs *overlay.Fs
	// Name names the script in stack traces.
	Name   string
	Source string
	// Args is exposed to the script as the arguments array.
	Args   []string
	Logger logrus.FieldLogger
}

// Run executes opts.Source in a fresh runtime and returns what it evaluated to.
//
// The overlay is installed for the duration of the call only. Objects escaping
// the run, e.g. a returned function, fail on any file access afterwards.
// print writes one info line per output line through opts.Logger.
// Cancelling ctx interrupts the script.
func Run(ctx context.Context, opts Options) (goja.Value, error) {
	if opts.Fs == nil {
		return nil, errors.New("scriptfs: nil Fs")
	}
	name := opts.Name
	if name == "" {
		name = "script.js"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("script", name)

	prog, err := goja.Compile(name, opts.Source, false)
	if err != nil {
		return nil, &ScriptError{Script: name, Message: err.Error(), Err: err}
	}

	var binding overlay.Binding
	remove, err := opts.Fs.InstallIn(&binding)
	if err != nil {
		return nil, err
	}
	defer remove()

	if debugEnabled(logger) {
		logTree(logger, opts.Fs)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	if err := install(vm, &binding, logger, opts.Args); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(context.Cause(ctx)) })
	defer stop()

	v, err := vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%s: interrupted: %w", name, context.Cause(ctx))
		}
		var ex *goja.Exception
		if errors.As(err, &ex) {
			msg := "undefined"
			if ex.Value() != nil {
				msg = ex.Value().String()
			}
			return nil, &ScriptError{Script: name, Message: msg, Stack: ex.String(), Err: ex}
		}
		return nil, &ScriptError{Script: name, Message: err.Error(), Err: err}
	}
	return v, nil
}

// Optimize runs an r.js style optimizer over fsys with the profile placed under /build,
// i.e. with arguments ["-o", "/build/<base name of profile>"].
func Optimize(ctx context.Context, fsys *overlay.Fs, source, profile string, logger logrus.FieldLogger) (goja.Value, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithField("profile", profile).Info("applying optimizer profile")
	return Run(ctx, Options{
		Fs:     fsys,
		Name:   "r.js",
		Source: source,
		Args:   []string{"-o", "/build/" + path.Base(profile)},
		Logger: logger,
	})
}

func install(vm *goja.Runtime, b *overlay.Binding, logger logrus.FieldLogger, args []string) error {
	s := &shims{vm: vm, b: b}

	javaIO := vm.NewObject()
	for name, ctor := range map[string]func(goja.ConstructorCall) *goja.Object{
		"File":             s.newFile,
		"FileInputStream":  s.newInputStream,
		"FileOutputStream": s.newOutputStream,
	} {
		if err := javaIO.Set(name, ctor); err != nil {
			return err
		}
	}
	java := vm.NewObject()
	if err := java.Set("io", javaIO); err != nil {
		return err
	}
	packages := vm.NewObject()
	if err := packages.Set("java", java); err != nil {
		return err
	}

	argv := make([]any, len(args))
	for i, a := range args {
		argv[i] = a
	}

	for name, v := range map[string]any{
		"java":      java,
		"Packages":  packages,
		"arguments": vm.NewArray(argv...),
		"print":     printer(logger),
	} {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

var lineBreak = regexp.MustCompile(`\r\n?|\n\r?`)

func printer(logger logrus.FieldLogger) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		for _, line := range lineBreak.Split(strings.Join(parts, " "), -1) {
			logger.Info(line)
		}
		return goja.Undefined()
	}
}

func debugEnabled(logger logrus.FieldLogger) bool {
	switch l := logger.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return false
}

func logTree(logger logrus.FieldLogger, fsys *overlay.Fs) {
	logger.Debug("virtual filesystem exposed to script:")
	_ = fs.WalkDir(fsys.IoFS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || p == "." {
			return nil
		}
		kind := "file"
		if d.IsDir() {
			kind = "dir"
		}
		logger.Debugf("  /%s [%s]", p, kind)
		return nil
	})
}
