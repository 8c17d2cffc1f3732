// devrun serves a web module from its sources and sibling modules,
// restarting the serving context when the classpath or the served tree changes.
//
// Commands:
//
//	devrun run        Serve the project until interrupted (default)
//	devrun optimize   Run an r.js style optimizer script over the served tree
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ngicks/go-devrun/config"
	"github.com/ngicks/go-devrun/overlay"
	"github.com/ngicks/go-devrun/project/descriptor"
	"github.com/ngicks/go-devrun/rebuild"
	"github.com/ngicks/go-devrun/scriptfs"
	"github.com/ngicks/go-devrun/serving/fusectx"
	"github.com/ngicks/go-devrun/serving/httpctx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var logger = logrus.New()

func main() {
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = cmdRun(args)
	case "optimize":
		err = cmdOptimize(args)
	case "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.WithError(err).Error("devrun failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: devrun [command] [options]

Commands:
  run        Serve the project until interrupted (default)
  optimize   Run an optimizer script over the served tree

Run "devrun <command> -h" for the options of a command.`)
}

type common struct {
	project    string
	configPath string
	repository string
	verbose    bool
}

func (c *common) register(fset *flag.FlagSet) {
	home, _ := os.UserHomeDir()
	fset.StringVar(&c.project, "project", ".", "project root directory or root descriptor")
	fset.StringVar(&c.configPath, "config", "", "config file (default <project>/"+config.DefaultFileName+" if present)")
	fset.StringVar(&c.repository, "repository", filepath.Join(home, ".devrun", "repository"), "artifact repository directory")
	fset.BoolVar(&c.verbose, "verbose", false, "enable debug logging")
}

func (c *common) load(host afero.Fs) (config.Config, error) {
	if c.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	path := c.configPath
	if path == "" {
		candidate := filepath.Join(c.project, config.DefaultFileName)
		if ok, _ := afero.Exists(host, candidate); !ok {
			logger.Debug("no config file, using defaults")
			return config.Default(), nil
		}
		path = candidate
	}
	logger.WithField("config", path).Debug("loading config")
	return config.Load(host, path)
}

func (c *common) orchestrator(host afero.Fs, cfg config.Config, sc rebuild.ServingContext) (*rebuild.Orchestrator, error) {
	proj := descriptor.New(host, c.project, c.repository)
	return rebuild.New(cfg.Rebuild(), rebuild.Deps{
		Host:     host,
		Loader:   proj,
		Resolver: proj,
		Filter:   descriptor.NewFilter(host, logger, cfg.FilterCommand...),
		Paths:    proj,
		Context:  sc,
		Logger:   logger,
	})
}

func cmdRun(args []string) error {
	fset := flag.NewFlagSet("run", flag.ExitOnError)
	var c common
	c.register(fset)
	listen := fset.String("listen", "", "HTTP listen address, overrides the config")
	mount := fset.String("mount", "", "FUSE mount point, serves the tree as a filesystem instead of HTTP")
	_ = fset.Parse(args)

	host := afero.NewOsFs()
	cfg, err := c.load(host)
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *mount != "" {
		cfg.FuseMount = *mount
	}

	var sc rebuild.ServingContext
	if cfg.FuseMount != "" {
		sc = fusectx.New(filepath.Clean(cfg.FuseMount), logger)
	} else {
		sc = httpctx.New(cfg.Listen, logger)
	}

	o, err := c.orchestrator(host, cfg, sc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = o.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("interrupted, shut down")
		return nil
	}
	return err
}

func cmdOptimize(args []string) error {
	fset := flag.NewFlagSet("optimize", flag.ExitOnError)
	var c common
	c.register(fset)
	script := fset.String("script", "", "optimizer script, e.g. r.js (required)")
	profile := fset.String("profile", "", "build profile, mounted under /build (required)")
	_ = fset.Parse(args)
	if *script == "" || *profile == "" {
		fset.Usage()
		return errors.New("-script and -profile are required")
	}

	host := afero.NewOsFs()
	cfg, err := c.load(host)
	if err != nil {
		return err
	}
	src, err := afero.ReadFile(host, *script)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	o, err := c.orchestrator(host, cfg, nopContext{})
	if err != nil {
		return err
	}
	if err := o.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := o.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.WithError(err).Warn("shutdown")
		}
	}()

	profileDir, err := filepath.Abs(filepath.Dir(*profile))
	if err != nil {
		return err
	}
	build, err := overlay.NewOsDirLayer(host, "build", profileDir)
	if err != nil {
		return err
	}
	// the served layers are owned by o. Only the build layer is closed here.
	fsys := overlay.New(append(o.Current().Layers(), build)...)
	defer overlay.New(build).Close()

	_, err = scriptfs.Optimize(ctx, fsys, string(src), *profile, logger)
	return err
}

// nopContext serves nothing. It lets the orchestrator compose the tree for one-shot commands.
type nopContext struct{}

func (nopContext) SetBaseResource(*overlay.Fs) {}
func (nopContext) SetClassLoader([]string)     {}
func (nopContext) Start(context.Context) error { return nil }
func (nopContext) Stop(context.Context) error  { return nil }
