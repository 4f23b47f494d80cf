package main

import (
	"errors"
	"flag"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"opfinder/internal/config"
	"opfinder/internal/correlate"
	"opfinder/internal/pex"
	"opfinder/internal/xref"
)

// imageFlags are shared by every subcommand that analyzes an image.
type imageFlags struct {
	config  string
	image   string
	verbose bool
}

func (f *imageFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.config, "config", config.DefaultPath, "configuration document")
	fs.StringVar(&f.image, "image", "", "executable to analyze (default: GamePath from the configuration)")
	fs.BoolVar(&f.verbose, "v", false, "debug logging")
}

// loadConfig returns the configuration. A missing document is an error only
// when required is set.
func (f *imageFlags) loadConfig(required bool) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, config.ErrNotFound) {
		if required {
			return nil, fmt.Errorf("configuration file not found: %s", f.config)
		}
		log.Debugf("no configuration at %s, using defaults", f.config)
		return &config.Config{}, nil
	}
	return nil, err
}

// session is an opened image with its index and layout.
type session struct {
	cfg    *config.Config
	img    *pex.Image
	idx    *xref.Index
	layout correlate.Layout
}

func (f *imageFlags) open(requireConfig bool) (*session, error) {
	setVerbose(f.verbose)
	cfg, err := f.loadConfig(requireConfig)
	if err != nil {
		return nil, err
	}
	path := f.image
	if path == "" {
		path = cfg.GamePath
	}
	if path == "" {
		return nil, errors.New("no executable: pass -image or set GamePath in the configuration")
	}

	var opts []pex.Option
	if cfg.Layout.TrapByte != nil {
		opts = append(opts, pex.WithTrap(*cfg.Layout.TrapByte))
	}
	img, err := pex.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	layout := correlate.NewLayout(cfg.Layout, img)
	log.WithFields(log.Fields{
		"path":       path,
		"size":       img.Len(),
		"block_size": fmt.Sprintf("0x%X", layout.BlockSize),
	}).Debug("image loaded")

	return &session{
		cfg:    cfg,
		img:    img,
		idx:    xref.New(img, xref.WithFunctionWindow(layout.FunctionWindow)),
		layout: layout,
	}, nil
}

func (s *session) finder() *correlate.Finder {
	return correlate.NewFinder(s.img, s.idx, s.layout)
}

func parseAddr(s string) (uint64, error) {
	if s == "" {
		return 0, errors.New("-addr is required")
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return v, nil
}
