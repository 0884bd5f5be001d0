package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/s-hammon/p"
	"github.com/s-hammon/pescan"
	"github.com/s-hammon/pescan/internal/memscan"
	"github.com/spf13/cobra"
)

// sourceOptions selects where an image comes from. Exactly one of file, pid,
// process or self is set.
type sourceOptions struct {
	file    string
	pid     int
	process string
	module  string
	self    bool
	wait    time.Duration
	raw     bool
	base    uint64
}

func (o *sourceOptions) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.file, "file", "f", "", "read the image from a file")
	fs.IntVarP(&o.pid, "pid", "p", 0, "read the image out of a running process")
	fs.StringVar(&o.process, "process", "", "like --pid, matching a process name substring")
	fs.BoolVar(&o.self, "self", false, "read this process's own image")
	fs.StringVarP(&o.module, "module", "m", "", "module to read from the process (default: primary module)")
	fs.DurationVar(&o.wait, "wait", 5*time.Second, "how long to let the process settle before reading")
	fs.BoolVar(&o.raw, "raw", false, "treat --file as a headerless dump")
	fs.Uint64Var(&o.base, "base", 0, "base address of a --raw dump")
}

func (o *sourceOptions) validate() error {
	n := 0
	for _, set := range []bool{o.file != "", o.pid != 0, o.process != "", o.self} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.New("select exactly one of --file, --pid, --process or --self")
	}
	if o.raw && o.file == "" {
		return errors.New("--raw requires --file")
	}
	return nil
}

// load returns the image and a label naming its source.
func (o *sourceOptions) load(ctx context.Context) (*pescan.Image, string, error) {
	if err := o.validate(); err != nil {
		return nil, "", err
	}

	switch {
	case o.file != "" && o.raw:
		data, err := os.ReadFile(o.file)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", pescan.ErrIO, err)
		}
		return pescan.NewRawImage(data, o.base), filepath.Base(o.file), nil
	case o.file != "":
		img, err := pescan.LoadFile(o.file)
		return img, filepath.Base(o.file), err
	case o.self:
		img, err := pescan.LoadSelf(ctx)
		return img, "self", err
	}

	pid := o.pid
	if o.process != "" {
		var err error
		pid, err = memscan.FindPidByName(ctx, o.process)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", pescan.ErrNotFound, err)
		}
		log.Debug("found process", "name", o.process, "pid", pid)
	}

	proc, err := memscan.Open(pid)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", pescan.ErrAccess, err)
	}
	defer func() {
		if err := proc.Close(); err != nil {
			log.Warn("close process", "pid", pid, "err", err)
		}
	}()

	img, err := pescan.LoadProcess(ctx, proc, o.module, o.wait)
	label := p.Format("pid %d", pid)
	if o.module != "" {
		label += " " + o.module
	}
	return img, label, err
}
