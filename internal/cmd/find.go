package cmd

import (
	"fmt"
	"io"

	"github.com/s-hammon/p"
	"github.com/s-hammon/pescan"
	"github.com/spf13/cobra"
)

type findOptions struct {
	src      sourceOptions
	all      bool
	window   pescan.Window
	prologue bool
	call     bool
}

func newFindCmd() *cobra.Command {
	var opts findOptions

	cmd := &cobra.Command{
		Use:   "find <pattern>",
		Short: "print where a signature matches",
		Example: `  pescan find -f game.exe "55 8B EC ?? ?? 83 EC"
  pescan find --process game --all --call "E8 ?? ?? ?? ?? 8B 45 FC"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, label, err := opts.src.load(cmd.Context())
			if err != nil {
				return err
			}

			f := pescan.NewFinder(img)
			if opts.all {
				err = f.FindAllIn(args[0], opts.window)
			} else {
				err = f.FindIn(args[0], opts.window)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printHeader(out, img, label)
			if f.Count() == 0 {
				return fmt.Errorf("%w: %s", pescan.ErrNotFound, args[0])
			}
			for i := range f.Count() {
				fmt.Fprintln(out, opts.describe(img, f, i))
			}
			return nil
		},
	}

	opts.src.register(cmd)
	fs := cmd.Flags()
	fs.BoolVarP(&opts.all, "all", "a", false, "report every match, not just the first")
	fs.IntVar(&opts.window.Offset, "offset", 0, "start scanning at this image offset")
	fs.IntVar(&opts.window.Limit, "limit", 0, "scan at most this many bytes (0: no limit)")
	fs.BoolVar(&opts.window.Backward, "backward", false, "scan toward the start of the image")
	fs.BoolVar(&opts.prologue, "prologue", false, "also print the enclosing function start")
	fs.BoolVar(&opts.call, "call", false, "also print the target of the rel32 call at each match")
	return cmd
}

func printHeader(w io.Writer, img *pescan.Image, label string) {
	fmt.Fprintf(w, "image   %s\n", label)
	fmt.Fprintf(w, "base    %#x\n", img.Base())
	fmt.Fprintf(w, "size    %#x\n", img.Size())
	if img.LoadAddress() != 0 {
		fmt.Fprintf(w, "loaded  %#x\n", img.LoadAddress())
	}
}

// describe formats match i. Each derived address takes its own cursor since
// refinements move it.
func (o findOptions) describe(img *pescan.Image, f *pescan.Finder, i int) string {
	c, _ := f.At(i)
	addr, _ := c.Offset()
	line := p.Format("%4d  +%#06x  %#x", i, c.Start(), addr)
	if img.LoadAddress() != 0 {
		line += p.Format("  rt %#x", img.LoadAddress()+uint64(c.Start()))
	}

	if o.prologue {
		c, _ := f.At(i)
		if fn, err := c.EnclosingPrologue().Offset(); err != nil {
			line += "  fn ?"
		} else {
			line += p.Format("  fn %#x", fn)
		}
	}
	if o.call {
		c, _ := f.At(i)
		if target, err := c.CallTarget(); err != nil {
			line += "  call ?"
		} else {
			line += p.Format("  call %#x", target)
		}
	}
	return line
}
