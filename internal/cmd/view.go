package cmd

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/s-hammon/pescan"
	"github.com/s-hammon/pescan/internal/ui"
	"github.com/spf13/cobra"
)

func newViewCmd() *cobra.Command {
	var (
		src    sourceOptions
		window pescan.Window
	)

	cmd := &cobra.Command{
		Use:   "view <pattern>",
		Short: "browse every match of a signature in a hex view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, label, err := src.load(cmd.Context())
			if err != nil {
				return err
			}

			f := pescan.NewFinder(img)
			if err := f.FindAllIn(args[0], window); err != nil {
				return err
			}

			s, err := tcell.NewScreen()
			if err != nil {
				return fmt.Errorf("failed to create screen: %w", err)
			}
			if err := s.Init(); err != nil {
				return fmt.Errorf("failed to init screen: %w", err)
			}
			defer s.Fini()

			return ui.RunViewer(s, img, f.Matches(), label)
		},
	}

	src.register(cmd)
	fs := cmd.Flags()
	fs.IntVar(&window.Offset, "offset", 0, "start scanning at this image offset")
	fs.IntVar(&window.Limit, "limit", 0, "scan at most this many bytes (0: no limit)")
	fs.BoolVar(&window.Backward, "backward", false, "scan toward the start of the image")
	return cmd
}
