package cmd

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/s-hammon/pescan/internal/logging"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var level string

	root := &cobra.Command{
		Use:           "pescan",
		Short:         "locate code in PE images by byte signature",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetDefault(logging.New(cmd.ErrOrStderr(), level))
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", "", "debug, info, warn or error (default $"+logging.EnvLevel+" or warn)")

	root.AddCommand(newFindCmd(), newResolveCmd(), newViewCmd())
	return root
}

func Execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		return 1
	}

	return 0
}
