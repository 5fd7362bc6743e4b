// Command watchping pings a host and keeps its statistics on a refreshing screen.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// exitError carries the process exit status.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "watchping [flags] host",
		Short: "ping a host and watch its statistics",
		Long: `watchping sends ICMP echo requests to host and redraws the reply lines and
the running statistics every refresh interval, the way watch would redraw ping.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(v, cmd.Flags(), cfgFile)
			if err != nil {
				return err
			}
			logger, err := setupLogger(c.Log)
			if err != nil {
				return err
			}
			title := "watchping " + strings.Join(os.Args[1:], " ")
			return run(cmd.Context(), c, args[0], title, logger)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "YAML configuration file")
	addFlags(cmd.Flags())
	if err := bindFlags(v, cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	var ee exitError
	switch {
	case err == nil:
	case errors.As(err, &ee):
		os.Exit(ee.code)
	default:
		fmt.Fprintln(os.Stderr, "watchping:", err)
		os.Exit(2)
	}
}
