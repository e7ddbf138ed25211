package swapper

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/catalogfi/swapper/pkg/swapperd"
)

func Run() error {
	var cmd = &cobra.Command{
		Use: "swapper - atomic swap lifecycle daemon",
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
		DisableAutoGenTag: true,
	}

	cmd.AddCommand(Start())
	return cmd.Execute()
}

// Start runs the daemon until interrupted.
func Start() *cobra.Command {
	var (
		configPath string
		dev        bool
	)

	var cmd = &cobra.Command{
		Use:   "start",
		Short: "Start the atomic swap lifecycle daemon",
		RunE: func(c *cobra.Command, args []string) error {
			logger, err := newLogger(dev)
			if err != nil {
				return err
			}

			config, err := swapperd.LoadConfig(configPath)
			if err != nil {
				return err
			}

			daemon, err := swapperd.New(config, logger)
			if err != nil {
				return err
			}
			if err := daemon.Start(); err != nil {
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			<-sigs

			logger.Info("shutting down")
			daemon.Stop()
			return nil
		},
		DisableAutoGenTag: true,
	}
	cmd.Flags().StringVar(&configPath, "config", "config.yaml", "path of the config file")
	cmd.Flags().BoolVar(&dev, "dev", false, "use the development logger")
	return cmd
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
