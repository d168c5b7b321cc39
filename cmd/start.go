package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gigboard/flagcore/pkg/refresh"
	"github.com/gigboard/flagcore/pkg/runtime"
	"github.com/gigboard/flagcore/pkg/service"
	"github.com/gigboard/flagcore/pkg/sync"
)

var (
	syncProvider    string
	uri             string
	httpServicePort int32
	refreshInterval time.Duration
	cachePath       string
)

func findSyncer(name string) (sync.ISync, error) {
	registeredSync := map[string]sync.ISync{
		"filepath": &sync.FilePathSync{URI: viper.GetString("uri")},
		"http":     &sync.HTTPSync{URI: viper.GetString("uri")},
	}
	v, ok := registeredSync[name]
	if !ok {
		return nil, errors.New("no sync-provider set")
	}
	log.Debugf("Using %s sync-provider", name)
	return v, nil
}

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the flag engine",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		if viper.GetString("uri") == "" {
			return errors.New("no uri set")
		}

		syncer, err := findSyncer(viper.GetString("sync-provider"))
		if err != nil {
			return err
		}

		rt := runtime.New(runtime.Options{
			Syncer: syncer,
			Refresh: refresh.Config{
				Interval:  viper.GetDuration("refresh-interval"),
				CachePath: viper.GetString("cache-path"),
			},
			Service: &service.HTTPServiceConfiguration{
				Port: viper.GetInt32("port"),
			},
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errc := make(chan error, 1)
		go func() {
			errc <- rt.Start(ctx)
		}()

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

		select {
		case s := <-sig:
			log.Infof("shutting down: %s", s)
			cancel()
			return <-errc
		case err := <-errc:
			return fmt.Errorf("runtime stopped: %w", err)
		}
	},
}

func init() {
	startCmd.Flags().Int32VarP(&httpServicePort, "port", "p", 8013, "Port to listen on")
	startCmd.Flags().StringVarP(&syncProvider, "sync-provider", "y", "filepath", "Set a sync provider e.g. filepath or http")
	startCmd.Flags().StringVarP(&uri, "uri", "f", "", "Set a sync provider uri to read definitions from, a filepath or url")
	startCmd.Flags().DurationVarP(&refreshInterval, "refresh-interval", "i", 30*time.Second, "Interval between scheduled refreshes")
	startCmd.Flags().StringVarP(&cachePath, "cache-path", "c", "", "Optional file the last-good definitions are cached to")

	for _, name := range []string{"port", "sync-provider", "uri", "refresh-interval", "cache-path"} {
		_ = viper.BindPFlag(name, startCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(startCmd)
}
