// Command taowfsd is the wavefront-sensor server binary of
// SPEC_FULL.md's component table: it owns a remote sensor, sized at
// start to fixed index-grid/sub-image capacities, and advertises its
// shmid under the configuration directory. Unlike taocamd/taodmd it
// has no upstream to attach at startup — a client configures it at
// runtime via sensor.Object.Configure, naming the camera to measure.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/WitIOT/tao/config"
	"github.com/WitIOT/tao/internal/xcmd"
	"github.com/WitIOT/tao/logging"
	"github.com/WitIOT/tao/sensor"
	"github.com/WitIOT/tao/shm"
)

// Config is taowfsd's YAML configuration: the immutable index-grid and
// sub-image capacities a client's later Configure call is bounded by.
type Config struct {
	config.ProcessConfig `yaml:",inline"`

	MaxNinds int64 `yaml:"max_ninds"`
	MaxNsubs int64 `yaml:"max_nsubs"`
	Nbufs    int   `yaml:"nbufs"`
}

func defaultConfig() Config {
	cfg := Config{MaxNinds: 400, MaxNsubs: 200, Nbufs: 8}
	cfg.ProcessConfig = *config.DefaultProcessConfig()
	return cfg
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "taowfsd",
	Short: "Remote wavefront-sensor server",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := run(configPath); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file (required)")
	rootCmd.MarkFlagRequired("config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "taowfsd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func run(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("taowfsd: %w", err)
	}

	log, _, err := logging.Init(&logging.Config{Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("taowfsd: %w", err)
	}
	defer log.Sync()
	log = logging.ForOwner(log, cfg.Owner)

	obj, err := sensor.Create(cfg.Owner, cfg.Nbufs, cfg.MaxNinds, cfg.MaxNsubs, shm.Perm{})
	if err != nil {
		return fmt.Errorf("taowfsd: create sensor: %w", err)
	}
	defer obj.Detach()

	shmid := obj.Remote().Segment.Shmid
	if err := config.WriteShmid(cfg.AdvertisePath, shmid); err != nil {
		return fmt.Errorf("taowfsd: advertise shmid: %w", err)
	}
	defer config.Default.Remove(cfg.AdvertisePath)
	log.Infow("sensor created", "shmid", shmid, "advertise_path", cfg.AdvertisePath)

	srv := sensor.NewServer(obj)

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error { return srv.Run(ctx) })
	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		log.Infow("caught signal, shutting down", "err", err)
		return err
	})
	return wg.Wait()
}
