// Command taodmd is the deformable-mirror server binary of
// SPEC_FULL.md's component table: it owns a remote mirror, drives it
// with mirror/simdriver (until a real Driver gains a home here), and
// advertises the mirror's shmid under the configuration directory.
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
	"github.com/WitIOT/tao/mirror"
	"github.com/WitIOT/tao/mirror/simdriver"
	"github.com/WitIOT/tao/shm"
)

// Config is taodmd's YAML configuration: a fully-populated
// Dim1 x Dim2 actuator grid (every cell active, 0..Dim1*Dim2-1) bounded
// to [Cmin, Cmax].
type Config struct {
	config.ProcessConfig `yaml:",inline"`

	Dim1  int64   `yaml:"dim1"`
	Dim2  int64   `yaml:"dim2"`
	Cmin  float64 `yaml:"cmin"`
	Cmax  float64 `yaml:"cmax"`
	Nbufs int     `yaml:"nbufs"`
}

func defaultConfig() Config {
	cfg := Config{Dim1: 11, Dim2: 11, Cmin: -1, Cmax: 1, Nbufs: 8}
	cfg.ProcessConfig = *config.DefaultProcessConfig()
	return cfg
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "taodmd",
	Short: "Remote deformable-mirror server for a simulated actuator grid",
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
		fmt.Fprintf(os.Stderr, "taodmd: %v\n", err)
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

func identityLayout(n int64) []int32 {
	inds := make([]int32, n)
	for i := range inds {
		inds[i] = int32(i)
	}
	return inds
}

func run(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return fmt.Errorf("taodmd: %w", err)
	}

	log, _, err := logging.Init(&logging.Config{Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("taodmd: %w", err)
	}
	defer log.Sync()
	log = logging.ForOwner(log, cfg.Owner)

	inds := identityLayout(cfg.Dim1 * cfg.Dim2)
	obj, err := mirror.Create(cfg.Owner, cfg.Dim1, cfg.Dim2, inds, cfg.Cmin, cfg.Cmax, cfg.Nbufs, shm.Perm{})
	if err != nil {
		return fmt.Errorf("taodmd: create mirror: %w", err)
	}
	defer obj.Detach()

	shmid := obj.Remote().Segment.Shmid
	if err := config.WriteShmid(cfg.AdvertisePath, shmid); err != nil {
		return fmt.Errorf("taodmd: advertise shmid: %w", err)
	}
	defer config.Default.Remove(cfg.AdvertisePath)
	log.Infow("mirror created", "shmid", shmid, "advertise_path", cfg.AdvertisePath, "nacts", len(inds))

	srv := mirror.NewServer(obj, simdriver.New(cfg.Owner))

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
