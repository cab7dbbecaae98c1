// Command taocamd is the frame-grabber server binary of SPEC_FULL.md's
// component table: it owns a remote camera, drives it with
// camera/simdevice (until a real Device gains a home here), and
// advertises the camera's shmid under the configuration directory so
// a client can find it without being told the number directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/camera/simdevice"
	"github.com/WitIOT/tao/config"
	"github.com/WitIOT/tao/internal/xcmd"
	"github.com/WitIOT/tao/logging"
	"github.com/WitIOT/tao/pixel"
	"github.com/WitIOT/tao/shm"
)

// Config is taocamd's YAML configuration: the shared process fields
// plus the camera's ROI, ring depth and simulated frame rate.
type Config struct {
	config.ProcessConfig `yaml:",inline"`

	Width  int64   `yaml:"width"`
	Height int64   `yaml:"height"`
	Nbufs  int64   `yaml:"nbufs"`
	Fps    float64 `yaml:"fps"`
}

func defaultConfig() Config {
	cfg := Config{Fps: 50}
	cfg.ProcessConfig = *config.DefaultProcessConfig()
	cfg.Width, cfg.Height, cfg.Nbufs = 256, 256, 8
	return cfg
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "taocamd",
	Short: "Remote camera server for a simulated frame-grabber",
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
		fmt.Fprintf(os.Stderr, "taocamd: %v\n", err)
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
		return fmt.Errorf("taocamd: %w", err)
	}

	log, _, err := logging.Init(&logging.Config{Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("taocamd: %w", err)
	}
	defer log.Sync()
	log = logging.ForOwner(log, cfg.Owner)

	camCfg := camera.Config{
		Xmin: 0, Xmax: cfg.Width, Ymin: 0, Ymax: cfg.Height,
		Encoding: pixel.MonoP12,
		Level:    pixel.LevelNone,
		OutType:  array.Float32,
		Nbufs:    cfg.Nbufs,
		Drop:     camera.DropOldestPending,
	}

	obj, err := camera.Create(cfg.Owner, camCfg, shm.Perm{})
	if err != nil {
		return fmt.Errorf("taocamd: create camera: %w", err)
	}
	defer obj.Detach()

	shmid := obj.Remote().Segment.Shmid
	if err := config.WriteShmid(cfg.AdvertisePath, shmid); err != nil {
		return fmt.Errorf("taocamd: advertise shmid: %w", err)
	}
	defer config.Default.Remove(cfg.AdvertisePath)
	log.Infow("camera created", "shmid", shmid, "advertise_path", cfg.AdvertisePath)

	srv := camera.NewServer(obj, simdevice.New(cfg.Owner, cfg.Fps))

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
