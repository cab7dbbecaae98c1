package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/WitIOT/tao/config"
)

var waitTimeout time.Duration

var waitCmd = &cobra.Command{
	Use:   "wait <path>",
	Short: "Block until a server advertises its shmid at a configuration-directory path",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		shmid, err := waitForShmid(args[0], waitTimeout)
		if err != nil {
			return err
		}
		fmt.Println(shmid)
		return nil
	},
}

func init() {
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Second, "Give up after this long")
}

// waitForShmid polls config.ReadShmid on an exponential backoff
// ticker (the client side of spec §6's "advertised way for a client to
// discover a server's remote object at boot," for a client that
// starts before the server has published), the same
// backoff.NewTicker(&backoff.ExponentialBackOff{...}) idiom the
// teacher's bird-adapter service uses for its stream-reconnect loop.
func waitForShmid(path string, timeout time.Duration) (int, error) {
	dir := config.Default
	if rootDir != "" {
		dir = config.NewDirectoryAt(rootDir)
	}

	if shmid, ok := dir.ReadShmid(path); ok {
		return shmid, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	b := &backoff.ExponentialBackOff{
		InitialInterval:     backoff.DefaultInitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         time.Second,
	}
	b.Reset()
	ticker := backoff.NewTicker(b)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("taoctl wait: %s not advertised within %s", path, timeout)
		case _, ok := <-ticker.C:
			if !ok {
				return 0, fmt.Errorf("taoctl wait: backoff exhausted waiting for %s", path)
			}
			if shmid, ok := dir.ReadShmid(path); ok {
				return shmid, nil
			}
		}
	}
}
