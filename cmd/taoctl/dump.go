package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/WitIOT/tao/array"
	"github.com/WitIOT/tao/camera"
	"github.com/WitIOT/tao/clock"
	"github.com/WitIOT/tao/config"
	"github.com/WitIOT/tao/mirror"
	"github.com/WitIOT/tao/sensor"
)

var (
	dumpTimeout  time.Duration
	dumpMaxBytes string
)

var dumpCmd = &cobra.Command{
	Use:   "dump <camera|mirror|sensor> <path-or-shmid>",
	Short: "Wait for the next published frame and print it",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		var maxBytes datasize.ByteSize
		if err := maxBytes.UnmarshalText([]byte(dumpMaxBytes)); err != nil {
			return fmt.Errorf("taoctl dump: bad --max-bytes value %q: %w", dumpMaxBytes, err)
		}

		shmid, err := resolveShmid(args[1])
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), dumpTimeout)
		defer cancel()
		deadline := clock.AfterSeconds(dumpTimeout.Seconds())

		switch args[0] {
		case "camera":
			return dumpCamera(ctx, shmid, deadline, maxBytes)
		case "mirror":
			return dumpMirror(ctx, shmid, deadline)
		case "sensor":
			return dumpSensor(ctx, shmid, deadline)
		default:
			return fmt.Errorf("taoctl dump: unknown kind %q (want camera, mirror or sensor)", args[0])
		}
	},
}

func init() {
	dumpCmd.Flags().DurationVar(&dumpTimeout, "timeout", 5*time.Second, "Give up waiting for a frame after this long")
	dumpCmd.Flags().StringVar(&dumpMaxBytes, "max-bytes", "4KB", "Truncate a raw camera frame dump to this many bytes (datasize syntax, e.g. 64KB)")
}

// resolveShmid accepts either a literal shmid or a configuration-
// directory path naming one.
func resolveShmid(arg string) (int, error) {
	if v, err := strconv.Atoi(arg); err == nil {
		return v, nil
	}
	dir := config.Default
	if rootDir != "" {
		dir = config.NewDirectoryAt(rootDir)
	}
	shmid, ok := dir.ReadShmid(arg)
	if !ok {
		return 0, fmt.Errorf("taoctl dump: no shmid advertised at %s", arg)
	}
	return shmid, nil
}

func dumpCamera(ctx context.Context, shmid int, deadline clock.Deadline, maxBytes datasize.ByteSize) error {
	obj, err := camera.Open(shmid)
	if err != nil {
		return fmt.Errorf("taoctl dump: %w", err)
	}
	defer obj.Detach()

	serial := obj.WaitOutput(ctx, 0, deadline)
	if serial <= 0 {
		return fmt.Errorf("taoctl dump: timed out waiting for a camera frame")
	}
	datShmid, ok := obj.ImageShmid(serial)
	if !ok {
		return fmt.Errorf("taoctl dump: frame %d is no longer available", serial)
	}

	img, err := array.Attach(datShmid)
	if err != nil {
		return fmt.Errorf("taoctl dump: %w", err)
	}
	defer img.Detach()

	data := img.Data()
	if uint64(len(data)) > uint64(maxBytes) {
		data = data[:int(maxBytes)]
	}
	fmt.Printf("camera frame %d: dims=%v type=%s (%d bytes, showing %d)\n",
		serial, img.Header.Dims, img.Header.Eltype, len(img.Data()), len(data))
	fmt.Println(hex.Dump(data))
	return nil
}

func dumpMirror(ctx context.Context, shmid int, deadline clock.Deadline) error {
	obj, err := mirror.Open(shmid)
	if err != nil {
		return fmt.Errorf("taoctl dump: %w", err)
	}
	defer obj.Detach()

	serial := obj.WaitOutput(ctx, 0, deadline)
	if serial <= 0 {
		return fmt.Errorf("taoctl dump: timed out waiting for a mirror frame")
	}
	reference, perturbation, requested, effective, mark, ok := obj.FrameVectors(serial)
	if !ok {
		return fmt.Errorf("taoctl dump: frame %d is no longer available", serial)
	}
	fmt.Printf("mirror frame %d (mark=%d):\n", serial, mark)
	fmt.Printf("  reference:    %v\n", reference)
	fmt.Printf("  perturbation: %v\n", perturbation)
	fmt.Printf("  requested:    %v\n", requested)
	fmt.Printf("  effective:    %v\n", effective)
	return nil
}

func dumpSensor(ctx context.Context, shmid int, deadline clock.Deadline) error {
	obj, err := sensor.Open(shmid)
	if err != nil {
		return fmt.Errorf("taoctl dump: %w", err)
	}
	defer obj.Detach()

	serial := obj.WaitOutput(ctx, 0, deadline)
	if serial <= 0 {
		return fmt.Errorf("taoctl dump: timed out waiting for a sensor frame")
	}
	elems, mark, ok := obj.FetchData(serial)
	if !ok {
		return fmt.Errorf("taoctl dump: frame %d is no longer available", serial)
	}
	fmt.Printf("sensor frame %d (mark=%d), %d sub-images:\n", serial, mark, len(elems))
	for i, e := range elems {
		fmt.Printf("  [%d] x=%.3f y=%.3f wxx=%.3g wxy=%.3g wyy=%.3g alpha=%.3g eta=%.3g\n",
			i, e.X, e.Y, e.Wxx, e.Wxy, e.Wyy, e.Alpha, e.Eta)
	}
	return nil
}
