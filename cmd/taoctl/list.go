package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/WitIOT/tao/config"
)

var listMatch string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the server paths currently advertised under the configuration directory",
	RunE: func(_ *cobra.Command, _ []string) error {
		paths, err := advertisedPaths(configRoot())
		if err != nil {
			return err
		}

		if listMatch != "" {
			g, err := glob.Compile(listMatch, '/')
			if err != nil {
				return fmt.Errorf("taoctl list: bad --match pattern: %w", err)
			}
			filtered := paths[:0]
			for _, p := range paths {
				if g.Match(p) {
					filtered = append(filtered, p)
				}
			}
			paths = filtered
		}

		sort.Strings(paths)
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listMatch, "match", "", "Only list paths matching this gobwas/glob pattern (e.g. camera/**)")
}

func configRoot() string {
	if rootDir != "" {
		return rootDir
	}
	return config.Root
}

// advertisedPaths walks root looking for "shmid" files, the leaf every
// cmd/ server advertises under, and returns each file's path relative
// to root (the same path a client passes to config.ReadShmid).
func advertisedPaths(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || d.Name() != "shmid" {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel)+"/shmid")
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("taoctl list: %w", err)
	}
	return paths, nil
}
