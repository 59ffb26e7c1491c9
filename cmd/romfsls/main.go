// Command romfsls is a small inspection CLI for unencrypted 3DS cartridge
// images: it opens the NCSD/NCCH/RomFS pipeline and lists, dumps, or
// summarizes the resulting read-only filesystem.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/go3ds/romfs3ds/internal/cliopts"
	"github.com/go3ds/romfs3ds/internal/util"
	"github.com/go3ds/romfs3ds/internal/vfs"
	"github.com/go3ds/romfs3ds/pkg/n3ds"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("romfsls: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	settings := cliopts.Default(os.Stdout)

	root := &cobra.Command{
		Use:           "romfsls",
		Short:         "Inspect the RomFS filesystem inside an unencrypted 3DS cartridge image",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&settings.Recursive, "recursive", "r", settings.Recursive, "descend into subdirectories")
	root.PersistentFlags().BoolVar(&settings.Human, "human", settings.Human, "render sizes with KB/MB/GB units")

	root.AddCommand(newLsCmd(&settings))
	root.AddCommand(newCatCmd(&settings))
	root.AddCommand(newTreeCmd(&settings))
	root.AddCommand(newSelfUpdateCmd())
	return root
}

func newLsCmd(settings *cliopts.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <image> [romfs-path]",
		Short: "List a RomFS directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dirPath := "/"
			if len(args) == 2 {
				dirPath = args[1]
			}
			v, err := n3ds.Open(args[0])
			if err != nil {
				return err
			}
			return listDir(settings, v, dirPath, 0)
		},
	}
}

func newCatCmd(settings *cliopts.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <romfs-path>",
		Short: "Write a RomFS file's contents to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := n3ds.Open(args[0])
			if err != nil {
				return err
			}
			f, err := v.Path(args[1]).Open()
			if err != nil {
				return err
			}
			_, err = io.Copy(settings.Out, f)
			return err
		},
	}
}

func newTreeCmd(settings *cliopts.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <image>",
		Short: "Summarize the cartridge image and walk its RomFS tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			summary, err := n3ds.Inspect(f)
			if err != nil {
				return err
			}
			fmt.Fprintf(settings.Out, "media id:     %016x\n", summary.MediaID)
			fmt.Fprintf(settings.Out, "total size:   %s\n", util.FormatFileSize(float64(summary.TotalSize), settings.Human))
			fmt.Fprintf(settings.Out, "ncch version: %d\n", summary.NCCHVersion)
			fmt.Fprintf(settings.Out, "ncch size:    %s\n", util.FormatFileSize(float64(summary.NCCHSize), settings.Human))
			fmt.Fprintf(settings.Out, "files:        %s\n", util.FormatNumber(int64(summary.FileCount)))
			fmt.Fprintf(settings.Out, "directories:  %s\n", util.FormatNumber(int64(summary.DirCount)))
			fmt.Fprintf(settings.Out, "romfs bytes:  %s\n\n", util.FormatFileSize(float64(summary.TotalBytes), settings.Human))

			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}
			v, err := n3ds.GetRomFSVFS(f)
			if err != nil {
				return err
			}
			return listDir(settings, v, "/", 0)
		},
	}
}

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update romfsls to the latest released version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd.Context())
		},
	}
}

func runSelfUpdate(ctx context.Context) error {
	if version == "" || version == "dev" {
		return errors.New("self-update is only available in release builds")
	}

	if _, err := semver.ParseTolerant(version); err != nil {
		return fmt.Errorf("could not parse version: %w", err)
	}

	const slug = "go3ds/romfs3ds"
	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(slug))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s/%s could not be found from github repository", slug, version)
	}

	if latest.LessOrEqual(version) {
		fmt.Printf("Current binary is the latest version: %s\n", version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Printf("Successfully updated to version: %s\n", latest.Version())
	return nil
}

// listDir prints p's immediate entries (and, if settings.Recursive, every
// descendant's) with a two-space indent per depth level.
func listDir(settings *cliopts.Settings, v vfs.VFS, p string, depth int) error {
	dir := v.Path(p)
	meta, err := dir.Metadata()
	if err != nil {
		return err
	}
	if !meta.IsDir() {
		return fmt.Errorf("romfsls: %s is not a directory", p)
	}

	it, err := dir.ReadDir()
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	for {
		child, ok, err := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		childMeta, err := child.Metadata()
		if err != nil {
			return err
		}
		name, _ := child.FileName()
		if childMeta.IsDir() {
			fmt.Fprintf(settings.Out, "%s%s/\n", indent, name)
			if settings.Recursive {
				if err := listDir(settings, v, childPath(p, name), depth+1); err != nil {
					return err
				}
			}
			continue
		}
		fmt.Fprintf(settings.Out, "%s%s\t%s\n", indent, name, util.FormatFileSize(float64(childMeta.Len()), settings.Human))
	}
	return nil
}

func childPath(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}
