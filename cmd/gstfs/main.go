// gstfs presents a read-only mirror of a source directory in which media
// files carrying the source extension appear under the destination
// extension, transcoded on demand through a gstreamer pipeline and cached
// in memory.
//
// Usage:
//
//	gstfs -o src=DIR,src_ext=EXT,dst_ext=EXT,pipeline=DESC[,ncache=N] MOUNTPOINT
package main

import (
	"fmt"
	"os"

	"github.com/gstfs/gstfs/config"
	gstfsfuse "github.com/gstfs/gstfs/fuse"
	"github.com/gstfs/gstfs/transcode"
	"github.com/gstfs/gstfs/vfs"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func usage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: gstfs -o [options] mount_point\n\n"+
		"where options can be:\n"+
		"   src=[source directory]    (required)\n"+
		"   src_ext=[mp3|ogg|...]     (required)\n"+
		"   dst_ext=[mp3|ogg|...]     (required)\n"+
		"   pipeline=[gst pipeline]   (required)\n"+
		"   ncache=[0-9]*             (optional, default %d)\n\n",
		config.DefaultMaxCacheEntries)
	fmt.Fprintln(os.Stderr, "flags:")
	fmt.Fprintln(os.Stderr, flagSet.FlagUsages())
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gstfs: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var options []string
	var allowOther bool
	var debug bool

	flagSet := pflag.NewFlagSet("gstfs", pflag.ContinueOnError)
	flagSet.StringArrayVarP(&options, "options", "o", nil, "comma separated mount options")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			usage(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		usage(flagSet)
		return nil
	}

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	mountConfig := config.NewDefaultConfig()
	for _, option := range options {
		if err := mountConfig.ParseOptions(option); err != nil {
			usage(flagSet)
			return err
		}
	}

	if err := mountConfig.Canonicalize(); err != nil {
		return err
	}

	if err := mountConfig.Validate(); err != nil {
		usage(flagSet)
		return err
	}

	if flagSet.NArg() != 1 {
		usage(flagSet)
		return fmt.Errorf("mount point is not given")
	}
	mountpoint := flagSet.Arg(0)

	filesystem, err := vfs.NewFileSystem(mountConfig, transcode.NewGStreamerEngine())
	if err != nil {
		return err
	}
	defer filesystem.Release()

	server, err := gstfsfuse.Mount(gstfsfuse.Options{
		Mountpoint: mountpoint,
		FileSystem: filesystem,
		AllowOther: allowOther,
		Debug:      debug,
	})
	if err != nil {
		return err
	}

	server.Wait()
	return nil
}
