// Command ytfsmount mounts a search-query/result-file FUSE tree backed by
// a remote media search and streaming service (spec.md §1, §12). Flag
// handling and the mount/signal lifecycle follow rclone's cmd/mount
// structure: parse flags, mount, serve until a signal or unmount, then
// exit with a status reflecting how the session ended.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/spf13/pflag"

	"github.com/the-shelter/ytfs/internal/config"
	"github.com/the-shelter/ytfs/internal/fsfrontend"
	"github.com/the-shelter/ytfs/internal/resolver"
	"github.com/the-shelter/ytfs/internal/resultset"
	"github.com/the-shelter/ytfs/internal/ytfslog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("ytfsmount", pflag.ContinueOnError)

	var (
		audioOnly = flags.Bool("audio-only", true, "fetch audio only")
		videoOnly = flags.Bool("video-only", false, "fetch video only")
		muxed     = flags.Bool("muxed", false, "fetch audio and video and mux them on the fly")
		apiBase   = flags.String("api-base-url", "", "base URL of the search/resolve API (required)")
		logLevel  = flags.String("log-level", "info", "debug, info, or error")
		readAhead = flags.Int64("read-ahead", config.Default().ReadAhead, "bytes to enlarge a fetch by past what was requested")
		pageSize  = flags.Int("page-size", config.Default().PageSize, "results requested per search page")
		muxerPath = flags.String("muxer-path", config.Default().MuxerPath, "external muxer binary for --muxed mode")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <mountpoint>\n", flags.Name())
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}
	mountpoint := flags.Arg(0)

	if err := ytfslog.SetLevel(*logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *apiBase == "" {
		fmt.Fprintln(os.Stderr, "--api-base-url is required")
		return 2
	}

	opts := config.Default()
	opts.Mode = modeFromFlags(*audioOnly, *videoOnly, *muxed)
	opts.ReadAhead = *readAhead
	opts.PageSize = *pageSize
	opts.MuxerPath = *muxerPath

	res := resolver.NewHTTPResolver(*apiBase, nil)
	mount := resultset.NewMount(res, opts, nil)
	fsys := fsfrontend.New(mount)

	conn, err := fuse.Mount(mountpoint,
		fuse.FSName("ytfs"),
		fuse.Subtype("ytfs"),
		fuse.ReadOnly(),
		fuse.VolumeName("ytfs"),
	)
	if err != nil {
		ytfslog.Errorf(nil, "mount failed: %v", err)
		return 1
	}
	defer conn.Close()
	// Clean up every query's stores (cancel fetches, kill muxers) once
	// Serve has returned.
	defer func() {
		for _, q := range mount.List() {
			if rs, ok := mount.Remove(q); ok {
				rs.Cleanup()
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		s := <-sig
		ytfslog.Infof(nil, "received %v, unmounting %s", s, mountpoint)
		if err := fuse.Unmount(mountpoint); err != nil {
			ytfslog.Errorf(nil, "unmount failed: %v", err)
		}
	}()

	ytfslog.Infof(nil, "mounted %s in %s mode", mountpoint, opts.Mode)
	if err := fs.Serve(conn, fsys); err != nil {
		ytfslog.Errorf(nil, "serve exited with error: %v", err)
		return 1
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		ytfslog.Errorf(nil, "mount error: %v", err)
		return 1
	}
	return 0
}

func modeFromFlags(audioOnly, videoOnly, muxed bool) config.MediaMode {
	switch {
	case muxed:
		return config.Muxed
	case videoOnly:
		return config.VideoOnly
	default:
		_ = audioOnly
		return config.AudioOnly
	}
}
