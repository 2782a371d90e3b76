package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/the-shelter/ytfs/internal/ranges"
	"github.com/the-shelter/ytfs/internal/ytfslog"
)

// muxState tracks the external muxer subprocess for a store in
// config.Muxed mode (spec.md §4.4/§4.5: "two feeder tasks stream audio and
// video into an external muxing process; its output becomes the served
// byte stream").
type muxState struct {
	cmd  *exec.Cmd
	err  error
	done bool
}

func (m *muxState) kill() {
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
	}
}

// startMuxing launches the external muxer and its two feeders. Must be
// called with no lock held; it only takes s.mu briefly to publish s.mux.
func (s *StreamingStore) startMuxing() error {
	if len(s.sourceURLs) < 2 {
		return fmt.Errorf("muxed mode requires an audio and a video source URL")
	}
	audioURL := s.sourceURLs[0].URL
	videoURL := s.sourceURLs[1].URL

	audioR, audioW, err := os.Pipe()
	if err != nil {
		return err
	}
	videoR, videoW, err := os.Pipe()
	if err != nil {
		audioR.Close()
		audioW.Close()
		return err
	}

	cmd := exec.CommandContext(s.ctx, s.opts.MuxerPath,
		"-i", "pipe:3", "-i", "pipe:4", "-c", "copy", "-f", "mp4", "pipe:1")
	// Go maps ExtraFiles[i] to fd 3+i in the child, which is what the
	// pipe:3 / pipe:4 arguments above reference.
	cmd.ExtraFiles = []*os.File{audioR, videoR}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting muxer: %w", err)
	}
	// The child has its own dup'd copies of the pipe read ends; close ours.
	audioR.Close()
	videoR.Close()

	ms := &muxState{cmd: cmd}
	s.mu.Lock()
	s.mux = ms
	s.mu.Unlock()

	// The two feeders are a single logical unit: either may fail
	// independently, but the muxer itself is what ultimately reports
	// failure (a closed/errored pipe starves it of input). errgroup just
	// gives the pair a shared cancellation context and a joined error.
	g, gctx := errgroup.WithContext(s.ctx)
	g.Go(func() error { return s.feedSource(gctx, audioURL, audioW) })
	g.Go(func() error { return s.feedSource(gctx, videoURL, videoW) })

	s.inFlight.Add(3)
	go func() {
		defer s.inFlight.Done()
		if err := g.Wait(); err != nil {
			s.mu.Lock()
			if ms.err == nil {
				ms.err = err
			}
			s.mu.Unlock()
			ytfslog.Debugf(s, "feeder group: %v", err)
		}
	}()
	go s.drainStderr(stderr)
	go s.readMuxOutput(stdout, ms)

	return nil
}

// feedSource streams a single source URL's full body into w, closing w
// when done. A fetch failure here surfaces as an unexpected EOF to the
// muxer, which then exits non-zero and is reported through ms.err.
func (s *StreamingStore) feedSource(ctx context.Context, url string, w io.WriteCloser) error {
	defer w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("feed %s: building request: %w", url, err)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("feed %s: %w", url, err)
	}
	defer res.Body.Close()

	if _, err := io.Copy(w, res.Body); err != nil {
		return fmt.Errorf("feed %s: copy stopped: %w", url, err)
	}
	return nil
}

// drainStderr logs the muxer's stderr a line at a time so the child never
// blocks writing to a full, unread pipe.
func (s *StreamingStore) drainStderr(stderr io.ReadCloser) {
	defer s.inFlight.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		ytfslog.Debugf(s, "muxer: %s", scanner.Text())
	}
}

// readMuxOutput copies the muxer's stdout sequentially into the cache,
// extending the interval set and the reported size as bytes arrive, then
// waits for process exit to learn the final, exact length.
func (s *StreamingStore) readMuxOutput(stdout io.ReadCloser, ms *muxState) {
	defer s.inFlight.Done()

	buf := make([]byte, 64*1024)
	var offset int64
	for {
		n, rerr := stdout.Read(buf)
		if n > 0 {
			s.mu.Lock()
			if _, werr := s.cache.WriteAt(buf[:n], offset); werr != nil {
				s.mux.err = werr
			} else {
				s.intervals.Insert(ranges.Range{Pos: offset, Size: int64(n)})
				offset += int64(n)
				if offset > s.size {
					s.size = offset
				}
			}
			s.mu.Unlock()
			s.cond.Broadcast()
		}
		if rerr != nil {
			break
		}
	}

	waitErr := s.cmdWait(ms.cmd)
	s.mu.Lock()
	if waitErr != nil && ms.err == nil {
		ms.err = waitErr
		ytfslog.Errorf(s, "muxer exited with error: %v", waitErr)
	} else if waitErr == nil {
		ms.done = true
		s.sizeFinal = true
		s.size = offset
	}
	s.mu.Unlock()
	s.cond.Broadcast()
}

// muxCoverage reports whether want is already in the cache, and whether
// the muxer has finished producing output (a clean exit, not a failure).
// Must be called with s.mu held.
func (s *StreamingStore) muxCoverage(want ranges.Range) (covered bool, done bool) {
	covered = s.intervals.Covers(want)
	done = s.mux != nil && s.mux.done
	return covered, done
}

// cmdWait waits for the muxer to exit. Once the store's context has been
// cancelled (Cleanup), a failed exit is reported as context.Canceled rather
// than as the kill signal's exit status.
func (s *StreamingStore) cmdWait(cmd *exec.Cmd) error {
	err := cmd.Wait()
	if s.ctx.Err() != nil && err != nil {
		return context.Canceled
	}
	return err
}
