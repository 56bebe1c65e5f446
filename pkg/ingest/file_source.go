package ingest

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/metrics"
)

const fallbackWakeInterval = 5 * time.Second

// FileSource tails a local log file, recovering from rotation and
// truncation. It positions at end-of-file on startup (tail-from-now).
type FileSource struct {
	Node string
	Path string

	Report StatusReporter

	file   *os.File
	reader *bufio.Reader
	ino    uint64
	dev    uint64
	offset int64
}

// Run implements Source. It blocks until ctx is canceled.
func (f *FileSource) Run(ctx context.Context, out chan<- Line) {
	logger := log.WithSource("file", f.Node)
	metrics.NodeConnected.WithLabelValues(f.Node).Set(1)
	defer metrics.NodeConnected.WithLabelValues(f.Node).Set(0)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling only")
	} else {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(f.Path)); err != nil {
			logger.Warn().Err(err).Msg("watch directory failed, falling back to polling only")
		}
	}

	defer f.closeFile()

	ticker := time.NewTicker(fallbackWakeInterval)
	defer ticker.Stop()

	for {
		f.drain(ctx, out)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-watcherEvents(watcher):
		}
	}
}

func watcherEvents(w *fsnotify.Watcher) <-chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

// drain reads every currently-available line, opening or reopening the
// file as needed and detecting rotation/truncation.
func (f *FileSource) drain(ctx context.Context, out chan<- Line) {
	if f.file == nil {
		if !f.open() {
			return
		}
	}

	if f.rotated() {
		f.closeFile()
		if !f.open() {
			return
		}
	}

	if f.truncated() {
		f.offset = 0
		f.file.Seek(0, 0)
		f.reader = bufio.NewReader(f.file)
	}

	for {
		line, err := f.reader.ReadString('\n')
		if line != "" {
			arrival := time.Now()
			f.offset += int64(len(line))
			metrics.LinesIngestedTotal.WithLabelValues(f.Node, "file").Inc()
			select {
			case out <- Line{Node: f.Node, Text: line, ArrivalTime: arrival}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (f *FileSource) open() bool {
	file, err := os.Open(f.Path)
	if err != nil {
		return false
	}

	var dev, ino uint64
	if info, err := file.Stat(); err == nil {
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			dev, ino = uint64(st.Dev), st.Ino
		}
	}

	// Tail-from-now: the first open (no dev/ino recorded yet) seeks to end;
	// every later reopen, such as after rotation, starts at 0.
	startup := f.dev == 0 && f.ino == 0
	if startup {
		offset, err := file.Seek(0, 2)
		if err == nil {
			f.offset = offset
		}
	} else {
		f.offset = 0
	}

	f.file = file
	f.reader = bufio.NewReader(file)
	f.dev, f.ino = dev, ino
	return true
}

func (f *FileSource) closeFile() {
	if f.file != nil {
		f.file.Close()
		f.file = nil
	}
}

func (f *FileSource) rotated() bool {
	info, err := os.Stat(f.Path)
	if err != nil {
		return false
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return uint64(st.Dev) != f.dev || st.Ino != f.ino
}

func (f *FileSource) truncated() bool {
	info, err := f.file.Stat()
	if err != nil {
		return false
	}
	return info.Size() < f.offset
}
