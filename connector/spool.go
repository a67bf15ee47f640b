package connector

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/util"
	"github.com/fsnotify/fsnotify"
)

const (
	spoolSuffix  = ".json"
	doneSuffix   = ".done"
	failedSuffix = ".failed"
)

// Parser turns one spooled payload into an activity.
type Parser func(body []byte) (*domain.Activity, error)

// Spool reads activities from *.json files of a directory in name order.
// A file is renamed to *.done once the next activity is requested, that is
// after the sink accepted it; unparsable files become *.failed. With watch
// set, Next waits for new files instead of returning io.EOF; producers
// should write elsewhere and rename files into the directory.
type Spool struct {
	dir     string
	parse   Parser
	watcher *fsnotify.Watcher
	pending []string
	current string
	log     *log.Logger
}

func NewSpool(dir string, parse Parser, watch bool) (*Spool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("spool directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool %s is not a directory", dir)
	}
	s := &Spool{dir: dir, parse: parse, log: util.Logger("Spool")}
	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		s.watcher = w
	}
	return s, nil
}

func (s *Spool) Next(ctx context.Context) (*domain.Activity, error) {
	s.finishCurrent()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(s.pending) == 0 {
			if err := s.scan(); err != nil {
				return nil, err
			}
		}
		if len(s.pending) == 0 {
			if s.watcher == nil {
				return nil, io.EOF
			}
			if err := s.wait(ctx); err != nil {
				return nil, err
			}
			continue
		}

		path := s.pending[0]
		s.pending = s.pending[1:]
		body, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		act, err := s.parse(body)
		if err != nil {
			s.log.Warn("Skipping unparsable activity", "file", filepath.Base(path), "err", err)
			s.rename(path, failedSuffix)
			continue
		}
		s.current = path
		return act, nil
	}
}

func (s *Spool) finishCurrent() {
	if s.current != "" {
		s.rename(s.current, doneSuffix)
		s.current = ""
	}
}

func (s *Spool) rename(path, suffix string) {
	target := strings.TrimSuffix(path, spoolSuffix) + suffix
	if err := os.Rename(path, target); err != nil {
		s.log.Error("Failed to mark spool file", "file", filepath.Base(path), "err", err)
	}
}

func (s *Spool) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("listing %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), spoolSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.pending = append(s.pending, filepath.Join(s.dir, name))
	}
	return nil
}

// wait blocks until a spool file appears.
func (s *Spool) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return io.EOF
			}
			if strings.HasSuffix(ev.Name, spoolSuffix) && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				return nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return io.EOF
			}
			s.log.Warn("Watcher error", "err", err)
		}
	}
}

// Close marks the last activity as done and stops watching.
func (s *Spool) Close() error {
	s.finishCurrent()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
