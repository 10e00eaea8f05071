// Package framesource feeds camera frames into the proctor when it runs as
// a standalone daemon.
//
// The host capture process drops encoded frames (PNG or JPEG) into a spool
// directory; the spool watches it, decodes each new file, keeps only the
// most recent frame, and reports every arrival timestamp so the one-shot
// frame-timing heuristic sees the render cadence. Dropped .txt files are
// handed to the text callback instead, so the host can submit candidate
// text for the content checks the same way. Undecodable files are skipped;
// a missing frame just means the next vision tick is skipped.
package framesource

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Von-Etana/lune-sub000/internal/logging"
)

// Spool is a directory-watching frame source. It implements vision.Source.
type Spool struct {
	dir     string
	watcher *fsnotify.Watcher
	log     *slog.Logger

	// onFrame, if set, receives each frame's arrival time.
	onFrame func(time.Time)

	// onText, if set, receives the contents of dropped .txt files.
	onText func(string)

	mu     sync.Mutex
	latest image.Image

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSpool starts watching dir for dropped frames and text submissions.
// onFrame and onText may be nil.
func NewSpool(dir string, onFrame func(time.Time), onText func(string)) (*Spool, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	s := &Spool{
		dir:     dir,
		watcher: watcher,
		log:     logging.Component("framesource"),
		onFrame: onFrame,
		onText:  onText,
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// run pumps watcher events until Close.
func (s *Spool) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			s.Ingest(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("spool watch error", "error", err)
		}
	}
}

// Ingest consumes one spool file: frames become the latest frame, .txt
// files go to the text callback. Consumed files are removed; anything else
// is ignored.
func (s *Spool) Ingest(path string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
	case ".txt":
		s.ingestText(path)
		return
	default:
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		s.log.Debug("skipping undecodable frame", "path", path, "error", err)
		return
	}

	s.mu.Lock()
	s.latest = img
	s.mu.Unlock()

	if s.onFrame != nil {
		s.onFrame(time.Now())
	}

	os.Remove(path)
}

// ingestText hands a dropped text submission to the content-check callback.
func (s *Spool) ingestText(path string) {
	if s.onText == nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	s.onText(string(data))
	os.Remove(path)
}

// Frame returns the most recently ingested frame.
func (s *Spool) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// Close stops watching the spool directory.
func (s *Spool) Close() error {
	close(s.done)
	err := s.watcher.Close()
	s.wg.Wait()
	return err
}
