package policy

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"broadcastbot/pkg/logx"
)

// Watch validates policy files eagerly as they are edited, so a broken edit
// is reported in the log right away instead of at the next webhook event.
// Handlers still call Loader.Load per event; this changes nothing about
// which document an event sees.
//
// When fsnotify gets into a bad state the watcher is recreated with a small
// jittered exponential backoff.
func (l *Loader) Watch(ctx context.Context) error {
	files := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, p := range []string{l.defaultFile, l.overrideFile} {
		if strings.TrimSpace(p) == "" {
			continue
		}
		files[filepath.Base(p)] = struct{}{}
		dirs[filepath.Dir(p)] = struct{}{}
	}
	if len(dirs) == 0 {
		return nil
	}

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// debounce to avoid reacting to partial writes
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, func() {
			cfg := l.Load()
			l.log.Info("policy files revalidated",
				logx.Bool("source_bot_org", cfg.Source.RestrictToBotOrg),
				logx.Bool("source_sender_list", cfg.Source.RestrictToSenderList),
				logx.Bool("dest_bot_org", cfg.Destination.RestrictToBotOrg),
				logx.Bool("dest_sender_org", cfg.Destination.RestrictToSenderOrg),
				logx.Bool("membership_bot_org", cfg.Membership.RestrictToBotOrg),
			)
		})
	}

	wait := func() bool {
		d := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff *= 2
			if backoff > restartBackoffMax {
				backoff = restartBackoffMax
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			l.log.Warn("policy watch init failed", logx.Err(err))
			if !wait() {
				return nil
			}
			continue
		}
		addFailed := false
		for dir := range dirs {
			if err := w.Add(dir); err != nil {
				l.log.Warn("policy watch add failed", logx.String("dir", dir), logx.Err(err))
				addFailed = true
			}
		}
		if addFailed {
			_ = w.Close()
			if !wait() {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if _, watched := files[filepath.Base(ev.Name)]; !watched {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				l.log.Warn("policy watch error", logx.Err(err))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("policy watcher stopped; restarting")
		if !wait() {
			return nil
		}
	}
}
