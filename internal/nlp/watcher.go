package nlp

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// RuleWatcher hot-reloads the pattern-rule file into a PatternClassifier
// when the file changes on disk. A broken edit keeps the last good rules.
type RuleWatcher struct {
	path       string
	classifier *PatternClassifier
	watcher    *fsnotify.Watcher
	done       chan struct{}
}

// NewRuleWatcher creates a watcher for the given rules file.
func NewRuleWatcher(path string, classifier *PatternClassifier) *RuleWatcher {
	return &RuleWatcher{
		path:       path,
		classifier: classifier,
		done:       make(chan struct{}),
	}
}

// Start begins watching the rules file's directory. Editors replace files
// rather than writing in place, so the directory is watched and events are
// filtered by name. Call Stop to clean up.
func (rw *RuleWatcher) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(rw.path)); err != nil {
		_ = w.Close()
		return err
	}
	rw.watcher = w

	go rw.loop()
	log.Printf("nlp: watching %s for rule changes", rw.path)
	return nil
}

// Stop shuts down the watcher. Safe to call when Start never ran.
func (rw *RuleWatcher) Stop() {
	if rw.watcher == nil {
		return
	}
	_ = rw.watcher.Close()
	<-rw.done
}

func (rw *RuleWatcher) loop() {
	defer close(rw.done)
	for {
		select {
		case evt, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(evt.Name) != filepath.Clean(rw.path) {
				continue
			}
			rw.reload()
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: nlp: rule watcher error: %v", err)
		}
	}
}

func (rw *RuleWatcher) reload() {
	rs, err := LoadRules(rw.path)
	if err != nil {
		log.Printf("WARNING: nlp: keeping previous rules, reload failed: %v", err)
		return
	}
	if err := rw.classifier.SetRules(rs); err != nil {
		log.Printf("WARNING: nlp: keeping previous rules, new set invalid: %v", err)
		return
	}
	log.Printf("nlp: reloaded %d rules from %s", len(rs.Rules), rw.path)
}
