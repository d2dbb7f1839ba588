package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/3leaps/gojobgraph/internal/metrics"
	"github.com/3leaps/gojobgraph/pkg/jobdoc"
	"github.com/3leaps/gojobgraph/pkg/workbench"
)

// watchDocument reloads a local job document into wb whenever it changes
// on disk. The parent directory is watched so editors that save by rename
// are seen too. Reloads are skipped unless wb is still in document mode.
// Call the returned stop function to clean up.
func watchDocument(path string, wb *workbench.Workbench, logger *zap.Logger) (stop func(), err error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("document watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("document watcher add %s: %w", abs, err)
	}

	done := make(chan struct{})
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					reloadDocument(abs, wb, logger)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Document watcher error", zap.Error(err))
			case <-done:
				return
			}
		}
	}()
	logger.Info("Watching job document", zap.String("path", abs))
	return func() { close(done) }, nil
}

func reloadDocument(path string, wb *workbench.Workbench, logger *zap.Logger) {
	if wb.Mode().Name() != workbench.ModeDocument {
		logger.Debug("Skipping document reload outside document mode", zap.String("path", path))
		return
	}
	res, err := jobdoc.Load(path)
	metrics.ObserveDocumentLoad(err)
	if err != nil {
		// Keep serving the previous document.
		logger.Warn("Failed to reload job document", zap.String("path", path), zap.Error(err))
		return
	}
	if err := wb.LoadDocument(res.Document, path); err != nil {
		logger.Warn("Failed to reload job document", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Info("Reloaded job document",
		zap.String("path", path),
		zap.Int("jobs", len(res.Document.Jobs)),
		zap.Int("warnings", len(res.Warnings)))
}
