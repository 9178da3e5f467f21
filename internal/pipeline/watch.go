package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// settleDelay gives a writer time to finish before a dropped PDF is
// processed; Create and Write events fire while the file is still growing.
const settleDelay = 2 * time.Second

// Watch processes PDFs dropped into dir until ctx is canceled. Each file is
// processed once per settle window; per-document failures are logged and do
// not stop the watcher, mirroring batch semantics.
func (p *Pipeline) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "pipeline: create watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return eris.Wrapf(err, "pipeline: watch %s", dir)
	}
	zap.L().Info("watching for documents", zap.String("dir", dir))

	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}

			path := event.Name
			mu.Lock()
			if timer, exists := pending[path]; exists {
				timer.Reset(settleDelay)
				mu.Unlock()
				continue
			}
			pending[path] = time.AfterFunc(settleDelay, func() {
				mu.Lock()
				delete(pending, path)
				mu.Unlock()

				outcome, err := p.ProcessFile(ctx, path)
				if err != nil {
					zap.L().Error("watch: fatal store failure", zap.String("path", path), zap.Error(err))
					return
				}
				zap.L().Info("watch: document processed",
					zap.String("source_file", outcome.SourceFile),
					zap.String("outcome", string(outcome.Kind)),
				)
			})
			mu.Unlock()

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("watch error", zap.Error(werr))
		}
	}
}
