package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"

	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/content"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/model"
	"github.com/asadullah48/physical-ai-textbook-speckit/pkg/utils/logging"
)

const watchDebounce = 500 * time.Millisecond

// Watch re-ingests documents as they change under root. Editor save bursts
// are debounced into one re-ingestion per file; removed files have their
// chunks dropped from the index. Blocks until ctx is done.
func (u *UseCase) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	if err := watchTree(watcher, root); err != nil {
		return err
	}

	src := content.NewDirSource(root)
	logger := logging.From(ctx)

	pending := map[string]struct{}{}
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(watcher, event.Name); err != nil {
						logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if !content.IsContentPath(event.Name) {
				continue
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil {
				continue
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			u.flushPending(ctx, src, root, pending)
		}
	}
}

func (u *UseCase) flushPending(ctx context.Context, src content.Source, root string, pending map[string]struct{}) {
	logger := logging.From(ctx)
	for path := range pending {
		delete(pending, path)

		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(path))); err != nil {
			// Best effort: a frontmatter-assigned id is unknowable once
			// the file is gone.
			docID := model.DocumentID(content.SectionPath(path))
			if err := u.index.DeleteByDocument(ctx, docID); err != nil {
				logger.Error("failed to drop removed document", "path", path, "error", err)
			} else {
				logger.Info("dropped removed document", "id", docID)
			}
			continue
		}

		count, err := u.ingestPath(ctx, src, path)
		switch {
		case err != nil:
			logger.Error("failed to re-ingest document", "path", path, "error", err)
		case count == 0:
			logger.Info("document withheld", "path", path)
		default:
			logger.Info("re-ingested document", "path", path, "chunks", count)
		}
	}
}

func watchTree(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to watch content tree", goerr.V("root", root))
	}
	return nil
}
