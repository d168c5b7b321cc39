package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// FilePathSync reads flag definitions from a local JSON file and
// signals a change whenever the file is written.
type FilePathSync struct {
	URI string
}

func (fp *FilePathSync) Source() string {
	return fp.URI
}

func (fp *FilePathSync) Fetch(_ context.Context) ([]byte, error) {
	if fp.URI == "" {
		return nil, fmt.Errorf("no filepath string set")
	}
	return os.ReadFile(fp.URI)
}

func (fp *FilePathSync) Notify(ctx context.Context, changed chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Errorf("unable to watch %s: %v", fp.URI, err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(fp.URI); err != nil {
		log.Errorf("unable to watch %s: %v", fp.URI, err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debugf("%s changed on disk", fp.URI)
			select {
			case changed <- struct{}{}:
			default:
				// a refresh signal is already pending
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watching %s: %v", fp.URI, err)
		}
	}
}
