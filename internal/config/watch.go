package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"
)

const defaultCoursesReload = 30 * time.Second

// coursesFile tracks the catalog last applied from disk.
type coursesFile struct {
	path    string
	modTime time.Time
	size    int64
	applied []byte
}

// reload returns the catalog when the file differs from what was last applied,
// and nil when there is nothing new. A file that fails validation is not retried
// until it changes again.
func (f *coursesFile) reload() (*CoursesConfig, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("stat courses config: %w", err)
	}
	if info.ModTime().Equal(f.modTime) && info.Size() == f.size {
		return nil, nil
	}
	f.modTime, f.size = info.ModTime(), info.Size()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read courses config: %w", err)
	}
	// Touched but not edited.
	if f.applied != nil && bytes.Equal(data, f.applied) {
		return nil, nil
	}

	cfg, err := ParseCoursesConfig(data)
	if err != nil {
		return nil, err
	}
	f.applied = data
	return cfg, nil
}

// WatchCourses loads the catalog, hands it to onUpdate and then polls the file
// every interval until ctx is done. Reload failures go to onError and leave the
// previously applied catalog in effect.
func WatchCourses(ctx context.Context, path string, interval time.Duration, onUpdate func(*CoursesConfig), onError func(error)) error {
	if interval <= 0 {
		interval = defaultCoursesReload
	}

	f := &coursesFile{path: coursesPath(path)}
	cfg, err := f.reload()
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	go f.poll(ctx, interval, onUpdate, onError)
	return nil
}

func (f *coursesFile) poll(ctx context.Context, interval time.Duration, onUpdate func(*CoursesConfig), onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cfg, err := f.reload()
		switch {
		case err != nil:
			if onError != nil {
				onError(err)
			}
		case cfg != nil && onUpdate != nil:
			onUpdate(cfg)
		}
	}
}
