package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/penwyp/go-photometry-sync/internal/core/errs"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/data/imaging"
	"github.com/penwyp/go-photometry-sync/internal/util"
)

// Writer serializes session records. Every file is written to a temporary
// name and renamed into place; failed attempts are retried with backoff.
type Writer struct {
	retries  int
	interval time.Duration
}

// NewWriter creates a Writer retrying each file up to retries times.
func NewWriter(retries int, interval time.Duration) *Writer {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Writer{retries: retries, interval: interval}
}

// Exists reports whether a container is already present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Write stores record at outputPath. An existing container is an
// ErrOutputExists error unless overwrite is set. Imaging sidecars and the
// container are staged as temporary files first; sidecars are renamed into
// place before the container so a visible container is always complete.
// On failure nothing written by this call is left behind.
func (w *Writer) Write(record *model.SessionRecord, outputPath string, overwrite bool) (err error) {
	if record == nil {
		return fmt.Errorf("no session record to write")
	}
	if !overwrite && Exists(outputPath) {
		return fmt.Errorf("%w: %s", errs.ErrOutputExists, outputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var files []stagedFile
	defer func() {
		if err != nil {
			discard(files)
		}
	}()

	sidecars := make(map[string]string)
	for _, ch := range record.Channels {
		img := ch.Imaging
		if img == nil {
			continue
		}
		path := SidecarPath(outputPath, img.Name)
		tmp, err := w.stage(path, func(f io.Writer) error {
			return imaging.Encode(f, ch.FrameShape, ch.Rate, img.Values)
		})
		if err != nil {
			return fmt.Errorf("failed to write imaging series %s: %w", img.Name, err)
		}
		files = append(files, stagedFile{tmp: tmp, path: path})
		sidecars[img.Name] = path
	}

	// ConfigStd sorts map keys so reruns produce identical bytes.
	data, err := sonic.ConfigStd.Marshal(FromRecord(record, sidecars))
	if err != nil {
		return fmt.Errorf("failed to encode container: %w", err)
	}
	tmp, err := w.stage(outputPath, func(f io.Writer) error {
		_, err := f.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}
	files = append(files, stagedFile{tmp: tmp, path: outputPath})

	if err := w.commit(files); err != nil {
		return fmt.Errorf("failed to write container: %w", err)
	}

	util.LogInfo(fmt.Sprintf("Wrote %s (%d channels, %d imaging sidecars)", outputPath, len(record.Channels), len(sidecars)))
	return nil
}

// stagedFile is an encoded temporary file waiting to be renamed to path.
type stagedFile struct {
	tmp       string
	path      string
	committed bool
}

// discard removes the temporary files of files and every file already
// renamed into place.
func discard(files []stagedFile) {
	for _, f := range files {
		if f.committed {
			os.Remove(f.path)
		} else {
			os.Remove(f.tmp)
		}
	}
}

func (w *Writer) retry(path string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.interval
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		var encodeErr *encodeError
		if errors.As(err, &encodeErr) {
			return backoff.Permanent(encodeErr.err)
		}
		if err != nil {
			util.LogWarn(fmt.Sprintf("Write attempt %d for %s failed: %v", attempt, path, err))
		}
		return err
	}, backoff.WithMaxRetries(b, uint64(w.retries)))
}

// stage encodes a temporary file next to path and returns its name.
func (w *Writer) stage(path string, encode func(io.Writer) error) (string, error) {
	var tmp string
	err := w.retry(path, func() error {
		var err error
		tmp, err = writeTemp(path, encode)
		return err
	})
	return tmp, err
}

// commit renames staged files into place in order.
func (w *Writer) commit(files []stagedFile) error {
	for i := range files {
		f := &files[i]
		if err := w.retry(f.path, func() error { return os.Rename(f.tmp, f.path) }); err != nil {
			return err
		}
		f.committed = true
	}
	return nil
}

// encodeError marks failures that retrying cannot fix.
type encodeError struct{ err error }

func (e *encodeError) Error() string { return e.err.Error() }

func writeTemp(path string, encode func(io.Writer) error) (name string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if err := encode(tmp); err != nil {
		tmp.Close()
		return "", &encodeError{err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}
