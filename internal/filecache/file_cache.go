// Package filecache persists compiled artifacts across processes.
package filecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Key is the SHA-256 digest identifying an artifact.
type Key = [sha256.Size]byte

// Cache allows the engine to reuse the artifacts of previous compilations.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the content of key. ok is false when the key is not cached.
	// The caller must close content.
	Get(key Key) (content io.ReadCloser, ok bool, err error)
	// Add stores content under key, replacing any previous content.
	Add(key Key, content io.Reader) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key Key) error
}

// New returns a Cache storing lz4 compressed files in dir. A lock file in dir
// serializes the writers of every process sharing it.
func New(dir string) Cache {
	return &fileCache{dirPath: dir, lock: flock.New(filepath.Join(dir, lockName))}
}

const lockName = ".lock"

// fileCache implements Cache on the file system.
type fileCache struct {
	dirPath string
	// mux serializes the goroutines of this process, lock the processes.
	mux  sync.Mutex
	lock *flock.Flock
}

func (fc *fileCache) path(key Key) string {
	return filepath.Join(fc.dirPath, hex.EncodeToString(key[:]))
}

func (fc *fileCache) acquire(shared bool) (func(), error) {
	fc.mux.Lock()
	if err := os.MkdirAll(fc.dirPath, 0o700); err != nil {
		fc.mux.Unlock()
		return nil, err
	}
	lock := fc.lock.Lock
	if shared {
		lock = fc.lock.RLock
	}
	if err := lock(); err != nil {
		fc.mux.Unlock()
		return nil, errors.Wrapf(err, "locking %s", fc.lock.Path())
	}
	return func() {
		_ = fc.lock.Unlock()
		fc.mux.Unlock()
	}, nil
}

// Get implements Cache.Get.
func (fc *fileCache) Get(key Key) (content io.ReadCloser, ok bool, err error) {
	release, err := fc.acquire(true)
	if err != nil {
		return nil, false, err
	}
	defer release()

	f, err := os.Open(fc.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	defer f.Close()

	// Decompressed eagerly so that the lock is not held by the caller.
	raw, err := io.ReadAll(lz4.NewReader(f))
	if err != nil {
		return nil, false, errors.Wrapf(err, "decompressing %s", f.Name())
	}
	return io.NopCloser(bytes.NewReader(raw)), true, nil
}

// Add implements Cache.Add.
func (fc *fileCache) Add(key Key, content io.Reader) (err error) {
	release, err := fc.acquire(false)
	if err != nil {
		return err
	}
	defer release()

	// Written to a temporary file then renamed, so that readers never see a partial file.
	f, err := os.CreateTemp(fc.dirPath, "tmp-")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	zw := lz4.NewWriter(f)
	if _, err = io.Copy(zw, content); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "compressing artifact")
	}
	if err = zw.Close(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), fc.path(key))
}

// Delete implements Cache.Delete.
func (fc *fileCache) Delete(key Key) error {
	release, err := fc.acquire(false)
	if err != nil {
		return err
	}
	defer release()

	err = os.Remove(fc.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
