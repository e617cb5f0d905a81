package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"go.olrik.dev/keepalive/internal/watchdog"
)

// TokenFile records which watcher is current: the token it was launched
// with and its PID. A watcher that no longer finds its own PID there has
// been superseded and should exit without relaunching anything.
type TokenFile struct {
	path string
	lock *flock.Flock
}

// TokenRecord is the content of a token file
type TokenRecord struct {
	Token watchdog.Token
	PID   int
}

func NewTokenFile(path string) *TokenFile {
	return &TokenFile{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Record replaces the current record.
func (tf *TokenFile) Record(rec TokenRecord) error {
	if err := os.MkdirAll(filepath.Dir(tf.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := tf.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock token file: %w", err)
	}
	defer tf.lock.Unlock()

	tmp := tf.path + ".tmp"
	data := fmt.Sprintf("%d %d\n", rec.Token, rec.PID)
	if err := os.WriteFile(tmp, []byte(data), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, tf.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// Read returns the current record. A missing file yields os.ErrNotExist.
func (tf *TokenFile) Read() (TokenRecord, error) {
	if err := tf.lock.RLock(); err != nil {
		return TokenRecord{}, fmt.Errorf("failed to lock token file: %w", err)
	}
	defer tf.lock.Unlock()

	data, err := os.ReadFile(tf.path)
	if err != nil {
		return TokenRecord{}, err
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return TokenRecord{}, fmt.Errorf("malformed token file %s", tf.path)
	}
	token, err := strconv.Atoi(fields[0])
	if err != nil {
		return TokenRecord{}, fmt.Errorf("malformed token in %s: %w", tf.path, err)
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return TokenRecord{}, fmt.Errorf("malformed pid in %s: %w", tf.path, err)
	}
	return TokenRecord{Token: watchdog.Token(token), PID: pid}, nil
}

// Superseded reports whether another watcher has been recorded since pid
// was. An unreadable or missing file never counts as superseded, so it
// cannot silence the last watcher.
func (tf *TokenFile) Superseded(pid int) (bool, TokenRecord) {
	rec, err := tf.Read()
	if err != nil {
		return false, TokenRecord{}
	}
	return rec.PID != pid, rec
}
