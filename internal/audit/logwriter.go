package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dmsavelyev/chatvault/internal/cryptox"
	"github.com/dmsavelyev/chatvault/internal/filex"
)

const logFileExt = ".log"

// LogWriter appends sealed records to per-conversation log files. Every
// distinct (identity, conversation) pair maps to exactly one file; the file
// only ever grows, one base64 envelope line per event.
//
// Appends to the same file are serialized; appends to different files may
// run concurrently.
type LogWriter struct {
	dirs   Dirs
	cipher *cryptox.Cipher

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLogWriter(dirs Dirs, cipher *cryptox.Cipher) *LogWriter {
	return &LogWriter{
		dirs:   dirs,
		cipher: cipher,
		locks:  make(map[string]*sync.Mutex),
	}
}

// FilePath returns the log file for a conversation. Inputs are sanitized,
// so the result is always a safe path under the logs root.
func (w *LogWriter) FilePath(identityID, convoKey string) string {
	return filepath.Join(w.dirs.Logs(), SafePart(identityID), SafePart(convoKey)+logFileExt)
}

func (w *LogWriter) fileLock(path string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	return l
}

// Append seals rec and appends it as one line to the conversation's log
// file. The full line is written in a single write call so a crash cannot
// interleave it with another append or corrupt committed lines.
func (w *LogWriter) Append(identityID, convoKey string, rec *Record) error {
	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	line, err := w.cipher.SealString(string(plaintext))
	if err != nil {
		return fmt.Errorf("seal record: %w", err)
	}

	path := w.FilePath(identityID, convoKey)

	lock := w.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o660)
	if err != nil {
		return fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append([]byte(line), '\n')); err != nil {
		return fmt.Errorf("append log %s: %w", path, err)
	}
	return nil
}

// List enumerates the conversation keys that have a log file for the
// identity. A missing identity directory yields an empty list.
func (w *LogWriter) List(identityID string) ([]string, error) {
	dir := filepath.Join(w.dirs.Logs(), SafePart(identityID))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), logFileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), logFileExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// ListIdentities enumerates identities that have at least one log file.
func (w *LogWriter) ListIdentities() ([]string, error) {
	entries, err := os.ReadDir(w.dirs.Logs())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", w.dirs.Logs(), err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
