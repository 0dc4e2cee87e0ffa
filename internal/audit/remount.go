package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/cryptox"
	"github.com/dmsavelyev/chatvault/internal/filex"
)

// BatchResult aggregates a remount batch: lines or items decrypted and
// items that failed integrity or parsing. Failures never abort a batch.
type BatchResult struct {
	OK     int
	Failed int
}

// Remounter is the offline consumer of the vault formats: it decrypts
// conversations into plaintext transcripts and media back into files. It
// requires the same 32-byte key used at capture time; with a wrong key
// every line fails its integrity check rather than producing garbage.
type Remounter struct {
	dirs   Dirs
	cipher *cryptox.Cipher

	writer *LogWriter
	vault  *Vault
}

func NewRemounter(dirs Dirs, cipher *cryptox.Cipher) *Remounter {
	return &Remounter{
		dirs:   dirs,
		cipher: cipher,
		writer: NewLogWriter(dirs, cipher),
		vault:  NewVault(dirs, cipher),
	}
}

// ListIdentities enumerates identities present in the vault (union of log
// and media trees).
func (r *Remounter) ListIdentities() ([]string, error) {
	ids, err := r.writer.ListIdentities()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	entries, err := os.ReadDir(r.dirs.Manifests())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", r.dirs.Manifests(), err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := seen[e.Name()]; !ok {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ListConversations enumerates conversation keys recorded for an identity.
func (r *Remounter) ListConversations(identityID string) ([]string, error) {
	return r.writer.List(identityID)
}

// ListMediaCodes enumerates stored media codes for an identity.
func (r *Remounter) ListMediaCodes(identityID string) ([]string, error) {
	return r.vault.ListCodes(identityID)
}

// transcriptLine renders one decrypted record the way the original
// transcripts are read: timestamp, direction, identity, peer, name, text.
func transcriptLine(rec *Record) string {
	name := rec.PeerName
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s | %s | clientId=%s | remote=%s | %s | %s",
		rec.TS.Format("2006-01-02T15:04:05.000Z07:00"), rec.Direction, rec.ClientID, rec.PeerNumber, name, rec.Text)
}

// RemountConversation decrypts one conversation log into out, one
// transcript line per record. Undecryptable lines are reported inline and
// skipped. Returns common.ErrorNotFound if the log file does not exist.
func (r *Remounter) RemountConversation(identityID, convoKey string, out io.Writer) (BatchResult, error) {
	var res BatchResult

	path := r.writer.FilePath(identityID, convoKey)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return res, fmt.Errorf("conversation %s/%s: %w", identityID, convoKey, common.ErrorNotFound)
	}
	if err != nil {
		return res, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		plaintext, err := r.cipher.OpenString(line)
		if err != nil {
			res.Failed++
			fmt.Fprintf(out, "[decrypt error] %v\n", err)
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(plaintext), &rec); err != nil {
			res.Failed++
			fmt.Fprintf(out, "[parse error] %v\n", err)
			continue
		}

		res.OK++
		fmt.Fprintln(out, transcriptLine(&rec))
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan log %s: %w", path, err)
	}
	return res, nil
}

// RemountAllConversations decrypts every conversation of an identity into
// transcript files under the remounted directory. Per-line failures are
// counted and do not stop the batch.
func (r *Remounter) RemountAllConversations(identityID string) (BatchResult, error) {
	var total BatchResult

	keys, err := r.writer.List(identityID)
	if err != nil {
		return total, err
	}
	if err := filex.EnsureDir(r.dirs.Remounted()); err != nil {
		return total, err
	}

	for _, key := range keys {
		outPath := filepath.Join(r.dirs.Remounted(),
			fmt.Sprintf("convo_%s__%s.txt", SafePart(identityID), SafePart(key)))
		f, err := os.Create(outPath)
		if err != nil {
			return total, fmt.Errorf("create %s: %w", outPath, err)
		}

		res, err := r.RemountConversation(identityID, key, f)
		closeErr := f.Close()
		total.OK += res.OK
		total.Failed += res.Failed
		if err != nil {
			return total, err
		}
		if closeErr != nil {
			return total, fmt.Errorf("close %s: %w", outPath, closeErr)
		}
	}
	return total, nil
}

// RemountMedia decrypts one media item into the remounted directory and
// returns the output path.
func (r *Remounter) RemountMedia(identityID, mediaCode string) (string, error) {
	manifest, err := r.vault.ReadManifest(identityID, mediaCode)
	if err != nil {
		return "", err
	}

	data, err := r.vault.Retrieve(identityID, mediaCode)
	if err != nil {
		return "", err
	}

	ext := manifest.Ext
	if ext == "" {
		ext = ExtFromMime(manifest.MimeType)
	}

	if err := filex.EnsureDir(r.dirs.Remounted()); err != nil {
		return "", err
	}
	outPath := filepath.Join(r.dirs.Remounted(),
		fmt.Sprintf("media_%s.%s", SafePart(mediaCode), ext))
	if err := os.WriteFile(outPath, data, 0o660); err != nil {
		return "", fmt.Errorf("write %s: %w", outPath, err)
	}
	return outPath, nil
}

// RemountAllMedia decrypts every stored media item of an identity.
// Per-item integrity failures are counted and do not stop the batch.
func (r *Remounter) RemountAllMedia(identityID string) (BatchResult, error) {
	var res BatchResult

	codes, err := r.vault.ListCodes(identityID)
	if err != nil {
		return res, err
	}

	for _, code := range codes {
		if _, err := r.RemountMedia(identityID, code); err != nil {
			res.Failed++
			continue
		}
		res.OK++
	}
	return res, nil
}
