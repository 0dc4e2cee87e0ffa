package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/cryptox"
	"github.com/dmsavelyev/chatvault/internal/filex"
)

const (
	blobFileExt     = ".bin"
	manifestFileExt = ".json"
)

// Manifest is the plaintext sidecar describing one encrypted media blob.
// It carries no message content and is therefore stored unencrypted; the
// (manifest, blob) pair forms one logical unit.
type Manifest struct {
	MediaCode        string    `json:"mediaCode"`
	CreatedAt        time.Time `json:"createdAt"`
	ClientID         string    `json:"clientId"`
	ConvoKey         string    `json:"convoKey"`
	MsgID            string    `json:"msgId,omitempty"`
	MimeType         string    `json:"mimetype,omitempty"`
	Ext              string    `json:"ext"`
	OriginalFilename string    `json:"originalFilename,omitempty"`
	SHA256           string    `json:"sha256"`
	Size             int64     `json:"size"`
	EncryptedFile    string    `json:"encryptedFile"`
}

// Vault stores media attachments as encrypted blobs addressed by a
// content-derived media code, with a plaintext manifest alongside.
type Vault struct {
	dirs   Dirs
	cipher *cryptox.Cipher
}

func NewVault(dirs Dirs, cipher *cryptox.Cipher) *Vault {
	return &Vault{dirs: dirs, cipher: cipher}
}

// makeMediaCode derives the content-addressed, time-qualified identifier:
// the first 16 hex characters of the plaintext hash plus the millisecond
// epoch. The timestamp keeps codes unique even when identical content is
// saved twice; identical-millisecond collisions for identical content are
// accepted as negligible.
func makeMediaCode(hashHex string) string {
	return hashHex[:16] + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func (v *Vault) blobPath(identityID, mediaCode string) string {
	return filepath.Join(v.dirs.Media(), SafePart(identityID), SafePart(mediaCode)+blobFileExt)
}

func (v *Vault) manifestPath(identityID, mediaCode string) string {
	return filepath.Join(v.dirs.Manifests(), SafePart(identityID), SafePart(mediaCode)+manifestFileExt)
}

// Store encrypts data and writes the blob plus its manifest. Both writes
// must succeed for the item to count as stored: if the manifest cannot be
// written the blob is removed again and the media code must not be
// referenced by any log entry.
func (v *Vault) Store(identityID, convoKey string, data []byte, mimeType, filename, msgID string) (*Manifest, error) {
	hash := sha256.Sum256(data)
	hashHex := hex.EncodeToString(hash[:])
	mediaCode := makeMediaCode(hashHex)

	envelope, err := v.cipher.Seal(data)
	if err != nil {
		return nil, fmt.Errorf("seal media: %w", err)
	}

	blobPath := v.blobPath(identityID, mediaCode)
	if err := filex.EnsureDir(filepath.Dir(blobPath)); err != nil {
		return nil, err
	}
	if err := os.WriteFile(blobPath, envelope, 0o660); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", blobPath, err)
	}

	m := &Manifest{
		MediaCode:        mediaCode,
		CreatedAt:        time.Now().UTC(),
		ClientID:         identityID,
		ConvoKey:         convoKey,
		MsgID:            msgID,
		MimeType:         mimeType,
		Ext:              ExtFromMime(mimeType),
		OriginalFilename: filename,
		SHA256:           hashHex,
		Size:             int64(len(data)),
		EncryptedFile:    SafePart(mediaCode) + blobFileExt,
	}

	manifestPath := v.manifestPath(identityID, mediaCode)
	if err := filex.EnsureDir(filepath.Dir(manifestPath)); err != nil {
		_ = os.Remove(blobPath)
		return nil, err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		_ = os.Remove(blobPath)
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, b, 0o660); err != nil {
		_ = os.Remove(blobPath)
		return nil, fmt.Errorf("write manifest %s: %w", manifestPath, err)
	}

	return m, nil
}

// ReadManifest loads the manifest for a media code. Returns
// common.ErrorNotFound if it does not exist.
func (v *Vault) ReadManifest(identityID, mediaCode string) (*Manifest, error) {
	b, err := os.ReadFile(v.manifestPath(identityID, mediaCode))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("manifest %s/%s: %w", identityID, mediaCode, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Retrieve decrypts the blob for a media code back to its plaintext bytes.
// Returns common.ErrorNotFound when manifest or blob is missing and
// common.ErrIntegrity when the blob fails to decrypt.
func (v *Vault) Retrieve(identityID, mediaCode string) ([]byte, error) {
	if _, err := v.ReadManifest(identityID, mediaCode); err != nil {
		return nil, err
	}

	envelope, err := os.ReadFile(v.blobPath(identityID, mediaCode))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("blob %s/%s: %w", identityID, mediaCode, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}

	return v.cipher.Open(envelope)
}

// ListCodes enumerates media codes stored for an identity, from the
// manifest directory.
func (v *Vault) ListCodes(identityID string) ([]string, error) {
	dir := filepath.Join(v.dirs.Manifests(), SafePart(identityID))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	codes := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), manifestFileExt) {
			continue
		}
		codes = append(codes, strings.TrimSuffix(e.Name(), manifestFileExt))
	}
	sort.Strings(codes)
	return codes, nil
}
