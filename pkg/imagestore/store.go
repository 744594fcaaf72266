// Package imagestore writes base64 evidence snapshots to a date-partitioned,
// content-addressed directory tree under <static>/snaps/<YYYYMMDD>/.
package imagestore

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var snapsRe = regexp.MustCompile(`/snaps/(\d{8})/([^/?#]+)$`)
var wsRe = regexp.MustCompile(`\s+`)

type Store struct {
	// StaticDir is the web-served root, snapshots live in StaticDir/snaps.
	StaticDir string
	// PublicBase, when set, turns references into fully-qualified URLs.
	PublicBase string
}

func New(staticDir, publicBase string) *Store {
	return &Store{
		StaticDir:  staticDir,
		PublicBase: strings.TrimRight(publicBase, "/"),
	}
}

// Root is the snapshot tree root.
func (s *Store) Root() string {
	return filepath.Join(s.StaticDir, "snaps")
}

// LocalPath maps a relative reference ("snaps/<day>/<file>") to disk.
func (s *Store) LocalPath(rel string) string {
	return filepath.Join(s.StaticDir, filepath.FromSlash(rel))
}

// RelFromURL extracts "snaps/<day>/<file>" from a stored reference, either
// a full URL or a relative /static path.
func RelFromURL(imageURL string) (string, bool) {
	if imageURL == "" {
		return "", false
	}
	// strip query/fragment before matching the path tail
	if i := strings.IndexAny(imageURL, "?#"); i >= 0 {
		imageURL = imageURL[:i]
	}
	m := snapsRe.FindStringSubmatch(imageURL)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("snaps/%s/%s", m[1], m[2]), true
}

// SaveBase64 decodes an embedded image and writes it content-addressed under
// the given day, skipping the write when the content already exists. The
// returned reference is a public URL when PublicBase is configured, else a
// relative /static path.
func (s *Store) SaveBase64(b64, day string) (string, error) {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(b64)), "data:") {
		if _, rest, found := strings.Cut(b64, ","); found {
			b64 = rest
		}
	}
	b64 = wsRe.ReplaceAllString(b64, "")
	if pad := len(b64) % 4; pad != 0 {
		b64 += strings.Repeat("=", 4-pad)
	}

	blob, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}

	sum := md5.Sum(blob)
	name := hex.EncodeToString(sum[:])[:16] + ".jpg"

	dir := filepath.Join(s.Root(), day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create day dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, blob, 0o644); err != nil {
			return "", fmt.Errorf("write snapshot: %w", err)
		}
	}

	if s.PublicBase != "" {
		return fmt.Sprintf("%s/snaps/%s/%s", s.PublicBase, day, name), nil
	}
	return fmt.Sprintf("/static/snaps/%s/%s", day, name), nil
}

// RemoveDayDirIfEmpty removes a day directory once its last file is gone.
func (s *Store) RemoveDayDirIfEmpty(day string) error {
	dir := filepath.Join(s.Root(), day)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) == 0 {
		return os.Remove(dir)
	}
	return nil
}
