// Package update implements the self-update flow: fetch a version
// manifest, download and checksum-verify the release archive, stage it
// next to the install tree and swap it in atomically with rollback.
package update

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/tracuuvn/tracuu/config"
	"github.com/tracuuvn/tracuu/log"
	"github.com/tracuuvn/tracuu/proclock"
)

var (
	// ErrIntegrity means the downloaded archive did not match the
	// manifest's checksum. The archive is discarded.
	ErrIntegrity = errors.New("update: checksum mismatch")
	// ErrSwap means the install swap failed. The previous tree is restored
	// before this is returned.
	ErrSwap = errors.New("update: install swap failed")
)

// keepArchives is how many downloaded release archives are retained.
const keepArchives = 3

// versionFile marks the installed release inside the install tree.
const versionFile = "version.json"

// Manifest is the remote release descriptor.
type Manifest struct {
	Version     string `json:"version"`
	DownloadURL string `json:"download_url"`
	SHA256      string `json:"sha256"`
}

// StagedRelease is a verified, extracted release ready to be swapped in.
type StagedRelease struct {
	Dir     string
	Version string
}

// Manager runs the update flow against one install tree.
type Manager struct {
	manifestURL string
	installDir  string
	lockFile    string
	client      *http.Client

	// rename is swapped out in tests to inject mid-swap failures.
	rename func(oldpath, newpath string) error
}

func NewManager(cfg config.UpdateConfig, lockFile string) *Manager {
	return &Manager{
		manifestURL: cfg.ManifestURL,
		installDir:  cfg.InstallDir,
		lockFile:    lockFile,
		client:      &http.Client{Timeout: 5 * time.Minute},
		rename:      os.Rename,
	}
}

// CurrentVersion reads the installed version marker. A missing or broken
// marker reads as 0.0.0 so any remote release counts as newer.
func (m *Manager) CurrentVersion() string {
	data, err := os.ReadFile(filepath.Join(m.installDir, versionFile))
	if err != nil {
		return "0.0.0"
	}
	var marker struct {
		Version string `json:"version"`
	}
	if json.Unmarshal(data, &marker) != nil || marker.Version == "" {
		return "0.0.0"
	}
	return marker.Version
}

// Check fetches the manifest and compares versions. It returns nil when
// the installed release is already current or newer.
func (m *Manager) Check(ctx context.Context) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.manifestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("update: building manifest request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("update: fetching manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update: manifest request returned %s", resp.Status)
	}

	var man Manifest
	if err := json.NewDecoder(resp.Body).Decode(&man); err != nil {
		return nil, fmt.Errorf("update: decoding manifest: %w", err)
	}
	remote := canonVersion(man.Version)
	if !semver.IsValid(remote) {
		return nil, fmt.Errorf("update: manifest has invalid version %q", man.Version)
	}
	if man.DownloadURL == "" || man.SHA256 == "" {
		return nil, fmt.Errorf("update: manifest is missing download_url or sha256")
	}
	if semver.Compare(remote, canonVersion(m.CurrentVersion())) <= 0 {
		log.LoggerFromContext(ctx).Debug("already up to date",
			slog.String("installed", m.CurrentVersion()), slog.String("remote", man.Version))
		return nil, nil
	}
	return &man, nil
}

// Download fetches the release archive, verifies its checksum while
// streaming and extracts it into a staging directory next to the install
// tree. The version marker is written into the staged tree so the later
// swap is a single rename.
func (m *Manager) Download(ctx context.Context, man *Manifest) (*StagedRelease, error) {
	updatesDir := filepath.Join(filepath.Dir(m.installDir), "_updates")
	if err := os.MkdirAll(updatesDir, 0o755); err != nil {
		return nil, fmt.Errorf("update: creating %s: %w", updatesDir, err)
	}

	archive := filepath.Join(updatesDir, fmt.Sprintf("update_%d.zip", time.Now().UnixNano()))
	if err := m.fetchArchive(ctx, man, archive); err != nil {
		return nil, err
	}
	pruneArchives(updatesDir, keepArchives)

	stageDir := filepath.Join(updatesDir, fmt.Sprintf("stage_%d", time.Now().UnixNano()))
	if err := extractZip(archive, stageDir); err != nil {
		os.RemoveAll(stageDir)
		return nil, err
	}
	marker, _ := json.Marshal(struct {
		Version string `json:"version"`
	}{Version: man.Version})
	if err := os.WriteFile(filepath.Join(stageDir, versionFile), marker, 0o644); err != nil {
		os.RemoveAll(stageDir)
		return nil, fmt.Errorf("update: writing version marker: %w", err)
	}
	return &StagedRelease{Dir: stageDir, Version: man.Version}, nil
}

// Apply swaps the staged release into place. The previous tree is moved
// aside first and restored if the swap fails, so the install directory is
// either fully updated or untouched.
func (m *Manager) Apply(ctx context.Context, staged *StagedRelease) error {
	lock, err := proclock.Acquire(m.lockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	backup := m.installDir + ".bak"
	if err := os.RemoveAll(backup); err != nil {
		return fmt.Errorf("update: clearing old backup: %w", err)
	}

	hadInstall := true
	if _, err := os.Stat(m.installDir); errors.Is(err, os.ErrNotExist) {
		hadInstall = false
	}
	if hadInstall {
		if err := m.rename(m.installDir, backup); err != nil {
			return fmt.Errorf("%w: moving current install aside: %v", ErrSwap, err)
		}
	}
	if err := m.rename(staged.Dir, m.installDir); err != nil {
		if hadInstall {
			if rerr := m.rename(backup, m.installDir); rerr != nil {
				return fmt.Errorf("%w: %v; restore also failed: %v", ErrSwap, err, rerr)
			}
		}
		return fmt.Errorf("%w: %v", ErrSwap, err)
	}
	if hadInstall {
		os.RemoveAll(backup)
	}
	log.LoggerFromContext(ctx).Info("update installed", slog.String("version", staged.Version))
	return nil
}

func (m *Manager) fetchArchive(ctx context.Context, man *Manifest, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, man.DownloadURL, nil)
	if err != nil {
		return fmt.Errorf("update: building download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("update: downloading release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update: download returned %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("update: creating archive file: %w", err)
	}
	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, hash), resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("update: writing archive: %w", err)
	}
	sum := hex.EncodeToString(hash.Sum(nil))
	if !strings.EqualFold(sum, man.SHA256) {
		os.Remove(dest)
		return fmt.Errorf("%w: got %s, manifest says %s", ErrIntegrity, sum, man.SHA256)
	}
	return nil
}

// extractZip unpacks the archive into dir, refusing entries that would
// escape it.
func extractZip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("update: opening archive: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update: creating stage dir: %w", err)
	}
	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("update: archive entry %q escapes the stage directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("update: creating %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("update: creating %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("update: opening archive entry %s: %w", f.Name, err)
	}
	defer src.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("update: creating %s: %w", target, err)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("update: extracting %s: %w", f.Name, err)
	}
	return nil
}

// pruneArchives keeps the newest n update_*.zip files and removes the
// rest. Best effort: the names embed nanosecond timestamps, so
// lexicographic order is creation order.
func pruneArchives(dir string, n int) {
	matches, err := filepath.Glob(filepath.Join(dir, "update_*.zip"))
	if err != nil || len(matches) <= n {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-n] {
		os.Remove(old)
	}
}

// canonVersion normalizes a version string for semver comparison.
func canonVersion(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	return "v" + v
}
