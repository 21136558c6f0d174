// Package persist implements the durable document gateway: JSON documents on
// the local filesystem with backup-before-overwrite, atomic
// write-temp-then-rename saves, and optional fire-and-forget replication to
// an object-storage sink.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/ishaan2-svg/parkingawssystem/internal/loggingutil"
)

var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("persist: not found")
	// ErrCorrupt indicates the document exists but is not valid JSON.
	ErrCorrupt = errors.New("persist: corrupt document")
)

const replicateTimeout = 30 * time.Second

// Gateway is the load/save surface the engine persists documents through.
type Gateway interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// RemoteSink replicates a saved document to remote storage. Upload failures
// are tolerated: the gateway logs them and never fails the local save.
type RemoteSink interface {
	Name() string
	Upload(ctx context.Context, key string, data []byte) error
}

// Config captures the tunables for the file-backed gateway.
type Config struct {
	// Dir is the directory documents live in.
	Dir string
	// BackupDir receives the prior version of each document before it is
	// overwritten. Defaults to Dir/backups.
	BackupDir string
	// BackupRetention prunes backups older than this age. Zero keeps them
	// forever.
	BackupRetention time.Duration
	// JanitorInterval controls how often expired backups are pruned.
	JanitorInterval time.Duration
	// Sink, when set, receives every successfully saved document.
	Sink   RemoteSink
	Logger pslog.Logger
	Now    func() time.Time
}

// Store implements Gateway backed by the local filesystem.
type Store struct {
	dir       string
	backupDir string
	tmpDir    string
	retention time.Duration
	interval  time.Duration
	sink      RemoteSink
	logger    pslog.Logger
	now       func() time.Time

	saveMu sync.Mutex
	repl   sync.WaitGroup

	stopJanitor chan struct{}
	doneJanitor chan struct{}
}

// New initialises a file-backed gateway rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("persist: dir required")
	}
	if cfg.BackupRetention < 0 {
		return nil, fmt.Errorf("persist: backup retention must be >= 0")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dir := filepath.Clean(cfg.Dir)
	backupDir := cfg.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(dir, "backups")
	}
	tmpDir := filepath.Join(dir, "tmp")
	for _, d := range []string{dir, backupDir, tmpDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("persist: prepare directory %q: %w", d, err)
		}
	}
	s := &Store{
		dir:       dir,
		backupDir: backupDir,
		tmpDir:    tmpDir,
		retention: cfg.BackupRetention,
		interval:  cfg.JanitorInterval,
		sink:      cfg.Sink,
		logger:    loggingutil.EnsureLogger(cfg.Logger),
		now:       cfg.Now,
	}
	if s.interval <= 0 {
		s.interval = time.Hour
	}
	if s.retention > 0 {
		s.stopJanitor = make(chan struct{})
		s.doneJanitor = make(chan struct{})
		go s.janitorLoop()
	}
	return s, nil
}

// Close stops the backup janitor and waits for in-flight replication.
func (s *Store) Close() error {
	if s.stopJanitor != nil {
		close(s.stopJanitor)
		<-s.doneJanitor
		s.stopJanitor = nil
	}
	s.repl.Wait()
	return nil
}

// Load reads a document. Missing files map to ErrNotFound; files that are
// not valid JSON map to ErrCorrupt.
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	name, err := documentName(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("persist: read %q: %w", key, err)
	}
	if !validJSON(data) {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}
	return data, nil
}

// Save writes a document durably. The prior version, if any, is first copied
// into the backup area with a timestamp tag; the new version is written to a
// temp file and renamed over the current one so the document exists at every
// instant and a concurrent reader never observes a partial write. When a
// remote sink is configured the document is replicated afterwards on a
// separate goroutine; replication failures are logged and never surfaced to
// the caller.
func (s *Store) Save(_ context.Context, key string, data []byte) error {
	name, err := documentName(key)
	if err != nil {
		return err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	final := filepath.Join(s.dir, name)
	now := s.now()
	// Copy, never move: moving the current document into backups/ would
	// leave a window with no document at all, and a crash there makes the
	// next boot look like a first boot.
	if prev, err := os.ReadFile(final); err == nil {
		backup := filepath.Join(s.backupDir, fmt.Sprintf("%s.%d.bak", name, now.UnixNano()))
		if err := os.WriteFile(backup, prev, 0o644); err != nil {
			return fmt.Errorf("persist: backup %q: %w", key, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("persist: read prior %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(s.tmpDir, "doc-*")
	if err != nil {
		return fmt.Errorf("persist: create temp for %q: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: sync %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: close temp for %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("persist: rename %q: %w", key, err)
	}

	if s.sink != nil {
		payload := append([]byte(nil), data...)
		s.repl.Add(1)
		go s.replicate(name, payload)
	}
	return nil
}

func (s *Store) replicate(name string, data []byte) {
	defer s.repl.Done()
	ctx, cancel := context.WithTimeout(context.Background(), replicateTimeout)
	defer cancel()
	key := path.Join("backups", name)
	if err := s.sink.Upload(ctx, key, data); err != nil {
		s.logger.Warn("persist.replicate.failed", "sink", s.sink.Name(), "key", key, "error", err)
		return
	}
	s.logger.Debug("persist.replicate.ok", "sink", s.sink.Name(), "key", key, "bytes", len(data))
}

// PruneBackups removes backups older than the configured retention and
// returns how many were deleted. It is a no-op when retention is disabled.
func (s *Store) PruneBackups(now time.Time) int {
	if s.retention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return 0
	}
	pruned := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".bak") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= s.retention {
			continue
		}
		if err := os.Remove(filepath.Join(s.backupDir, entry.Name())); err == nil {
			pruned++
		}
	}
	return pruned
}

func (s *Store) janitorLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneJanitor)
	for {
		select {
		case <-ticker.C:
			if pruned := s.PruneBackups(s.now()); pruned > 0 {
				s.logger.Debug("persist.janitor.pruned", "backups", pruned)
			}
		case <-s.stopJanitor:
			return
		}
	}
}

func validJSON(data []byte) bool {
	return json.Valid(data)
}

func documentName(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("persist: invalid document key %q", key)
	}
	return key, nil
}
