package repostore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Redysz/Graphoria/internal/config"
	"github.com/Redysz/Graphoria/internal/gitexec"
)

// Service persists the list of known repositories and their settings.
type Service struct {
	db *gorm.DB
}

var ErrNotFound = errors.New("repository not found")

func NewService() (*Service, error) {
	dbPath, db, err := openWritableDatabase()
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Repository{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	os.Chmod(dbPath, 0600)
	log.Printf("[Graphoria] database initialized at %s", dbPath)
	return &Service{db: db}, nil
}

// openWritableDatabase walks the candidate locations until one accepts
// writes. Sandboxed environments can hand out a readonly config dir, so
// every candidate is probed with an actual write.
func openWritableDatabase() (string, *gorm.DB, error) {
	candidates := make([]string, 0, 3)
	if override := strings.TrimSpace(os.Getenv(config.DBPathEnv)); override != "" {
		candidates = append(candidates, override)
	}
	candidates = append(candidates, config.DBPath())
	if cwd, err := os.Getwd(); err == nil && strings.TrimSpace(cwd) != "" {
		candidates = append(candidates, filepath.Join(cwd, ".graphoria", config.DBFileName))
	}
	candidates = append(candidates, filepath.Join(os.TempDir(), config.AppName, config.DBFileName))

	var lastErr error
	for _, candidate := range candidates {
		path := strings.TrimSpace(candidate)
		if path == "" {
			continue
		}

		if !isLikelyWritable(path) {
			lastErr = fmt.Errorf("path not writable: %s", path)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			lastErr = err
			continue
		}

		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			lastErr = err
			continue
		}

		sqlDB, err := db.DB()
		if err != nil {
			lastErr = err
			continue
		}

		sqlDB.Exec("PRAGMA journal_mode=WAL")
		sqlDB.Exec("PRAGMA busy_timeout=5000")
		sqlDB.Exec("PRAGMA synchronous=NORMAL")
		sqlDB.Exec("PRAGMA foreign_keys=ON")

		probeErr := db.Exec("CREATE TABLE IF NOT EXISTS _graphoria_write_probe (id INTEGER PRIMARY KEY AUTOINCREMENT)").Error
		if probeErr == nil {
			probeErr = db.Exec("INSERT INTO _graphoria_write_probe DEFAULT VALUES").Error
		}
		if probeErr == nil {
			_ = db.Exec("DELETE FROM _graphoria_write_probe WHERE id = (SELECT MAX(id) FROM _graphoria_write_probe)").Error
		}
		if probeErr != nil {
			lastErr = probeErr
			_ = sqlDB.Close()
			continue
		}

		return path, db, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no database path candidates available")
	}
	return "", nil, fmt.Errorf("failed to open writable database: %w", lastErr)
}

func isLikelyWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// List returns every known repository, most recently opened first.
func (s *Service) List() ([]Repository, error) {
	var repos []Repository
	result := s.db.Order("last_opened_at DESC, updated_at DESC").Find(&repos)
	return repos, result.Error
}

// Get returns one repository by ID.
func (s *Service) Get(id string) (*Repository, error) {
	var repo Repository
	result := s.db.Where("id = ?", id).First(&repo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &repo, nil
}

// GetByPath returns the repository registered at a normalized path.
func (s *Service) GetByPath(repoPath string) (*Repository, error) {
	var repo Repository
	result := s.db.Where("path = ?", gitexec.NormalizeRepoPath(repoPath)).First(&repo)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, result.Error
	}
	return &repo, nil
}

// Add registers a repository, or returns the existing registration when
// the path is already known.
func (s *Service) Add(repoPath string, name string) (*Repository, error) {
	normalized := gitexec.NormalizeRepoPath(repoPath)
	if normalized == "" {
		return nil, fmt.Errorf("repository path is required")
	}

	if existing, err := s.GetByPath(normalized); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = filepath.Base(filepath.FromSlash(normalized))
	}

	now := time.Now()
	repo := &Repository{
		ID:            uuid.NewString(),
		Path:          normalized,
		Name:          strings.TrimSpace(name),
		DefaultRemote: config.DefaultRemote,
		LastOpenedAt:  &now,
	}
	if err := s.db.Create(repo).Error; err != nil {
		return nil, err
	}
	return repo, nil
}

// Update persists changed settings of a known repository.
func (s *Service) Update(repo *Repository) error {
	if repo == nil || strings.TrimSpace(repo.ID) == "" {
		return fmt.Errorf("repository id is required")
	}
	return s.db.Save(repo).Error
}

// Touch records that the repository was just opened.
func (s *Service) Touch(id string) error {
	now := time.Now()
	result := s.db.Model(&Repository{}).Where("id = ?", id).Update("last_opened_at", &now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTrustedGlobally flips the stored trust flag after the user accepts
// the dubious-ownership prompt.
func (s *Service) SetTrustedGlobally(id string, trusted bool) error {
	result := s.db.Model(&Repository{}).Where("id = ?", id).Update("trusted_globally", trusted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove forgets a repository. The working copy is untouched.
func (s *Service) Remove(id string) error {
	result := s.db.Where("id = ?", id).Delete(&Repository{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
