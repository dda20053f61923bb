// Package backupsvc schedules nightly database dumps. Dumps run pg_dump
// inside a disposable docker container so the host needs no postgres
// client tools, and old dump files are pruned past the retention window.
package backupsvc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/edukit/gradebook/core"
)

const dockerImage = "postgres:14-alpine"

type Service struct {
	conf   *core.Config
	logger core.Logger

	nowFunc func() time.Time // mockable
}

func NewService(conf *core.Config, logger core.Logger) *Service {
	return &Service{conf: conf, logger: logger, nowFunc: time.Now}
}

// Start runs the backup loop until ctx is cancelled. Failures are logged
// and the loop keeps going; a missed backup never takes the API down.
func (svc *Service) Start(ctx context.Context) {
	for {
		wait := svc.untilNextRun()
		svc.logger.Info(fmt.Sprintf("next database backup in %s", wait.Round(time.Second)))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := svc.Backup(ctx); err != nil {
			svc.logger.Error(fmt.Sprintf("database backup failed: %v", err), err)
		}
		if err := svc.Prune(); err != nil {
			svc.logger.Error(fmt.Sprintf("pruning old backups failed: %v", err), err)
		}
	}
}

// untilNextRun returns the duration until the next configured backup hour.
func (svc *Service) untilNextRun() time.Duration {
	now := svc.nowFunc()
	next := time.Date(now.Year(), now.Month(), now.Day(), svc.conf.Backup.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// Backup dumps the database to a timestamped file in the backup directory.
func (svc *Service) Backup(ctx context.Context) error {
	if err := os.MkdirAll(svc.conf.Backup.Dir, 0o755); err != nil {
		return errors.Wrap(err, "creating backup directory")
	}

	name := fmt.Sprintf("%s-%s.sql", svc.conf.Database.Name, svc.nowFunc().UTC().Format("20060102T150405"))
	path := filepath.Join(svc.conf.Backup.Dir, name)
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating backup file")
	}
	defer func() { _ = out.Close() }()

	db := svc.conf.Database
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm", "--network", "host",
		"-e", "PGPASSWORD="+db.Password,
		dockerImage,
		"pg_dump", "-h", db.Host, "-p", strconv.Itoa(db.Port), "-U", db.User, db.Name,
	)
	cmd.Stdout = out
	errOut := new(strings.Builder)
	cmd.Stderr = errOut

	if err = cmd.Run(); err != nil {
		_ = os.Remove(path) // do not keep a partial dump
		return errors.Wrapf(err, "running pg_dump: %s", errOut.String())
	}

	svc.logger.Info("database backed up to " + path)
	return nil
}

// Prune removes dump files older than the retention window.
func (svc *Service) Prune() error {
	cutoff := svc.nowFunc().AddDate(0, 0, -svc.conf.Backup.RetentionDays)

	entries, err := os.ReadDir(svc.conf.Backup.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "reading backup directory")
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return errors.Wrap(err, "reading backup file info")
		}
		if info.ModTime().Before(cutoff) {
			if err = os.Remove(filepath.Join(svc.conf.Backup.Dir, entry.Name())); err != nil {
				return errors.Wrap(err, "removing old backup")
			}
			svc.logger.Info("pruned old backup " + entry.Name())
		}
	}
	return nil
}
