// Package backup mirrors the whole attendance log to object storage as a
// dated CSV file.
package backup

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"scan-licences/internal/export"
	"scan-licences/internal/logger"
	"scan-licences/internal/model"
	"scan-licences/internal/season"
	"scan-licences/internal/storage"
)

var columns = []string{"last_name", "first_name", "licence_no", "session_id", "datetime_local", "timestamp"}

type EntrySource interface {
	All(ctx context.Context) ([]model.Entry, error)
}

type Job struct {
	entries EntrySource
	members export.MemberSource
	bucket  storage.Bucket
	cal     *season.Calendar
	now     func() time.Time
}

func NewJob(entries EntrySource, members export.MemberSource, bucket storage.Bucket, cal *season.Calendar) *Job {
	return &Job{entries: entries, members: members, bucket: bucket, cal: cal, now: time.Now}
}

// Run writes backups/<today>.csv, replacing any earlier backup of the day,
// and returns the object key.
func (j *Job) Run(ctx context.Context) (string, error) {
	entries, err := j.entries.All(ctx)
	if err != nil {
		return "", fmt.Errorf("load entries: %w", err)
	}
	members, err := j.members.ByLicences(ctx, model.DistinctLicences(entries))
	if err != nil {
		return "", fmt.Errorf("load members: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, entries, members, j.cal); err != nil {
		return "", fmt.Errorf("render backup: %w", err)
	}
	key := storage.BackupKey(j.now().In(j.cal.Location()))
	if err := j.bucket.Put(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	logger.Info("backup.done", "key", key, "entries", len(entries))
	return key, nil
}

func WriteCSV(w io.Writer, entries []model.Entry, members map[string]model.Member, cal *season.Calendar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	rows := export.Join(entries, members, cal)
	for i, e := range entries {
		r := rows[i]
		rec := []string{
			r.LastName,
			r.FirstName,
			r.LicenceNo,
			strconv.FormatInt(e.SessionID, 10),
			r.RecordedAt,
			e.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Schedule registers job under spec, interpreted in the club timezone. The
// caller starts and stops the returned scheduler.
func Schedule(spec string, cal *season.Calendar, job *Job, timeout time.Duration) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(cal.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := job.Run(ctx); err != nil {
			logger.Error("backup.failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("backup schedule %q: %w", spec, err)
	}
	return c, nil
}
