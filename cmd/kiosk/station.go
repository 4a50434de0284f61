package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"scan-licences/internal/checkin"
	"scan-licences/internal/logger"
	"scan-licences/internal/model"
	"scan-licences/internal/outbox"
	"scan-licences/internal/season"
)

type sessionOpener interface {
	OpenToday(ctx context.Context) (*model.Session, error)
}

type frontDoor interface {
	Submit(ctx context.Context, sessionID int64, rawURL string) checkin.Result
	SyncNow()
	Len(ctx context.Context) (int, error)
}

// station reads scans line by line and reports one line per scan.
type station struct {
	sessions sessionOpener
	queue    frontDoor
	conn     outbox.Connectivity
	cal      *season.Calendar
	out      io.Writer
	now      func() time.Time

	mu      sync.Mutex
	session *model.Session
}

// sessionID returns today's session, reopening it when the day changed.
// Without a backend the last known session of the same day is reused.
func (s *station) sessionID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := s.cal.Today(s.now())
	if s.session != nil && s.session.Date == today {
		return s.session.ID, nil
	}
	sess, err := s.sessions.OpenToday(ctx)
	if err != nil {
		return 0, err
	}
	s.session = sess
	logger.Info("kiosk.session", "id", sess.ID, "date", sess.Date)
	return sess.ID, nil
}

func (s *station) handle(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	switch strings.ToLower(line) {
	case "":
		return
	case "sync":
		s.queue.SyncNow()
		fmt.Fprintln(s.out, "sync requested")
		return
	case "status":
		n, err := s.queue.Len(ctx)
		if err != nil {
			fmt.Fprintln(s.out, "outbox unreadable:", err)
			return
		}
		state := "online"
		if s.conn != nil && !s.conn.Online() {
			state = "offline"
		}
		fmt.Fprintf(s.out, "%s, %d scan(s) waiting\n", state, n)
		return
	}

	id, err := s.sessionID(ctx)
	if err != nil {
		logger.Warn("kiosk.no_session", "error", err)
		fmt.Fprintln(s.out, "cannot open today's session:", err)
		return
	}
	res := s.queue.Submit(ctx, id, line)
	fmt.Fprintln(s.out, res.Message())
}

// read consumes r until EOF or ctx is done.
func (s *station) read(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		s.handle(ctx, sc.Text())
	}
	return sc.Err()
}

func (s *station) dropped(ev outbox.DropEvent) {
	fmt.Fprintf(s.out, "gave up after %d attempts: %s (%s)\n", ev.Item.Attempts, ev.Item.URL, ev.Last.Message())
}
