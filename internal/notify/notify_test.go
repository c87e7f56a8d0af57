package notify_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brewline/internal/db"
	"brewline/internal/domain"
	"brewline/internal/migrate"
	"brewline/internal/notify"
	"brewline/internal/repo"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func TestScheduleAndDispatch(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	clk := &clock{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	s := notify.NewSQLScheduler(r, true, 10*time.Second, nil)
	s.Now = clk.Now

	id, err := s.Schedule(ctx, notify.StepAlert("sess-1", "Mash In"), clk.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var out bytes.Buffer
	d := notify.Dispatcher{Repo: r, Notifier: &notify.TerminalNotifier{Out: &out}, Now: clk.Now}
	n, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "not due yet")

	clk.Advance(time.Hour)
	n, err = d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "Mash In is done")

	n, err = d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "delivered alerts are not redelivered")

	got, err := r.GetNotification(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.DeliveredAt)
}

func TestScheduleSkips(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	disabled := notify.NewSQLScheduler(r, false, 0, nil)
	disabled.Now = func() time.Time { return now }
	id, err := disabled.Schedule(ctx, notify.StepAlert("s", "Boil"), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, id, "permission denied schedules nothing and does not fail")

	s := notify.NewSQLScheduler(r, true, 10*time.Second, nil)
	s.Now = func() time.Time { return now }
	id, err = s.Schedule(ctx, notify.StepAlert("s", "Boil"), now.Add(5*time.Second))
	require.NoError(t, err)
	assert.Empty(t, id, "deadline inside the minimum lead is not scheduled")
}

func TestCancelAndCancelMatching(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := notify.NewSQLScheduler(r, true, 0, nil)
	s.Now = func() time.Time { return now }

	stepA, err := s.Schedule(ctx, notify.StepAlert("a", "Sparge"), now.Add(time.Hour))
	require.NoError(t, err)
	stepB, err := s.Schedule(ctx, notify.StepAlert("b", "Sparge"), now.Add(time.Hour))
	require.NoError(t, err)
	ferm, err := s.Schedule(ctx, notify.StageAlert("a", domain.NotifyFermentation), now.Add(24*time.Hour))
	require.NoError(t, err)

	require.NoError(t, s.Cancel(ctx, stepB))
	require.NoError(t, s.Cancel(ctx, stepB), "second cancel is a no-op")
	require.NoError(t, s.Cancel(ctx, ""), "empty handle is a no-op")

	require.NoError(t, s.CancelMatching(ctx, notify.StepAlertsFor("a")))
	pending, err := r.PendingNotifications(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ferm, pending[0].ID)

	require.NoError(t, s.CancelMatching(ctx, notify.ForSubject("a")))
	pending, err = r.PendingNotifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	_ = stepA
}

func TestDispatchRetriesFailedDelivery(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := notify.NewSQLScheduler(r, true, 0, nil)
	s.Now = func() time.Time { return now }
	_, err := s.Schedule(ctx, notify.StageAlert("brew-1", domain.NotifyConditioning), now.Add(time.Minute))
	require.NoError(t, err)

	fail := true
	var delivered []string
	d := notify.Dispatcher{
		Repo: r,
		Now:  func() time.Time { return now.Add(2 * time.Minute) },
		Notifier: notify.NotifierFunc(func(_ context.Context, n domain.Notification) error {
			if fail {
				return errors.New("no display")
			}
			delivered = append(delivered, n.Title)
			return nil
		}),
	}
	n, err := d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	fail = false
	n, err = d.DispatchDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, delivered, 1)
	assert.True(t, strings.HasPrefix(delivered[0], "Conditioning"))
}
