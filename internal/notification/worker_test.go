package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"presence-tracker-backend/internal/model"
)

// mockSender is a mock implementation of the Sender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

const (
	subscriptionsQuery = `SELECT .* FROM "push_subscriptions".*JOIN .*subscription_member_mapping.*WHERE .*smm\.member_id = \$1`
	memberNameQuery    = `SELECT "name" FROM "members" WHERE id = \$1 AND "members"\."deleted_at" IS NULL ORDER BY "members"\."id" LIMIT \$[0-9]+`
)

func subscriptionRows(sub model.PushSubscription) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}).
		AddRow(sub.Endpoint, sub.P256DH, sub.Auth, time.Now())
}

func okResponse() *http.Response {
	return &http.Response{
		StatusCode: http.StatusCreated,
		Body:       io.NopCloser(bytes.NewBufferString("")),
	}
}

func TestWorkerPool_Dispatch(t *testing.T) {
	db, _ := newTestDB(t)
	wp := NewWorkerPool(1, db, &webpush.Options{})

	wp.Dispatch("rower001")

	select {
	case job := <-wp.jobs:
		assert.Equal(t, "rower001", job)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_NotifyCheckInDoesNotBlock(t *testing.T) {
	wp := NewWorkerPool(1, nil, nil)
	capacity := cap(wp.jobs)

	done := make(chan struct{})
	go func() {
		for i := 0; i < capacity+3; i++ {
			wp.NotifyCheckIn(fmt.Sprintf("rower%03d", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifyCheckIn blocked on a full queue")
	}
	assert.Len(t, wp.jobs, capacity)
}

func TestWorkerPool_WaitAfterCancel(t *testing.T) {
	wp := NewWorkerPool(3, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	wp.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		wp.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not stop after cancel")
	}
}

func TestWorkerPool_WorkerLogic(t *testing.T) {
	gormDB, mock := newTestDB(t)
	wp := NewWorkerPool(1, gormDB, &webpush.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	t.Run("sends notification for one subscription", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		memberID := "rower001"
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/push",
			P256DH:   "test_p256dh",
			Auth:     "test_auth",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/push", sub.Endpoint)
				assert.Equal(t, "test_p256dh", sub.Keys.P256dh)
				assert.Equal(t, "Sam Allen is in the erg room!", string(payload))
				wg.Done()
				return okResponse(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(memberID).
			WillReturnRows(subscriptionRows(subscription))

		mock.ExpectQuery(memberNameQuery).
			WithArgs(memberID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Sam Allen"))

		wp.Dispatch(memberID)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		memberID := "rower002"
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/expired",
			P256DH:   "test_p256dh_expired",
			Auth:     "test_auth_expired",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(memberID).
			WillReturnRows(subscriptionRows(subscription))

		mock.ExpectQuery(memberNameQuery).
			WithArgs(memberID, 1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Owen Anawalt"))

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE "push_subscriptions"."endpoint" = \$1`).
			WithArgs(subscription.Endpoint).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		wp.Dispatch(memberID)

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("falls back to member ID when lookup fails", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(1)

		memberID := "8804a51b"
		subscription := model.PushSubscription{
			Endpoint: "https://example.com/fallback",
			P256DH:   "test_p256dh_fallback",
			Auth:     "test_auth_fallback",
		}

		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				assert.Equal(t, "https://example.com/fallback", sub.Endpoint)
				assert.Equal(t, "8804a51b is in the erg room!", string(payload))
				wg.Done()
				return okResponse(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(memberID).
			WillReturnRows(subscriptionRows(subscription))

		mock.ExpectQuery(memberNameQuery).
			WithArgs(memberID, 1).
			WillReturnError(fmt.Errorf("member not found"))

		wp.Dispatch(memberID)
		wg.Wait()
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no subscribers sends nothing", func(t *testing.T) {
		memberID := "rower003"
		wp.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				t.Errorf("unexpected notification to %s", sub.Endpoint)
				return okResponse(), nil
			},
		}

		mock.ExpectQuery(subscriptionsQuery).
			WithArgs(memberID).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "p256dh", "auth", "created_at"}))

		wp.Dispatch(memberID)

		assert.Eventually(t, func() bool {
			return mock.ExpectationsWereMet() == nil
		}, time.Second, 10*time.Millisecond)
	})
}
