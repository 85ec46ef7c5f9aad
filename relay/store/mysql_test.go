package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

// mysqlStore connects to the database named by TEST_MYSQL_DSN and starts
// each test from an empty table. Tests are skipped when the variable is
// unset so the suite runs without a database server.
func mysqlStore(t *testing.T) *MySQLStore {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL tests: TEST_MYSQL_DSN not set")
	}
	s, err := NewMySQLStore(dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore failed: %v", err)
	}
	if _, err := s.db.ExecContext(context.Background(), "DELETE FROM correlation_records"); err != nil {
		t.Fatalf("failed to reset table: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMySQLStore_RegisterOnce(t *testing.T) {
	ctx := context.Background()
	s := mysqlStore(t)

	rec := Record{ExecutionARN: testARN, InvocationID: "100.0", SQLStatement: "SELECT 1", TaskToken: "tok-1"}
	mustRegister(t, s, rec)

	rec.TaskToken = "tok-2"
	if err := s.Register(ctx, rec); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	token, err := s.TaskToken(ctx, testARN, "100.0")
	if err != nil {
		t.Fatalf("TaskToken failed: %v", err)
	}
	if token != "tok-1" {
		t.Errorf("expected first registration to win, got %q", token)
	}
}

func TestMySQLStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := mysqlStore(t)

	for _, id := range []string{"100.0", "99.5", "100.5"} {
		mustRegister(t, s, Record{ExecutionARN: testARN, InvocationID: id, SQLStatement: "SELECT 1", TaskToken: "tok-" + id})
	}

	latest, err := s.LatestInvocation(ctx, testARN)
	if err != nil {
		t.Fatalf("LatestInvocation failed: %v", err)
	}
	if latest != "100.5" {
		t.Errorf("LatestInvocation = %q, want %q", latest, "100.5")
	}

	expiry := time.Now().UTC().Unix() - 60
	details := map[string]interface{}{"state": "FINISHED", "duration": 12.5}
	if err := s.Retire(ctx, testARN, "100.5", expiry, details); err != nil {
		t.Fatalf("Retire failed: %v", err)
	}

	deleted, err := s.DeleteExpired(ctx, time.Now().UTC().Unix())
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("DeleteExpired = %d, want 1", deleted)
	}
	if _, err := s.TaskToken(ctx, testARN, "100.5"); !errors.Is(err, ErrUntrackedStatement) {
		t.Errorf("expected reaped record gone, got %v", err)
	}
	if _, err := s.TaskToken(ctx, testARN, "100.0"); err != nil {
		t.Errorf("pending record must survive reaping: %v", err)
	}
}

func TestMySQLStore_Concurrency(t *testing.T) {
	ctx := context.Background()
	s := mysqlStore(t)

	// All racers insert the same key; exactly one wins.
	const racers = 8
	errs := make(chan error, racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			errs <- s.Register(ctx, Record{
				ExecutionARN: testARN,
				InvocationID: "100.0",
				SQLStatement: "SELECT 1",
				TaskToken:    fmt.Sprintf("tok-%d", i),
			})
		}(i)
	}

	var winners, losers int
	for i := 0; i < racers; i++ {
		switch err := <-errs; {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyRegistered):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("expected exactly 1 winner, got %d (losers %d)", winners, losers)
	}
}
