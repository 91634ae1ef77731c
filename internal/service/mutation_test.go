package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMutationRunsPhasesInOrder(t *testing.T) {
	var steps []string

	err := Mutation{
		Apply:    func() { steps = append(steps, "apply") },
		Commit:   func() error { steps = append(steps, "commit"); return nil },
		Rollback: func() { steps = append(steps, "rollback") },
	}.Run()

	require.NoError(t, err)
	require.Equal(t, []string{"apply", "commit"}, steps)
}

func TestMutationRollsBackOnCommitFailure(t *testing.T) {
	var steps []string
	commitErr := errors.New("write failed")

	err := Mutation{
		Apply:    func() { steps = append(steps, "apply") },
		Commit:   func() error { return commitErr },
		Rollback: func() { steps = append(steps, "rollback") },
	}.Run()

	require.ErrorIs(t, err, commitErr)
	require.Equal(t, []string{"apply", "rollback"}, steps)
}

func TestMutationWithoutCommitApplies(t *testing.T) {
	applied := false
	require.NoError(t, Mutation{Apply: func() { applied = true }}.Run())
	require.True(t, applied)
}

func TestInflightGuardRejectsConcurrentKey(t *testing.T) {
	guard := NewInflightGuard()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- guard.Do("key", Mutation{Commit: func() error {
			close(entered)
			<-release
			return nil
		}})
	}()

	<-entered
	err := guard.Do("key", Mutation{Commit: func() error { return nil }})
	require.ErrorIs(t, err, ErrMutationInFlight)

	// an unrelated key is not blocked
	require.NoError(t, guard.Do("other", Mutation{}))

	close(release)
	require.NoError(t, <-done)

	// the key frees up once the first mutation finishes
	require.NoError(t, guard.Do("key", Mutation{}))
}

func TestInflightGuardAllowsOnlyOneWinner(t *testing.T) {
	guard := NewInflightGuard()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	rejected := 0

	start := make(chan struct{})
	release := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := guard.Do("key", Mutation{Commit: func() error {
				<-release
				return nil
			}})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				require.ErrorIs(t, err, ErrMutationInFlight)
				rejected++
			} else {
				succeeded++
			}
		}()
	}

	close(start)
	// let the losers bounce off before releasing the winner
	for {
		mu.Lock()
		r := rejected
		mu.Unlock()
		if r == 7 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	require.Equal(t, 1, succeeded)
	require.Equal(t, 7, rejected)
}
