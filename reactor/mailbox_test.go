package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailboxDrainIsFIFO(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	mb := newMailbox[int](l)
	mb.push(1)
	mb.push(2)
	mb.push(3)

	require.Equal(t, []int{1, 2, 3}, mb.drain())
	require.Nil(t, mb.drain())
}

func TestMailboxPushAfterCloseIsNoOp(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	mb := newMailbox[int](l)
	mb.close()
	mb.push(42)
	require.Nil(t, mb.drain())
}

func TestMailboxPushWakesLoopWait(t *testing.T) {
	l, err := newLoop()
	require.NoError(t, err)
	defer l.close()

	mb := newMailbox[string](l)
	woke := make(chan bool, 1)
	go func() {
		l.wait(1000, func(fd int, mask uint32, woken bool) bool {
			woke <- woken
			return false
		})
	}()
	time.Sleep(10 * time.Millisecond)
	mb.push("hello")

	select {
	case w := <-woke:
		require.True(t, w)
	case <-time.After(time.Second):
		t.Fatal("loop.wait never observed the wakeup")
	}
	require.Equal(t, []string{"hello"}, mb.drain())
}
