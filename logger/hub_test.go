package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogIDsIncrement(t *testing.T) {
	h := NewHub(0)
	assert.Equal(t, int64(1), h.Log("a"))
	assert.Equal(t, int64(2), h.Log("b"))
}

func TestSubscribeReceivesLogAndExtend(t *testing.T) {
	h := NewHub(10)
	h.Log("before")

	ch, cancel := h.Subscribe(4)
	defer cancel()

	id := h.Log("downloading")
	h.Extend(id, " done")

	l := <-ch
	assert.Equal(t, Line{ID: id, Time: l.Time, Message: "downloading"}, l)
	l = <-ch
	assert.True(t, l.Extend)
	assert.Equal(t, id, l.ID)
	assert.Equal(t, " done", l.Message)
}

func TestHistoryIsBounded(t *testing.T) {
	h := NewHub(2)
	h.Log("a")
	h.Log("b")
	h.Log("c")
	got := h.History()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].Message)
	assert.Equal(t, "c", got[1].Message)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.Subscribe(1)
	h.Log("a")
	h.Log("b")
	assert.Equal(t, "a", (<-ch).Message)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	h.Log("after")
}
