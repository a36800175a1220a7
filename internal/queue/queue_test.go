package queue

import (
	"testing"
	"time"

	"vdengine/internal/model"
)

func TestPopReturnsHighestPriorityFirst(t *testing.T) {
	dq := NewDownloadQueue()
	now := time.Now()
	dq.Push(&model.Task{ID: "low", Priority: 0, CreatedAt: now})
	dq.Push(&model.Task{ID: "high", Priority: 5, CreatedAt: now})
	dq.Push(&model.Task{ID: "mid", Priority: 2, CreatedAt: now})

	order := []string{}
	for i := 0; i < 3; i++ {
		task, ok := dq.Pop()
		if !ok {
			t.Fatal("expected a task")
		}
		order = append(order, task.ID)
	}

	want := []string{"high", "mid", "low"}
	for i, id := range want {
		if order[i] != id {
			t.Fatalf("pop order = %v, want %v", order, want)
		}
	}
}

func TestPopFIFOWithinSamePriority(t *testing.T) {
	dq := NewDownloadQueue()
	first := time.Now()
	second := first.Add(time.Millisecond)

	dq.Push(&model.Task{ID: "second", Priority: 1, CreatedAt: second})
	dq.Push(&model.Task{ID: "first", Priority: 1, CreatedAt: first})

	task, _ := dq.Pop()
	if task.ID != "first" {
		t.Fatalf("expected oldest same-priority task first, got %s", task.ID)
	}
}

func TestRemoveDropsPendingTask(t *testing.T) {
	dq := NewDownloadQueue()
	dq.Push(&model.Task{ID: "a", CreatedAt: time.Now()})
	dq.Push(&model.Task{ID: "b", CreatedAt: time.Now()})

	if !dq.Remove("a") {
		t.Fatal("expected Remove to find task a")
	}
	if dq.Len() != 1 {
		t.Fatalf("expected 1 remaining task, got %d", dq.Len())
	}
	task, _ := dq.Pop()
	if task.ID != "b" {
		t.Fatalf("expected remaining task b, got %s", task.ID)
	}
}

func TestCloseUnblocksPop(t *testing.T) {
	dq := NewDownloadQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := dq.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	dq.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected Pop to report false after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}
