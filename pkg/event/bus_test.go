package event

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// TestBusPublishSubscribe はバスの発行・購読の基本動作を検証する。
func TestBusPublishSubscribe(t *testing.T) {
	t.Parallel()

	t.Run("購読者はイベントを発行順に受信する", func(t *testing.T) {
		t.Parallel()

		bus := NewBus()
		var mu sync.Mutex
		var received []string

		bus.Subscribe(func(e *Event) {
			mu.Lock()
			received = append(received, e.AggregateID)
			mu.Unlock()
		})

		for i := 0; i < 10; i++ {
			bus.Publish(&Event{AggregateID: fmt.Sprintf("agenda-%d", i)})
		}
		bus.Close()

		mu.Lock()
		defer mu.Unlock()
		if len(received) != 10 {
			t.Fatalf("受信イベント数: got %d, want 10", len(received))
		}
		for i, id := range received {
			want := fmt.Sprintf("agenda-%d", i)
			if id != want {
				t.Errorf("受信順序が不正: got %s, want %s", id, want)
			}
		}
	})

	t.Run("複数の購読者全員がイベントを受信する", func(t *testing.T) {
		t.Parallel()

		bus := NewBus()
		var wg sync.WaitGroup
		wg.Add(3)
		counts := make([]int, 3)

		for i := 0; i < 3; i++ {
			i := i
			bus.Subscribe(func(_ *Event) {
				counts[i]++
				if counts[i] == 5 {
					wg.Done()
				}
			})
		}

		for i := 0; i < 5; i++ {
			bus.Publish(&Event{AggregateID: "agenda-1"})
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("全購読者への配信がタイムアウトしました")
		}
		bus.Close()
	})

	t.Run("遅い購読者が他の購読者の配信を妨げない", func(t *testing.T) {
		t.Parallel()

		bus := NewBus()
		slowRelease := make(chan struct{})
		fastDone := make(chan struct{})

		// 最初のイベント処理でブロックする購読者
		bus.Subscribe(func(_ *Event) {
			<-slowRelease
		})
		count := 0
		bus.Subscribe(func(_ *Event) {
			count++
			if count == 3 {
				close(fastDone)
			}
		})

		for i := 0; i < 3; i++ {
			bus.Publish(&Event{AggregateID: "agenda-1"})
		}

		select {
		case <-fastDone:
		case <-time.After(2 * time.Second):
			t.Fatal("遅い購読者により他の購読者の配信が遅延しました")
		}
		close(slowRelease)
		bus.Close()
	})
}

// TestBusClose はクローズ後のバスの動作を検証する。
func TestBusClose(t *testing.T) {
	t.Parallel()

	t.Run("Close後のPublishは無視される", func(t *testing.T) {
		t.Parallel()

		bus := NewBus()
		received := 0
		bus.Subscribe(func(_ *Event) { received++ })

		bus.Publish(&Event{AggregateID: "agenda-1"})
		bus.Close()
		bus.Publish(&Event{AggregateID: "agenda-2"})

		if received != 1 {
			t.Errorf("受信イベント数: got %d, want 1", received)
		}
	})

	t.Run("Closeは二重に呼んでも安全", func(t *testing.T) {
		t.Parallel()

		bus := NewBus()
		bus.Subscribe(func(_ *Event) {})
		bus.Close()
		bus.Close()
	})

	t.Run("Close後のSubscribeは無視される", func(t *testing.T) {
		t.Parallel()

		bus := NewBus()
		bus.Close()
		bus.Subscribe(func(_ *Event) {
			t.Error("クローズ後の購読者が呼び出されました")
		})
		bus.Publish(&Event{AggregateID: "agenda-1"})
	})
}
