package event

import (
	"sync"
)

// busBufferSize は購読者ごとのイベントバッファ数。
// 発行側（ライフサイクル遷移のコミットパス）が購読者の処理を待たずに済むように
// 十分な余裕を持たせている。バッファが満杯の場合のみPublishはブロックする。
const busBufferSize = 256

// Handler はバスから配信されたイベントを処理する関数。
// 購読者ごとに専用のgoroutine上で、発行順に直列に呼び出される。
type Handler func(*Event)

// Bus はプロセス内のイベント発行・購読機構。
// ライフサイクル状態機械が発行するイベントを配信ディスパッチャーに届ける。
// 同一購読者へのイベントは発行順（＝アジェンダごとのコミット順）を保って配信される。
type Bus struct {
	// mu は購読者リストを保護するミューテックス。
	mu sync.Mutex
	// subs は購読者ごとのイベントチャネル。
	subs []chan *Event
	// wg は購読者goroutineの終了待ちに使用する。
	wg sync.WaitGroup
	// closed はバスがクローズ済みかどうか。
	closed bool
}

// NewBus は新しいイベントバスを生成する。
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe はすべてのイベント種別を購読するハンドラを登録する。
// ハンドラは専用goroutine上で発行順に呼び出される。
// 遅いハンドラが他の購読者の配信を遅延させることはない。
func (b *Bus) Subscribe(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	ch := make(chan *Event, busBufferSize)
	b.subs = append(b.subs, ch)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for e := range ch {
			fn(e)
		}
	}()
}

// Publish はイベントをすべての購読者に配信する。
// クローズ済みのバスへの発行は無視される。
func (b *Bus) Publish(e *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		ch <- e
	}
}

// Close はバスを閉じ、発行済みイベントの処理完了を待つ。
// Close後のPublish/Subscribeは無視される。
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.mu.Unlock()

	b.wg.Wait()
}
