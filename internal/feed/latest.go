package feed

import "github.com/betbot/hedgex/internal/domain"

// latestSlot 单槽"最新值"通道：只有最新快照有意义，旧的直接覆盖。
// 推送回调在 WS 读 goroutine 里执行，Put 永不阻塞。
type latestSlot struct {
	c chan domain.PriceSnapshot
}

func newLatestSlot() *latestSlot {
	return &latestSlot{c: make(chan domain.PriceSnapshot, 1)}
}

// Put 放入快照；槽满时丢弃旧值重试。
func (s *latestSlot) Put(v domain.PriceSnapshot) {
	for {
		select {
		case s.c <- v:
			return
		default:
			select {
			case <-s.c:
			default:
			}
		}
	}
}

func (s *latestSlot) C() <-chan domain.PriceSnapshot {
	return s.c
}
