package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Nyukimin/patchgate/internal/application/pipeline"
	"github.com/Nyukimin/patchgate/pkg/logger"
)

const (
	component = "notify"

	// DefaultSendTimeout は1チャネルあたりの送信タイムアウト
	DefaultSendTimeout = 10 * time.Second
)

// Channel は通知の送信先
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Fanout はパイプラインイベントを全チャネルへ非同期に転送する
type Fanout struct {
	channels []Channel
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewFanout は新しいFanoutを作成
func NewFanout(timeout time.Duration, channels ...Channel) *Fanout {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Fanout{channels: channels, timeout: timeout}
}

// Len は登録済みチャネル数を返す
func (f *Fanout) Len() int {
	return len(f.channels)
}

// Publish はpipeline.EventSinkの実装。通知対象外のイベントは無視する。
func (f *Fanout) Publish(ctx context.Context, ev pipeline.Event) {
	if !shouldNotify(ev) || len(f.channels) == 0 {
		return
	}
	text := FormatEvent(ev)

	// リクエストの終了で送信が中断されないようにする
	base := context.WithoutCancel(ctx)
	for _, ch := range f.channels {
		f.wg.Add(1)
		go func(ch Channel) {
			defer f.wg.Done()
			sendCtx, cancel := context.WithTimeout(base, f.timeout)
			defer cancel()
			if err := ch.Send(sendCtx, text); err != nil {
				logger.WarnCF(component, "send.failed", map[string]interface{}{
					"channel": ch.Name(),
					"event":   string(ev.Type),
					"error":   err.Error(),
				})
			}
		}(ch)
	}
}

// Wait は送信中の通知がすべて終わるまで待つ
func (f *Fanout) Wait() {
	f.wg.Wait()
}

func shouldNotify(ev pipeline.Event) bool {
	switch ev.Type {
	case pipeline.EventPushed, pipeline.EventLanded:
		return true
	case pipeline.EventFailed:
		// 提案の検証失敗は通知しない
		return ev.Op != "propose"
	default:
		return false
	}
}

// FormatEvent はイベントを1行のテキストにする
func FormatEvent(ev pipeline.Event) string {
	var b strings.Builder
	b.WriteString("[patchgate] ")
	b.WriteString(string(ev.Type))
	if ev.Op != "" {
		fmt.Fprintf(&b, " op=%s", ev.Op)
	}
	if ev.ProposalID != "" {
		fmt.Fprintf(&b, " id=%s", ev.ProposalID)
	}
	if len(ev.Files) > 0 {
		fmt.Fprintf(&b, " files=%s", strings.Join(ev.Files, ","))
	}
	if ev.Message != "" {
		fmt.Fprintf(&b, " message=%q", ev.Message)
	}
	if ev.Error != "" {
		fmt.Fprintf(&b, " error=%q", firstLine(ev.Error))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
