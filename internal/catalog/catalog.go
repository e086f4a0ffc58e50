package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

// Client 是目录（Tvheadend 等）的最小操作集合。
//
// 约束：
// - 每个调用都是阻塞的同步调用，超时由实现负责
// - CreateTag 不保证幂等（幂等由调用方的缓存保证）
// - 非 2xx / 网络错误 / 响应无法解析分别包装为 ErrStatus / ErrTransport / ErrDecode
type Client interface {
	ListServices(ctx context.Context) ([]domain.ServiceRecord, error)
	ListChannels(ctx context.Context) ([]domain.ChannelRecord, error)
	ListTags(ctx context.Context) ([]domain.TagRecord, error)
	CreateTag(ctx context.Context, name, comment string, index int) (domain.TagRecord, error)
	CreateChannelFromService(ctx context.Context, serviceID, name string, tagIDs []string, number int) (domain.ChannelRecord, error)
	UpdateChannel(ctx context.Context, channelID string, tagIDs []string, number int, name string) error
}

// MultiplexLister 是可选能力：multiplex id -> 原始频率（Hz 或 kHz）。
// 不支持或调用失败时，freq 策略退化为“没有频率”（0 MHz），不是致命错误。
type MultiplexLister interface {
	ListMultiplexes(ctx context.Context) (map[string]int64, error)
}

// 操作名（写入 Error.Op 与日志）。
const (
	OpListServices    = "list_services"
	OpListMultiplexes = "list_multiplexes"
	OpListChannels    = "list_channels"
	OpListTags        = "list_tags"
	OpCreateTag       = "create_tag"
	OpCreateChannel   = "create_channel"
	OpUpdateChannel   = "update_channel"
)

var (
	ErrTransport = errors.New("catalog: transport failure")
	ErrStatus    = errors.New("catalog: non-success status")
	ErrDecode    = errors.New("catalog: malformed response")
)

// Error 是目录调用的可追溯错误：errors.Is 可命中 Sentinel，也可命中底层 Err。
type Error struct {
	Op         string
	StatusCode int
	Sentinel   error
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("catalog %s: %v", e.Op, e.Sentinel)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Sentinel != nil {
		out = append(out, e.Sentinel)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}
