package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/tvhbouquet/internal/domain"
	"github.com/John-Robertt/tvhbouquet/internal/normalize"
)

// LoadSnapshot 在 run 开始时一次性拉取 services/channels/tags（失败即终止 run），
// 并在客户端支持时拉取 multiplex 频率表（失败只记 warn）。
func LoadSnapshot(ctx context.Context, c Client, log zerolog.Logger) (domain.Snapshot, error) {
	if c == nil {
		return domain.Snapshot{}, fmt.Errorf("catalog client 不能为空")
	}

	services, err := c.ListServices(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	channels, err := c.ListChannels(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	tags, err := c.ListTags(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	snap := domain.Snapshot{
		Services:     services,
		Channels:     channels,
		Tags:         tags,
		MultiplexMHz: map[string]int{},
	}

	ml, ok := c.(MultiplexLister)
	if !ok {
		log.Debug().Msg("目录不支持 multiplex 列表，频率按 0 MHz 处理")
		return snap, nil
	}
	muxes, err := ml.ListMultiplexes(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("multiplex 列表不可用，频率按 0 MHz 处理")
		return snap, nil
	}
	for id, raw := range muxes {
		snap.MultiplexMHz[id] = normalize.MultiplexMHz(raw)
	}
	return snap, nil
}
