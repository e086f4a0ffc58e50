package memcatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/John-Robertt/tvhbouquet/internal/catalog"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

// Catalog 是内存目录：测试替身，同时支撑 --offline-catalog 的离线演练。
//
// 约束：
// - 并发安全；List* 返回副本
// - FailNext 注入的失败按操作名逐次消耗（模拟瞬时故障）
type Catalog struct {
	mu sync.Mutex

	services []domain.ServiceRecord
	channels []domain.ChannelRecord
	tags     []domain.TagRecord
	muxes    map[string]int64

	failures map[string][]error
	calls    map[string]int
}

var (
	_ catalog.Client          = (*Catalog)(nil)
	_ catalog.MultiplexLister = (*Catalog)(nil)
)

func New(services []domain.ServiceRecord, channels []domain.ChannelRecord, tags []domain.TagRecord) *Catalog {
	return &Catalog{
		services: slices.Clone(services),
		channels: slices.Clone(channels),
		tags:     slices.Clone(tags),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// SetMultiplexes 设置 multiplex 原始频率表；未设置时 ListMultiplexes 返回空表。
func (c *Catalog) SetMultiplexes(m map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muxes = make(map[string]int64, len(m))
	for k, v := range m {
		c.muxes[k] = v
	}
}

// FailNext 让接下来对 op 的调用依次返回 errs 中的错误（nil 元素表示该次成功）。
func (c *Catalog) FailNext(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], errs...)
}

// Calls 返回 op 被调用的次数（含失败）。
func (c *Catalog) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *Catalog) Channels() []domain.ChannelRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneChannels(c.channels)
}

func (c *Catalog) Tags() []domain.TagRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tags)
}

// enter 记录调用并消耗一次注入的失败；调用方必须持有锁。
func (c *Catalog) enter(ctx context.Context, op string) error {
	c.calls[op]++
	if err := ctx.Err(); err != nil {
		return &catalog.Error{Op: op, Sentinel: catalog.ErrTransport, Err: err}
	}
	q := c.failures[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	c.failures[op] = q[1:]
	if err == nil {
		return nil
	}
	return &catalog.Error{Op: op, Sentinel: catalog.ErrTransport, Err: err}
}

func (c *Catalog) ListServices(ctx context.Context) ([]domain.ServiceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpListServices); err != nil {
		return nil, err
	}
	return slices.Clone(c.services), nil
}

func (c *Catalog) ListMultiplexes(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpListMultiplexes); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(c.muxes))
	for k, v := range c.muxes {
		out[k] = v
	}
	return out, nil
}

func (c *Catalog) ListChannels(ctx context.Context) ([]domain.ChannelRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpListChannels); err != nil {
		return nil, err
	}
	return cloneChannels(c.channels), nil
}

func (c *Catalog) ListTags(ctx context.Context) ([]domain.TagRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpListTags); err != nil {
		return nil, err
	}
	return slices.Clone(c.tags), nil
}

func (c *Catalog) CreateTag(ctx context.Context, name, _ string, _ int) (domain.TagRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpCreateTag); err != nil {
		return domain.TagRecord{}, err
	}
	t := domain.TagRecord{ID: uuid.NewString(), Name: name}
	c.tags = append(c.tags, t)
	return t, nil
}

func (c *Catalog) CreateChannelFromService(ctx context.Context, serviceID, name string, tagIDs []string, number int) (domain.ChannelRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpCreateChannel); err != nil {
		return domain.ChannelRecord{}, err
	}
	if !slices.ContainsFunc(c.services, func(s domain.ServiceRecord) bool { return s.ID == serviceID }) {
		return domain.ChannelRecord{}, &catalog.Error{Op: catalog.OpCreateChannel, StatusCode: 400, Sentinel: catalog.ErrStatus, Err: fmt.Errorf("未知服务：%s", serviceID)}
	}
	ch := domain.ChannelRecord{
		ID:         uuid.NewString(),
		Name:       name,
		Number:     number,
		ServiceIDs: []string{serviceID},
		TagIDs:     slices.Clone(tagIDs),
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *Catalog) UpdateChannel(ctx context.Context, channelID string, tagIDs []string, number int, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(ctx, catalog.OpUpdateChannel); err != nil {
		return err
	}
	for i := range c.channels {
		if c.channels[i].ID != channelID {
			continue
		}
		c.channels[i].TagIDs = slices.Clone(tagIDs)
		c.channels[i].Number = number
		c.channels[i].Name = name
		return nil
	}
	return &catalog.Error{Op: catalog.OpUpdateChannel, StatusCode: 404, Sentinel: catalog.ErrStatus, Err: fmt.Errorf("未知频道：%s", channelID)}
}

func cloneChannels(in []domain.ChannelRecord) []domain.ChannelRecord {
	out := make([]domain.ChannelRecord, 0, len(in))
	for _, ch := range in {
		ch.ServiceIDs = slices.Clone(ch.ServiceIDs)
		ch.TagIDs = slices.Clone(ch.TagIDs)
		out = append(out, ch)
	}
	return out
}

// Fixture 是离线目录的 JSON 格式。
type Fixture struct {
	Services []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		MultiplexID string `json:"multiplex_id"`
	} `json:"services"`
	Channels []struct {
		ID       string   `json:"id"`
		Name     string   `json:"name"`
		Number   int      `json:"number"`
		Services []string `json:"services"`
		Tags     []string `json:"tags"`
	} `json:"channels"`
	Tags []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"tags"`
	// Multiplexes 是 multiplex id -> 原始频率（Hz 或 kHz）。
	Multiplexes map[string]int64 `json:"multiplexes"`
}

// Load 从 JSON fixture 文件构造内存目录。
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f Fixture
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("目录 fixture 不是合法 JSON：%s：%w", path, err)
	}

	services := make([]domain.ServiceRecord, 0, len(f.Services))
	for _, s := range f.Services {
		services = append(services, domain.ServiceRecord{ID: s.ID, Name: s.Name, MultiplexID: s.MultiplexID})
	}
	channels := make([]domain.ChannelRecord, 0, len(f.Channels))
	for _, ch := range f.Channels {
		channels = append(channels, domain.ChannelRecord{ID: ch.ID, Name: ch.Name, Number: ch.Number, ServiceIDs: ch.Services, TagIDs: ch.Tags})
	}
	tags := make([]domain.TagRecord, 0, len(f.Tags))
	for _, t := range f.Tags {
		tags = append(tags, domain.TagRecord{ID: t.ID, Name: t.Name})
	}

	c := New(services, channels, tags)
	if f.Multiplexes != nil {
		c.SetMultiplexes(f.Multiplexes)
	}
	return c, nil
}
