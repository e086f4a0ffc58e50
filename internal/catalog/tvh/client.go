package tvh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/tvhbouquet/internal/catalog"
	"github.com/John-Robertt/tvhbouquet/internal/domain"
)

const (
	defaultPageSize = 500
	// 非分页接口一次取完。
	allLimit = 999999
	// 错误响应只读前若干字节用于诊断。
	maxErrorBody = 4 << 10
	maxBody      = 64 << 20
)

// Client 是 Tvheadend HTTP JSON API 的目录实现。
//
// 约束：
// - 超时由注入的 http.Client 负责（默认 10s）
// - Username 为空时不发送 basic auth
type Client struct {
	BaseURL  *url.URL
	Username string
	Password string
	HTTP     *http.Client
	PageSize int
}

var (
	_ catalog.Client          = (*Client)(nil)
	_ catalog.MultiplexLister = (*Client)(nil)
)

// New 校验 baseURL 并构造客户端。
func New(baseURL, username, password string, hc *http.Client) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("catalog.url 不能为空")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalog.url 非法：%w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("catalog.url 必须是 http(s) 地址：%q", baseURL)
	}
	if hc == nil {
		return nil, errors.New("http client 不能为空")
	}
	return &Client{
		BaseURL:  u,
		Username: username,
		Password: password,
		HTTP:     hc,
		PageSize: defaultPageSize,
	}, nil
}

type grid[T any] struct {
	Entries []T `json:"entries"`
	Total   int `json:"total"`
}

type serviceDTO struct {
	UUID          string `json:"uuid"`
	SvcName       string `json:"svcname"`
	MultiplexUUID string `json:"multiplex_uuid"`
}

type multiplexDTO struct {
	UUID      string      `json:"uuid"`
	Frequency json.Number `json:"frequency"`
	Freq      json.Number `json:"freq"`
}

type channelDTO struct {
	UUID     string      `json:"uuid"`
	Name     string      `json:"name"`
	Number   json.Number `json:"number"`
	Services []string    `json:"services"`
	Tags     []string    `json:"tags"`
}

type tagDTO struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type createdDTO struct {
	UUID string `json:"uuid"`
}

// ListServices 按页拉取全部服务，直到累计条数 >= total 或遇到空页。
func (c *Client) ListServices(ctx context.Context) ([]domain.ServiceRecord, error) {
	size := c.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	var out []domain.ServiceRecord
	for start := 0; ; start += size {
		q := url.Values{"start": {strconv.Itoa(start)}, "limit": {strconv.Itoa(size)}}
		var page grid[serviceDTO]
		if err := c.get(ctx, catalog.OpListServices, "/api/mpegts/service/grid", q, &page); err != nil {
			return nil, err
		}
		for _, s := range page.Entries {
			out = append(out, domain.ServiceRecord{ID: s.UUID, Name: s.SvcName, MultiplexID: s.MultiplexUUID})
		}
		if len(page.Entries) == 0 || len(out) >= page.Total {
			return out, nil
		}
	}
}

// ListMultiplexes 返回 multiplex id -> 原始频率（优先 frequency，缺失时用 freq）。
func (c *Client) ListMultiplexes(ctx context.Context) (map[string]int64, error) {
	var page grid[multiplexDTO]
	if err := c.get(ctx, catalog.OpListMultiplexes, "/api/mpegts/multiplex/grid", allQuery(), &page); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(page.Entries))
	for _, m := range page.Entries {
		v := numberInt(m.Frequency)
		if v == 0 {
			v = numberInt(m.Freq)
		}
		out[m.UUID] = v
	}
	return out, nil
}

func (c *Client) ListChannels(ctx context.Context) ([]domain.ChannelRecord, error) {
	var page grid[channelDTO]
	if err := c.get(ctx, catalog.OpListChannels, "/api/channel/grid", allQuery(), &page); err != nil {
		return nil, err
	}
	out := make([]domain.ChannelRecord, 0, len(page.Entries))
	for _, ch := range page.Entries {
		out = append(out, domain.ChannelRecord{
			ID:         ch.UUID,
			Name:       ch.Name,
			Number:     int(numberInt(ch.Number)),
			ServiceIDs: ch.Services,
			TagIDs:     ch.Tags,
		})
	}
	return out, nil
}

func (c *Client) ListTags(ctx context.Context) ([]domain.TagRecord, error) {
	var page grid[tagDTO]
	if err := c.get(ctx, catalog.OpListTags, "/api/channeltag/grid", allQuery(), &page); err != nil {
		return nil, err
	}
	out := make([]domain.TagRecord, 0, len(page.Entries))
	for _, t := range page.Entries {
		out = append(out, domain.TagRecord{ID: t.UUID, Name: t.Name})
	}
	return out, nil
}

func (c *Client) CreateTag(ctx context.Context, name, comment string, index int) (domain.TagRecord, error) {
	conf := map[string]any{
		"name":    name,
		"comment": comment,
		"enabled": true,
		"index":   index,
	}
	var res createdDTO
	if err := c.postJSONField(ctx, catalog.OpCreateTag, "/api/channeltag/create", "conf", conf, &res); err != nil {
		return domain.TagRecord{}, err
	}
	if res.UUID == "" {
		return domain.TagRecord{}, &catalog.Error{Op: catalog.OpCreateTag, Sentinel: catalog.ErrDecode, Err: errors.New("响应缺少 uuid")}
	}
	return domain.TagRecord{ID: res.UUID, Name: name}, nil
}

func (c *Client) CreateChannelFromService(ctx context.Context, serviceID, name string, tagIDs []string, number int) (domain.ChannelRecord, error) {
	conf := map[string]any{
		"services": []string{serviceID},
		"name":     name,
		"enabled":  true,
		"tags":     nonNil(tagIDs),
		"number":   number,
	}
	var res createdDTO
	if err := c.postJSONField(ctx, catalog.OpCreateChannel, "/api/channel/create", "conf", conf, &res); err != nil {
		return domain.ChannelRecord{}, err
	}
	return domain.ChannelRecord{
		ID:         res.UUID,
		Name:       name,
		Number:     number,
		ServiceIDs: []string{serviceID},
		TagIDs:     nonNil(tagIDs),
	}, nil
}

func (c *Client) UpdateChannel(ctx context.Context, channelID string, tagIDs []string, number int, name string) error {
	node := []map[string]any{{
		"uuid":   channelID,
		"tags":   nonNil(tagIDs),
		"number": number,
		"name":   name,
	}}
	return c.postJSONField(ctx, catalog.OpUpdateChannel, "/api/idnode/save", "node", node, nil)
}

func allQuery() url.Values {
	return url.Values{"start": {"0"}, "limit": {strconv.Itoa(allLimit)}}
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, out any) error {
	u := c.endpoint(path)
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &catalog.Error{Op: op, Sentinel: catalog.ErrTransport, Err: err}
	}
	return c.do(op, req, out)
}

// postJSONField 以表单提交 field=<JSON>（Tvheadend 的 conf/node 约定）。
func (c *Client) postJSONField(ctx context.Context, op, path, field string, v any, out any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return &catalog.Error{Op: op, Sentinel: catalog.ErrDecode, Err: err}
	}
	form := url.Values{field: {string(b)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return &catalog.Error{Op: op, Sentinel: catalog.ErrTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, req, out)
}

func (c *Client) do(op string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &catalog.Error{Op: op, Sentinel: catalog.ErrTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var detail error
		if s := strings.TrimSpace(string(body)); s != "" {
			detail = errors.New(s)
		}
		return &catalog.Error{Op: op, StatusCode: resp.StatusCode, Sentinel: catalog.ErrStatus, Err: detail}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &catalog.Error{Op: op, StatusCode: resp.StatusCode, Sentinel: catalog.ErrDecode, Err: err}
	}
	return nil
}

func (c *Client) endpoint(path string) *url.URL {
	u := *c.BaseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	return &u
}

// numberInt 容忍整数、浮点与空值（Tvheadend 的 number 可能是 "5.0"）。
func numberInt(n json.Number) int64 {
	if n == "" {
		return 0
	}
	if v, err := n.Int64(); err == nil {
		return v
	}
	if f, err := n.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
