package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/bot/internal/cache"
	"tempmail/bot/internal/domain"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultCacheTTL = 60 * time.Second
	usernameLength  = 8
)

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Client 邮箱服务商 HTTP API 客户端。
//
// 所有调用单次尝试、不重试；网络错误与非 2xx 响应只进日志，
// 对调用方折叠为 domain.ErrProvider。域名列表与单封邮件详情
// 走 60 秒读穿缓存，邮件列表刻意不缓存以保证收件箱新鲜度。
type Client struct {
	baseURL  string
	http     *http.Client
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger

	randMu sync.Mutex
	random *rand.Rand
}

// Option 客户端可选配置。
type Option func(*Client)

// WithTimeout 覆盖默认的 30 秒请求超时。
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// WithCacheTTL 覆盖默认的 60 秒缓存有效期。
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// NewClient 创建服务商客户端。
func NewClient(baseURL string, store cache.Cache, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: defaultTimeout},
		cache:    store,
		cacheTTL: defaultCacheTTL,
		logger:   logger,
		random:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListDomains 返回服务商当前可用的域名列表，命中缓存时不发起网络调用。
func (c *Client) ListDomains(ctx context.Context) ([]domain.MailDomain, error) {
	const cacheKey = "domains"

	if data, ok := c.cache.Get(cacheKey); ok {
		var domains []domain.MailDomain
		if err := json.Unmarshal(data, &domains); err == nil {
			return domains, nil
		}
		c.cache.Delete(cacheKey)
	}

	body, err := c.request(ctx, http.MethodGet, "/domains", nil, "")
	if err != nil {
		return nil, err
	}

	var domains []domain.MailDomain
	if err := decodeCollection(body, &domains); err != nil {
		c.logger.Error("unrecognized domains response", zap.Error(err))
		return nil, domain.ErrProvider
	}

	if data, err := json.Marshal(domains); err == nil {
		c.cache.Set(cacheKey, data, c.cacheTTL)
	}

	return domains, nil
}

// GenerateUsername 生成小写字母加数字的随机用户名。
func (c *Client) GenerateUsername(length int) string {
	if length <= 0 {
		length = usernameLength
	}

	c.randMu.Lock()
	defer c.randMu.Unlock()

	buf := make([]byte, length)
	for i := range buf {
		buf[i] = usernameAlphabet[c.random.Intn(len(usernameAlphabet))]
	}

	return string(buf)
}

// GenerateEmail 从可用域名中均匀随机选取一个，与新用户名组合成地址。
// 没有可用域名时返回 domain.ErrNoDomains。
func (c *Client) GenerateEmail(ctx context.Context) (string, error) {
	domains, err := c.ListDomains(ctx)
	if err != nil {
		return "", err
	}
	if len(domains) == 0 {
		c.logger.Warn("no domains available for email generation")
		return "", domain.ErrNoDomains
	}

	c.randMu.Lock()
	picked := domains[c.random.Intn(len(domains))]
	c.randMu.Unlock()

	email := fmt.Sprintf("%s@%s", c.GenerateUsername(usernameLength), picked.Domain)
	c.logger.Info("generated email", zap.String("email", email))

	return email, nil
}

// CreateAccount 在服务商侧创建邮箱账户。
func (c *Client) CreateAccount(ctx context.Context, email, password string) (*domain.Account, error) {
	payload := map[string]string{
		"address":  email,
		"password": password,
	}

	body, err := c.request(ctx, http.MethodPost, "/accounts", payload, "")
	if err != nil {
		return nil, err
	}

	var account domain.Account
	if err := json.Unmarshal(body, &account); err != nil {
		c.logger.Error("unrecognized account response", zap.Error(err))
		return nil, domain.ErrProvider
	}

	return &account, nil
}

// GetToken 用账户凭据换取 Bearer 令牌。
func (c *Client) GetToken(ctx context.Context, email, password string) (string, error) {
	payload := map[string]string{
		"address":  email,
		"password": password,
	}

	body, err := c.request(ctx, http.MethodPost, "/token", payload, "")
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &result); err != nil || result.Token == "" {
		c.logger.Error("token missing in response")
		return "", domain.ErrProvider
	}

	return result.Token, nil
}

// ListMessages 拉取收件箱列表。
//
// 永不缓存。返回错误与返回空列表是两种不同结果：
// 前者表示服务商不可达或响应不可解析，后者才是真正的空收件箱。
func (c *Client) ListMessages(ctx context.Context, token string) ([]domain.Message, error) {
	body, err := c.request(ctx, http.MethodGet, "/messages", nil, token)
	if err != nil {
		return nil, err
	}

	var messages []domain.Message
	if err := decodeCollection(body, &messages); err != nil {
		c.logger.Error("unrecognized messages response", zap.Error(err))
		return nil, domain.ErrProvider
	}

	return messages, nil
}

// GetMessage 拉取单封邮件详情，按 (id, token) 缓存 60 秒。
func (c *Client) GetMessage(ctx context.Context, messageID, token string) (*domain.Message, error) {
	cacheKey := fmt.Sprintf("message:%s:%s", messageID, token)

	if data, ok := c.cache.Get(cacheKey); ok {
		var message domain.Message
		if err := json.Unmarshal(data, &message); err == nil {
			return &message, nil
		}
		c.cache.Delete(cacheKey)
	}

	body, err := c.request(ctx, http.MethodGet, "/messages/"+messageID, nil, token)
	if err != nil {
		return nil, err
	}

	var message domain.Message
	if err := json.Unmarshal(body, &message); err != nil {
		c.logger.Error("unrecognized message response",
			zap.String("message_id", messageID), zap.Error(err))
		return nil, domain.ErrProvider
	}

	c.cache.Set(cacheKey, body, c.cacheTTL)

	return &message, nil
}

// DeleteAccount 删除服务商侧账户。
//
// 策略上幂等：200、204 与 404 都算成功，404 表示账户早已不在。
func (c *Client) DeleteAccount(ctx context.Context, accountID, token string) bool {
	url := c.baseURL + "/accounts/" + accountID

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		c.logger.Error("failed to build delete request", zap.Error(err))
		return false
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("failed to delete account",
			zap.String("account_id", accountID), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		c.logger.Info("account deleted",
			zap.String("account_id", accountID), zap.Int("status", resp.StatusCode))
		return true
	default:
		c.logger.Error("unexpected delete status",
			zap.String("account_id", accountID), zap.Int("status", resp.StatusCode))
		return false
	}
}

// Health 以一次域名列表调用探测服务商可达性。
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.ListDomains(ctx); err != nil {
		return fmt.Errorf("provider unreachable: %w", err)
	}
	return nil
}

// request 发起一次 JSON 请求，2xx 之外的状态与传输错误统一折叠为
// domain.ErrProvider。
func (c *Client) request(ctx context.Context, method, path string, payload interface{}, token string) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("provider request failed",
			zap.String("method", method), zap.String("url", url), zap.Error(err))
		return nil, domain.ErrProvider
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("failed to read provider response",
			zap.String("url", url), zap.Error(err))
		return nil, domain.ErrProvider
	}

	if resp.StatusCode/100 != 2 {
		c.logger.Error("provider returned error status",
			zap.String("method", method), zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return nil, domain.ErrProvider
	}

	return body, nil
}

// decodeCollection 兼容裸 JSON 数组与 hydra:member 信封两种列表格式。
func decodeCollection(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}

	var envelope struct {
		Member json.RawMessage `json:"hydra:member"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("response is neither a list nor an envelope: %w", err)
	}
	if envelope.Member == nil {
		return fmt.Errorf("envelope has no hydra:member field")
	}

	return json.Unmarshal(envelope.Member, v)
}
