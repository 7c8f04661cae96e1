// Package cache provides the fast local tier in front of the remote
// persistence tier. This package is internal and should not be imported
// by external projects.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 💾 本地缓存管理器
// =============================================================================

// Manager 本地 TTL 缓存管理器
type Manager struct {
	entries map[string]entry
	config  Config
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.RWMutex
	closed  bool
	stopCh  chan struct{}

	hits   uint64
	misses uint64
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Config 缓存配置
type Config struct {
	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`

	// 过期清理间隔（0 表示不启动清理循环，过期键在读取时惰性剔除）
	JanitorInterval time.Duration `yaml:"janitor_interval" json:"janitor_interval"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      5 * time.Minute,
		JanitorInterval: time.Minute,
	}
}

// NewManager 创建缓存管理器
func NewManager(config Config, logger *zap.Logger) *Manager {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	m := &Manager{
		entries: make(map[string]entry),
		config:  config,
		logger:  logger.With(zap.String("component", "cache")),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	if config.JanitorInterval > 0 {
		go m.janitorLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.Duration("default_ttl", config.DefaultTTL),
	)

	return m
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// ErrCacheMiss 缓存未命中错误
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}

// Get 获取缓存值，过期键按未命中处理并惰性剔除
func (m *Manager) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", fmt.Errorf("cache manager is closed")
	}

	e, ok := m.entries[key]
	if !ok || !e.expiresAt.After(m.now()) {
		if ok {
			delete(m.entries, key)
		}
		m.misses++
		return "", ErrCacheMiss
	}

	m.hits++
	return e.value, nil
}

// Set 设置缓存值，ttl 为 0 时使用默认 TTL
func (m *Manager) Set(key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

// GetJSON 获取 JSON 缓存值
func (m *Manager) GetJSON(key string, dest interface{}) error {
	val, err := m.Get(key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return nil
}

// SetJSON 设置 JSON 缓存值
func (m *Manager) SetJSON(key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return m.Set(key, string(data), ttl)
}

// Delete 删除缓存值
func (m *Manager) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("cache manager is closed")
	}

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// DeletePrefix 删除指定前缀的所有键，返回删除数量
func (m *Manager) DeletePrefix(prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("cache manager is closed")
	}

	n := 0
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Exists 检查键是否存在且未过期
func (m *Manager) Exists(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	return ok && e.expiresAt.After(m.now())
}

// Close 关闭缓存管理器
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	m.closed = true
	close(m.stopCh)
	m.entries = nil
	m.logger.Info("closing cache manager")

	return nil
}

// =============================================================================
// 🧹 过期清理
// =============================================================================

// janitorLoop 周期性剔除过期键
func (m *Manager) janitorLoop() {
	ticker := time.NewTicker(m.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Manager) evictExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !e.expiresAt.After(now) {
			delete(m.entries, k)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("evicted expired cache entries", zap.Int("count", removed))
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 缓存统计信息
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Keys   int    `json:"keys"`
}

// GetStats 获取缓存统计信息
func (m *Manager) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Stats{
		Hits:   m.hits,
		Misses: m.misses,
		Keys:   len(m.entries),
	}
}

// SetClock 替换时间源，仅测试使用
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
