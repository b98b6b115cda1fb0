package trader

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/quantlink-tick-engine/pkg/config"
	"github.com/yourusername/quantlink-tick-engine/pkg/strategy"
)

// ModelReloadHistory 重载历史记录
type ModelReloadHistory struct {
	Timestamp  time.Time `json:"timestamp"`
	ModelFiles []string  `json:"model_files"`
	Chains     []string  `json:"chains,omitempty"`
	Success    bool      `json:"success"`
	ErrorMsg   string    `json:"error_msg,omitempty"`
}

// ModelWatcher 手动重载 model 文件：重新解析所有策略的 model 文件并重建策略链
type ModelWatcher struct {
	cfg      *config.TraderConfig
	onReload func(*strategy.Registry)
	log      *zap.Logger
	mu       sync.Mutex

	// 历史记录
	history    []ModelReloadHistory
	historyMu  sync.RWMutex
	maxHistory int
}

// ModelWatcherConfig model watcher配置
type ModelWatcherConfig struct {
	Config   *config.TraderConfig
	OnReload func(*strategy.Registry)
	Log      *zap.Logger
}

// NewModelWatcher 创建model watcher
func NewModelWatcher(cfg ModelWatcherConfig) *ModelWatcher {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &ModelWatcher{
		cfg:        cfg.Config,
		onReload:   cfg.OnReload,
		log:        log.Named("model"),
		history:    make([]ModelReloadHistory, 0, 100),
		maxHistory: 100,
	}
}

// modelFiles lists the model files of enabled strategies
func (w *ModelWatcher) modelFiles() []string {
	var files []string
	for _, s := range w.cfg.GetEnabledStrategies() {
		if s.ModelFile != "" {
			files = append(files, s.ModelFile)
		}
	}
	return files
}

// Reload 手动触发重载；失败时保留当前策略链
func (w *ModelWatcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := w.modelFiles()
	w.log.Info("manual reload triggered", zap.Strings("model_files", files))

	reg, err := strategy.BuildRegistry(w.cfg)
	if err != nil {
		w.recordHistory(files, nil, false, err.Error())
		return fmt.Errorf("rebuild strategies: %w", err)
	}
	if w.onReload != nil {
		w.onReload(reg)
	}
	w.recordHistory(files, reg.Describe(), true, "")
	w.log.Info("model reloaded", zap.Int("symbols", reg.Len()))
	return nil
}

// recordHistory 记录重载历史
func (w *ModelWatcher) recordHistory(files, chains []string, success bool, errMsg string) {
	w.historyMu.Lock()
	defer w.historyMu.Unlock()

	w.history = append(w.history, ModelReloadHistory{
		Timestamp:  time.Now(),
		ModelFiles: files,
		Chains:     chains,
		Success:    success,
		ErrorMsg:   errMsg,
	})

	// 限制历史记录数量
	if len(w.history) > w.maxHistory {
		w.history = w.history[len(w.history)-w.maxHistory:]
	}
}

// GetHistory 获取最新的 limit 条重载历史
func (w *ModelWatcher) GetHistory(limit int) []ModelReloadHistory {
	w.historyMu.RLock()
	defer w.historyMu.RUnlock()

	if limit <= 0 || limit > len(w.history) {
		limit = len(w.history)
	}
	start := len(w.history) - limit
	result := make([]ModelReloadHistory, limit)
	copy(result, w.history[start:])
	return result
}

// GetStatus 获取watcher状态
func (w *ModelWatcher) GetStatus() map[string]interface{} {
	files := make([]map[string]interface{}, 0)
	for _, f := range w.modelFiles() {
		entry := map[string]interface{}{"path": f, "exists": false}
		if stat, err := os.Stat(f); err == nil {
			entry["exists"] = true
			entry["last_mod_time"] = stat.ModTime().Format("2006-01-02 15:04:05")
		}
		files = append(files, entry)
	}
	return map[string]interface{}{
		"mode":        "manual",
		"model_files": files,
	}
}
