package risk

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"coinbutler/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Profile 是运行期可热更新的风控档位。
type Profile struct {
	ProfitTarget        float64 `mapstructure:"profit_target" yaml:"profit_target"`
	StopLoss            float64 `mapstructure:"stop_loss" yaml:"stop_loss"`
	ConfidenceThreshold int     `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

type profileFile struct {
	Profile Profile `mapstructure:"profile" yaml:"profile"`
}

// Snapshot 公开当前生效档位。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profile  Profile
}

// ChangeListener 在档位重载成功时触发。
type ChangeListener func(Snapshot)

// Registry 管理风控档位文件并监听更新。坏文件不会生效：重载失败时
// 保留上一个快照。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取档位文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("risk profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read risk profile failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("risk profile reload failed, keeping previous: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Current 返回当前生效的档位。
func (r *Registry) Current() Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Profile
}

// Snapshot 返回带版本号的档位快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	profile, err := readProfileFile(r.path)
	if err != nil {
		return err
	}
	if err := profile.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profile:  profile,
	}
	r.mu.Unlock()
	logger.Infof("risk profile loaded from %s: target=%.4f stop=%.4f confidence>=%d",
		filepath.Base(r.path), profile.ProfitTarget, profile.StopLoss, profile.ConfidenceThreshold)
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("risk profile listener")
			cb(snap)
		}(fn)
	}
}

func (p Profile) validate() error {
	if p.ProfitTarget <= 0 {
		return fmt.Errorf("profile.profit_target must be > 0")
	}
	if p.StopLoss >= 0 {
		return fmt.Errorf("profile.stop_loss must be < 0")
	}
	if p.ConfidenceThreshold < 1 || p.ConfidenceThreshold > 10 {
		return fmt.Errorf("profile.confidence_threshold must be within [1,10]")
	}
	return nil
}

func readProfileFile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read risk profile failed: %w", err)
	}
	var cfg profileFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Profile{}, fmt.Errorf("parse risk profile failed: %w", err)
	}
	return cfg.Profile, nil
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}
