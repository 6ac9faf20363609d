package config

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/xerrors"
)

// fileSource 基于 viper 的配置文件来源
//
// 文件结构：
//
//	databases:
//	  main:
//	    host: 127.0.0.1
//	    port: 6379
//	    db: 0
//	    max_conns: 20
//	  sessions:
//	    host: 10.0.0.5
//	    db: 1
type fileSource struct {
	v      *viper.Viper
	logger clog.Logger

	mu        sync.RWMutex
	databases map[string]*DatabaseConfig
}

// newFileSource 加载配置文件并按需启动变更监听
//
// onChange 在文件变更后被调用（name 为空表示全部失效），
// 由解析器用来清空缓存。
func newFileSource(cfg FileConfig, logger clog.Logger, onChange func(name string)) (*fileSource, error) {
	v := viper.New()
	v.SetConfigFile(cfg.Path)

	// .env 文件允许通过环境变量覆盖敏感字段（如密码）
	dir := filepath.Dir(cfg.Path)
	if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
		logger.Debug("loaded .env file", clog.String("dir", dir))
	}
	v.SetEnvPrefix("REDISMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	fs := &fileSource{
		v:      v,
		logger: logger,
	}

	if err := fs.reload(); err != nil {
		return nil, err
	}

	if cfg.Watch {
		v.OnConfigChange(func(e fsnotify.Event) {
			logger.Info("config file changed, reloading", clog.String("file", e.Name))
			if err := fs.reload(); err != nil {
				logger.Error("failed to reload config file", clog.Error(err))
				return
			}
			if onChange != nil {
				onChange("")
			}
		})
		v.WatchConfig()
	}

	return fs, nil
}

// reload 重新解析 databases 段
func (fs *fileSource) reload() error {
	databases := make(map[string]*DatabaseConfig)
	if err := fs.v.UnmarshalKey("databases", &databases); err != nil {
		return xerrors.Wrap(err, "config: unmarshal databases section")
	}

	fs.mu.Lock()
	fs.databases = databases
	fs.mu.Unlock()

	return nil
}

// lookup 返回文件中该数据库的配置副本
func (fs *fileSource) lookup(name string) (*DatabaseConfig, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	cfg, ok := fs.databases[name]
	if !ok || cfg == nil {
		return nil, false
	}

	// 返回副本，避免调用方修改共享配置
	out := *cfg
	if cfg.TLS != nil {
		tls := *cfg.TLS
		out.TLS = &tls
	}
	return &out, true
}
