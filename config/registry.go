package config

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/xerrors"
)

// registryRecord 注册中心里单个数据库的实例记录
//
// 键为 <prefix>/<name>，值为 JSON：
//
//	{"host": "10.0.0.5", "port": 6380, "password": "secret", "db": 1}
type registryRecord struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// registrySource 基于 etcd 的服务注册中心来源
type registrySource struct {
	cfg    RegistryConfig
	client *clientv3.Client
	logger clog.Logger
}

func newRegistrySource(cfg RegistryConfig, client *clientv3.Client, logger clog.Logger) *registrySource {
	return &registrySource{
		cfg:    cfg,
		client: client,
		logger: logger,
	}
}

// lookup 查询注册中心，未注册时返回 found=false 而不是错误
func (rs *registrySource) lookup(ctx context.Context, name string) (*DatabaseConfig, bool, error) {
	key := rs.cfg.Prefix + "/" + name

	ctx, cancel := context.WithTimeout(ctx, rs.cfg.Timeout)
	defer cancel()

	resp, err := rs.client.Get(ctx, key)
	if err != nil {
		return nil, false, xerrors.Wrapf(ErrSource, "registry lookup %s: %v", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}

	var record registryRecord
	if err := json.Unmarshal(resp.Kvs[0].Value, &record); err != nil {
		return nil, false, xerrors.Wrapf(ErrSource, "registry record %s malformed: %v", key, err)
	}

	rs.logger.Debug("database found in registry",
		clog.String("database", name),
		clog.String("key", key))

	return &DatabaseConfig{
		Host:     record.Host,
		Port:     record.Port,
		Password: record.Password,
		DB:       record.DB,
	}, true, nil
}
