package pool

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/redisman/clog"
	"github.com/ceyewan/redisman/config"
	"github.com/ceyewan/redisman/xerrors"
)

// NewBlocking 构建阻塞变体的连接池
//
// 重试策略嵌入传输层：go-redis 按 MinRetryBackoff × 2^attempt
// （封顶 MaxRetryBackoff）对每条命令做指数退避重试。
// 构建本身不拨号，首次连接发生在第一次使用时（通常是就绪探测）。
func NewBlocking(cfg *config.DatabaseConfig, opts ...Option) (Pool, error) {
	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()
	logger := opt.logger.With(clog.String("database", cfg.Name), clog.String("variant", "blocking"))

	ropt, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	ropt.MaxRetries = cfg.Retry.MaxRetries
	ropt.MinRetryBackoff = cfg.Retry.BackoffBase
	ropt.MaxRetryBackoff = cfg.Retry.BackoffCap

	client := redis.NewClient(ropt)
	p := newConnPool(cfg.Name, true, cfg.MaxConns, cfg.PoolTimeout,
		redisFactory(client), client, logger)

	logger.Info("blocking pool built",
		clog.String("addr", cfg.Addr()),
		clog.Int("max_conns", cfg.MaxConns))
	return p, nil
}

// NewNonBlocking 构建非阻塞变体的连接池
//
// 传输层重试被禁用，构建时用自己的有界重试循环完成首次连接：
// 固定尝试次数上限，退避为 BackoffBase × 2^attempt 封顶 BackoffCap。
// 服务端报告 LOADING 视为可达，交给就绪等待处理。
func NewNonBlocking(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (Pool, error) {
	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()
	logger := opt.logger.With(clog.String("database", cfg.Name), clog.String("variant", "nonblocking"))

	ropt, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	ropt.MaxRetries = -1 // 禁用传输层重试，重试由下面的循环负责

	client := redis.NewClient(ropt)
	p := newConnPool(cfg.Name, false, cfg.MaxConns, cfg.PoolTimeout,
		redisFactory(client), client, logger)

	attempts := cfg.Retry.MaxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := backoffDelay(cfg.Retry.BackoffBase, cfg.Retry.BackoffCap, attempt-1)
			logger.Debug("connect retry backing off",
				clog.Int("attempt", attempt),
				clog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				_ = p.Close()
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := p.Ping(ctx)
		if err == nil || IsLoading(err) {
			logger.Info("nonblocking pool built",
				clog.String("addr", cfg.Addr()),
				clog.Int("max_conns", cfg.MaxConns))
			return p, nil
		}
		lastErr = err
	}

	_ = p.Close()
	return nil, xerrors.Wrapf(ErrConnect, "pool[%s]: %d attempts exhausted: %v", cfg.Name, attempts, lastErr)
}

// redisFactory 把 go-redis 客户端包装为池的连接工厂
//
// client.Conn() 固定一条物理连接，真正的拨号发生在首次命令时。
func redisFactory(client *redis.Client) factory {
	return func(ctx context.Context) (transportConn, error) {
		return &redisConn{conn: client.Conn()}, nil
	}
}

// redisOptions 把 DatabaseConfig 映射为 go-redis 选项
//
// 未设置的可选字段不下传（密码为空就保持零值，不显式传空串给
// 认证流程）；keepalive 三元组通过自定义 Dialer 落到 TCP 层。
func redisOptions(cfg *config.DatabaseConfig) (*redis.Options, error) {
	dialer := &net.Dialer{
		Timeout: cfg.ConnectTimeout,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     cfg.KeepAlive.Idle,
			Interval: cfg.KeepAlive.Interval,
			Count:    cfg.KeepAlive.Count,
		},
	}

	opt := &redis.Options{
		Addr:         cfg.Addr(),
		DB:           cfg.DB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,
		PoolSize:     cfg.MaxConns,
		PoolTimeout:  cfg.PoolTimeout,
		Dialer: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	}

	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	if cfg.TLS != nil {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, xerrors.Wrapf(err, "pool[%s]: tls config", cfg.Name)
		}
		opt.TLSConfig = tlsConfig
	}

	return opt, nil
}

// buildTLSConfig 装配 TLS 配置；cert_reqs 为 "none" 时跳过服务端验证
func buildTLSConfig(cfg *config.TLSConfig) (*tls.Config, error) {
	tc := &tls.Config{
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.CertReqs == "none",
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, xerrors.Wrapf(err, "read ca file %s", cfg.CAFile)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, xerrors.New("no valid certificates in ca file")
		}
		tc.RootCAs = roots
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, xerrors.Wrapf(err, "load key pair %s", cfg.CertFile)
		}
		tc.Certificates = []tls.Certificate{cert}
	}

	return tc, nil
}

// backoffDelay 计算第 attempt 次重试的退避时间：base × 2^attempt 封顶 cap
func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}
