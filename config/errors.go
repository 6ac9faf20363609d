package config

import "github.com/ceyewan/redisman/xerrors"

// Sentinel Errors - 配置解析专用的哨兵错误
var (
	// ErrNotFound 三个来源都没有该数据库的配置
	ErrNotFound = xerrors.New("config: database not found")

	// ErrSource 某个来源本身不可用（文件读取失败、注册中心查询失败）
	ErrSource = xerrors.New("config: source unavailable")
)
