package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	TierDurable = "durable"
	TierSession = "session"

	tokenBackendVar   = "TOKEN_BACKEND"
	sessionBackendVar = "SESSION_BACKEND"
	tokenFileVar      = "TOKEN_FILE"
	sqlitePathVar     = "TOKEN_SQLITE_PATH"
	redisAddrVar      = "REDIS_ADDR"
	redisPrefixVar    = "REDIS_PREFIX"
	sessionTTLVar     = "SESSION_TTL"
	encryptionKeyVar  = "TOKEN_ENCRYPTION_KEY"
	loginTierVar      = "LOGIN_TIER"
)

type StorageConfig interface {
	GetTokenBackend() string
	GetSessionBackend() string
	GetTokenFile() string
	GetSQLitePath() string
	GetRedisAddr() string
	GetRedisPrefix() string
	GetSessionTTL() time.Duration
	GetEncryptionKey() string
	GetLoginTier() string
}

type Storage struct {
	file *FileConfig
}

var _ StorageConfig = Storage{}

func (s Storage) GetTokenBackend() string {
	return GetEnv(tokenBackendVar, orDefault(s.file.Storage.Backend, BackendFile))
}

func (s Storage) GetSessionBackend() string {
	return GetEnv(sessionBackendVar, orDefault(s.file.Storage.SessionBackend, BackendMemory))
}

func (s Storage) GetTokenFile() string {
	return GetEnv(tokenFileVar, orDefault(s.file.Storage.TokenFile, defaultDataPath("tokens.json")))
}

func (s Storage) GetSQLitePath() string {
	return GetEnv(sqlitePathVar, orDefault(s.file.Storage.SQLitePath, defaultDataPath("tokens.db")))
}

func (s Storage) GetRedisAddr() string {
	return GetEnv(redisAddrVar, orDefault(s.file.Storage.RedisAddr, "localhost:6379"))
}

func (s Storage) GetRedisPrefix() string {
	return GetEnv(redisPrefixVar, orDefault(s.file.Storage.RedisPrefix, "passport"))
}

// GetSessionTTL bounds the lifetime of the session tier when it is backed by Redis.
func (s Storage) GetSessionTTL() time.Duration {
	return GetDurationEnv(sessionTTLVar, orDefault(s.file.Storage.SessionTTL, 12*time.Hour))
}

func (s Storage) GetEncryptionKey() string {
	return GetEnv(encryptionKeyVar, s.file.Storage.EncryptionKey)
}

func (s Storage) GetLoginTier() string {
	return GetEnv(loginTierVar, orDefault(s.file.Storage.LoginTier, TierDurable))
}

func defaultDataPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", name)
	}
	return filepath.Join(dir, "passport", name)
}
