package config

type StorageDriver string

const (
	MemoryStorage StorageDriver = "memory"
	RedisStorage  StorageDriver = "redis"
)

type StorageConfig interface {
	GetStorageDriver() StorageDriver
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStorageDriver() StorageDriver {
	return StorageDriver(GetEnv("STORAGE_DRIVER", string(MemoryStorage)))
}

func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Storage) GetRedisDB() int {
	return GetEnvInt("REDIS_DB", 0)
}

func (Storage) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "idp:")
}
