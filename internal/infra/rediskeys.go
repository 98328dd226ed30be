package infra

const (
	// RedisNamespace — базовый префикс для изоляции данных шлюза в Redis
	RedisNamespace = "tag"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanSurfaceUpdate — широковещательный сигнал "конфигурация
	// поверхности appID изменилась". Payload — сам appID.
	RedisChanSurfaceUpdate = RedisNamespace + ":surfaces:config-signal"
)
