package kafka

// Config содержит конфигурацию для подключения к Kafka
type Config struct {
	// Brokers — список брокеров Kafka.
	// Значение зависит от среды выполнения:
	//   - локальная разработка (go run): localhost:19092
	//   - запуск в Docker: kafka:9092
	// Можно указать несколько брокеров через запятую: "broker1:9092,broker2:9092"
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// AlertEventsTopic — топик событий алертов (collector -> notifier).
	AlertEventsTopic string `env:"KAFKA_ALERT_EVENTS_TOPIC" envDefault:"vigil.alerts.events"`
	// DLQTopic — топик для сообщений, которые не удалось обработать.
	DLQTopic string `env:"KAFKA_ALERT_DLQ_TOPIC" envDefault:"vigil.alerts.dlq"`
}

// DefaultConfig возвращает конфигурацию с дефолтными значениями для локальной разработки.
// Сервисы должны получать актуальные значения через переменные окружения.
func DefaultConfig() Config {
	return Config{
		Brokers:          []string{"localhost:19092"},
		AlertEventsTopic: "vigil.alerts.events",
		DLQTopic:         "vigil.alerts.dlq",
	}
}
