package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "OTP_TTL", "PREVENT_DOUBLE_BOOKING", "STRICT_TREATMENT_TRANSITIONS", "BLOB_DRIVER", "REDIS_URL", "REDIS_ADDR", "KAFKA_BROKERS", "WORKER_METRICS_PORT"} {
		t.Setenv(key, "")
	}
	t.Setenv("POSTGRES_DSN", "postgres://localhost/parchi")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.OTPTTL)
	assert.True(t, cfg.PreventDoubleBooking)
	assert.True(t, cfg.StrictTreatmentTransitions)
	assert.Equal(t, BlobDisk, cfg.BlobDriver)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "9091", cfg.WorkerMetricsPort)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/parchi")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.EqualError(t, err, "JWT_SECRET is required")
}

func TestLoad_MongoDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("MONGO_URI", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	assert.EqualError(t, err, "MONGO_URI is required")

	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "parchi", cfg.MongoDatabase)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/parchi")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("OTP_TTL", "90")
	t.Setenv("LOCK_TTL", "2s")
	t.Setenv("PREVENT_DOUBLE_BOOKING", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("REDIS_URL", "redis://user:pw@cache:6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.Equal(t, 2*time.Second, cfg.LockTTL)
	assert.False(t, cfg.PreventDoubleBooking)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, "user", cfg.RedisUsername)
	assert.Equal(t, "pw", cfg.RedisPassword)
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/parchi")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BLOB_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "")

	_, err := Load()
	assert.Error(t, err)
}
