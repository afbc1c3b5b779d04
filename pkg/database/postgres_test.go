package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/michaelkatsweb/Heronix-Scheduler-sub010/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "sched", Password: "pw", Name: "heronix", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=sched password=pw dbname=heronix sslmode=disable", dsn)
}
