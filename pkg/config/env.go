// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ApplyEnv loads .env if present and overrides fields from VIBMON_* variables
func (c *Config) ApplyEnv() {
	// A missing .env is normal
	_ = godotenv.Load()

	c.Probe.Port = getEnv("VIBMON_PORT", c.Probe.Port)
	c.Probe.Baud = getEnvInt("VIBMON_BAUD", c.Probe.Baud)
	c.Probe.URL = getEnv("VIBMON_URL", c.Probe.URL)
	c.Probe.Username = getEnv("VIBMON_USERNAME", c.Probe.Username)
	c.Probe.Password = getEnv("VIBMON_PASSWORD", c.Probe.Password)
	c.Probe.NoSSLVerify = getEnvBool("VIBMON_NO_SSL_VERIFY", c.Probe.NoSSLVerify)

	c.Link.RetryMin = getEnvDuration("VIBMON_RETRY_MIN", c.Link.RetryMin)
	c.Link.RetryMax = getEnvDuration("VIBMON_RETRY_MAX", c.Link.RetryMax)

	c.Safety.UnknownStatus = getEnv("VIBMON_UNKNOWN_STATUS", c.Safety.UnknownStatus)
	c.Safety.Enable = getEnvBool("VIBMON_ENABLE", c.Safety.Enable)
	c.Safety.ThresholdWarn = getEnvFloat("VIBMON_THRESHOLD_WARN", c.Safety.ThresholdWarn)
	c.Safety.ThresholdCrit = getEnvFloat("VIBMON_THRESHOLD_CRIT", c.Safety.ThresholdCrit)

	c.Bus.Kind = getEnv("VIBMON_BUS", c.Bus.Kind)
	c.Bus.MQTT.Broker = getEnv("VIBMON_MQTT_BROKER", c.Bus.MQTT.Broker)
	c.Bus.MQTT.ClientID = getEnv("VIBMON_MQTT_CLIENT_ID", c.Bus.MQTT.ClientID)
	c.Bus.MQTT.Username = getEnv("VIBMON_MQTT_USERNAME", c.Bus.MQTT.Username)
	c.Bus.MQTT.Password = getEnv("VIBMON_MQTT_PASSWORD", c.Bus.MQTT.Password)
	c.Bus.MQTT.Prefix = getEnv("VIBMON_MQTT_PREFIX", c.Bus.MQTT.Prefix)

	c.Log.Enabled = getEnvBool("VIBMON_LOG_ENABLED", c.Log.Enabled)
	c.Log.Dir = getEnv("VIBMON_LOG_DIR", c.Log.Dir)
	c.Log.ClickHouse.Addr = getEnv("VIBMON_CLICKHOUSE_ADDR", c.Log.ClickHouse.Addr)
	c.Log.ClickHouse.Database = getEnv("VIBMON_CLICKHOUSE_DB", c.Log.ClickHouse.Database)
	c.Log.ClickHouse.Username = getEnv("VIBMON_CLICKHOUSE_USER", c.Log.ClickHouse.Username)
	c.Log.ClickHouse.Password = getEnv("VIBMON_CLICKHOUSE_PASS", c.Log.ClickHouse.Password)
	c.Log.Timescale.ConnString = getEnv("VIBMON_TIMESCALE_DSN", c.Log.Timescale.ConnString)

	c.HTTP.Addr = getEnv("VIBMON_HTTP_ADDR", c.HTTP.Addr)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[vibmon] Ignoring invalid %s=%q", key, value)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[vibmon] Ignoring invalid %s=%q", key, value)
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("[vibmon] Ignoring invalid %s=%q", key, value)
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[vibmon] Ignoring invalid %s=%q", key, value)
		return defaultValue
	}
	return d
}
