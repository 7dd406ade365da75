package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	testEnv := map[string]string{
		"BROKER_KEY_ID":      "test_key",
		"BROKER_SECRET_KEY":  "test_secret",
		"ORDER_POLL_DELAY_MS": "200",
		"REDIS_CHANNEL":      "bars_test",
	}

	for key, value := range testEnv {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range testEnv {
			os.Unsetenv(key)
		}
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BrokerKeyID != "test_key" {
		t.Errorf("Expected BrokerKeyID='test_key', got '%s'", cfg.BrokerKeyID)
	}
	if cfg.BrokerSecretKey != "test_secret" {
		t.Errorf("Expected BrokerSecretKey='test_secret', got '%s'", cfg.BrokerSecretKey)
	}

	if cfg.OrderPollDelay != 200*time.Millisecond {
		t.Errorf("Expected OrderPollDelay=200ms, got %v", cfg.OrderPollDelay)
	}
	if cfg.RedisChannel != "bars_test" {
		t.Errorf("Expected RedisChannel='bars_test', got '%s'", cfg.RedisChannel)
	}

	// Defaults
	if cfg.BrokerBaseURL != "https://paper-api.alpaca.markets" {
		t.Errorf("Unexpected BrokerBaseURL default: %s", cfg.BrokerBaseURL)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("Expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if len(cfg.RetryDelays) != 3 || cfg.RetryDelays[0] != 2*time.Second {
		t.Errorf("Unexpected retry delay schedule: %v", cfg.RetryDelays)
	}
	if cfg.RecoveryInterval != 300*time.Second {
		t.Errorf("Expected RecoveryInterval=300s, got %v", cfg.RecoveryInterval)
	}
	if !cfg.UsePrimaryStream {
		t.Error("Expected UsePrimaryStream=true by default")
	}
}

func TestLoadMissingKeys(t *testing.T) {
	os.Unsetenv("BROKER_KEY_ID")
	os.Unsetenv("BROKER_SECRET_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when API keys are missing, got nil")
	}

	expectedError := "BROKER_KEY_ID and BROKER_SECRET_KEY must be set"
	if err.Error() != expectedError {
		t.Errorf("Expected error '%s', got '%s'", expectedError, err.Error())
	}
}
