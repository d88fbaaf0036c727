package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

const (
	DeliveryDirect = "direct"
	DeliveryAMQP   = "amqp"
)

type Config struct {
	// HTTP Server
	Port string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Twilio WhatsApp
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string

	// Trigger surface
	CronSecret  string
	WeeklyCron  string
	MonthlyCron string

	// Auth gateway
	AuthGatewayURL string

	// Delivery path selection
	DeliveryMode string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/financeiro.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "financeiro"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_deliveries"),

		TwilioAccountSID:   getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:    getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom: getEnv("TWILIO_WHATSAPP_FROM", ""),

		CronSecret:  getEnv("CRON_SECRET", ""),
		WeeklyCron:  getEnv("WEEKLY_CRON", "0 8 * * 1"),
		MonthlyCron: getEnv("MONTHLY_CRON", "0 8 1 * *"),

		AuthGatewayURL: getEnv("AUTH_GATEWAY_URL", ""),

		DeliveryMode: getEnv("DELIVERY_MODE", DeliveryDirect),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.DeliveryMode != DeliveryDirect && c.DeliveryMode != DeliveryAMQP {
		errors = append(errors, fmt.Sprintf("invalid delivery mode '%s': must be '%s' or '%s'", c.DeliveryMode, DeliveryDirect, DeliveryAMQP))
	}

	if c.DeliveryMode == DeliveryAMQP && c.AMQPURL == "" {
		errors = append(errors, "AMQP URL is required when delivery mode is 'amqp'")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CronSecret == "" {
		errors = append(errors, "cron secret cannot be empty: the report trigger endpoints would be open")
	}

	if c.AuthGatewayURL != "" {
		if parsedURL, err := url.Parse(c.AuthGatewayURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid auth gateway URL '%s': %v", c.AuthGatewayURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid auth gateway URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	for _, spec := range []struct {
		name  string
		value string
	}{
		{"weekly cron", c.WeeklyCron},
		{"monthly cron", c.MonthlyCron},
	} {
		if _, err := cron.ParseStandard(spec.value); err != nil {
			errors = append(errors, fmt.Sprintf("invalid %s expression '%s': %v", spec.name, spec.value, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// TwilioConfigured reports whether all three Twilio settings are present.
func (c *Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppFrom != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
