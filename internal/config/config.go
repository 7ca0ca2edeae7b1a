/**
 * @description
 * This package handles the configuration management for the settlement
 * service. It uses the Viper library to read configuration from environment
 * variables, providing a centralized and straightforward way to manage
 * application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables. Amounts are XAF.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`
	JWKSURL     string `mapstructure:"JWKS_URL"`

	TrialDays             int `mapstructure:"TRIAL_DAYS"`
	BillingPeriodDays     int `mapstructure:"BILLING_PERIOD_DAYS"`
	ReminderLeadDays      int `mapstructure:"REMINDER_LEAD_DAYS"`
	TrialReminderLeadDays int `mapstructure:"TRIAL_REMINDER_LEAD_DAYS"`

	IntentTTLMinutes          int     `mapstructure:"INTENT_TTL_MINUTES"`
	StandardCommissionPercent float64 `mapstructure:"STANDARD_COMMISSION_PERCENT"`
	ReferralCommissionAmount  int64   `mapstructure:"REFERRAL_COMMISSION_AMOUNT"`

	RewardMaxEligibleAmount   int64 `mapstructure:"REWARD_MAX_ELIGIBLE_AMOUNT"`
	RewardMaxDiscountPerOrder int64 `mapstructure:"REWARD_MAX_DISCOUNT_PER_ORDER"`
	RewardMaxCreditPerOrder   int64 `mapstructure:"REWARD_MAX_CREDIT_PER_ORDER"`
	LoyaltyFundLowWatermark   int64 `mapstructure:"LOYALTY_FUND_LOW_WATERMARK"`

	SubscriptionSweepSchedule string `mapstructure:"SUBSCRIPTION_SWEEP_SCHEDULE"`
	ReminderJobSchedule       string `mapstructure:"REMINDER_JOB_SCHEDULE"`
	IntentExpirySchedule      string `mapstructure:"INTENT_EXPIRY_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig() (config Config, err error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("TRIAL_DAYS", 14)
	viper.SetDefault("BILLING_PERIOD_DAYS", 30)
	viper.SetDefault("REMINDER_LEAD_DAYS", 5)
	viper.SetDefault("TRIAL_REMINDER_LEAD_DAYS", 2)
	viper.SetDefault("INTENT_TTL_MINUTES", 15)
	viper.SetDefault("STANDARD_COMMISSION_PERCENT", 10.0)
	viper.SetDefault("REFERRAL_COMMISSION_AMOUNT", 500)
	viper.SetDefault("REWARD_MAX_ELIGIBLE_AMOUNT", 10000)
	viper.SetDefault("REWARD_MAX_DISCOUNT_PER_ORDER", 2000)
	viper.SetDefault("REWARD_MAX_CREDIT_PER_ORDER", 5000)
	viper.SetDefault("LOYALTY_FUND_LOW_WATERMARK", 50000)
	viper.SetDefault("SUBSCRIPTION_SWEEP_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("REMINDER_JOB_SCHEDULE", "0 8 * * *")
	viper.SetDefault("INTENT_EXPIRY_SCHEDULE", "*/5 * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("TRIAL_DAYS")
	_ = viper.BindEnv("BILLING_PERIOD_DAYS")
	_ = viper.BindEnv("REMINDER_LEAD_DAYS")
	_ = viper.BindEnv("TRIAL_REMINDER_LEAD_DAYS")
	_ = viper.BindEnv("INTENT_TTL_MINUTES")
	_ = viper.BindEnv("STANDARD_COMMISSION_PERCENT")
	_ = viper.BindEnv("REFERRAL_COMMISSION_AMOUNT")
	_ = viper.BindEnv("REWARD_MAX_ELIGIBLE_AMOUNT")
	_ = viper.BindEnv("REWARD_MAX_DISCOUNT_PER_ORDER")
	_ = viper.BindEnv("REWARD_MAX_CREDIT_PER_ORDER")
	_ = viper.BindEnv("LOYALTY_FUND_LOW_WATERMARK")
	_ = viper.BindEnv("SUBSCRIPTION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("REMINDER_JOB_SCHEDULE")
	_ = viper.BindEnv("INTENT_EXPIRY_SCHEDULE")

	err = viper.Unmarshal(&config)
	return
}
