package context

import (
	"fmt"

	"gopkg.in/go-playground/validator.v9"
)

type LogLevel string

const (
	Debug LogLevel = "debug"
	Trace LogLevel = "trace"
	Info  LogLevel = "info"
	Warn  LogLevel = "warn"
)

type TransactionStoreType string

const (
	CookieTransactions TransactionStoreType = "cookie"
	MemoryTransactions TransactionStoreType = "memory"
)

type Backend struct {
	BaseUrl        string `mapstructure:"base-url" yaml:"base-url" validate:"omitempty,url"`
	TimeoutSeconds int    `mapstructure:"timeout-seconds" yaml:"timeout-seconds" validate:"min=1"`
}

type Session struct {
	CookieName string `mapstructure:"cookie-name" yaml:"cookie-name"`
}

type GoogleOAuth struct {
	ClientId    string   `mapstructure:"client-id" yaml:"client-id"`
	RedirectUri string   `mapstructure:"redirect-uri" yaml:"redirect-uri" validate:"omitempty,url"`
	AuthUrl     string   `mapstructure:"auth-url" yaml:"auth-url" validate:"omitempty,url"`
	Scopes      []string `mapstructure:"scopes" yaml:"scopes"`
}

type OAuth struct {
	Google            GoogleOAuth          `mapstructure:"google" yaml:"google"`
	TransactionStore  TransactionStoreType `mapstructure:"transaction-store" yaml:"transaction-store" validate:"omitempty,oneof=cookie memory"`
	// Seals the verifier cookie of the cookie store. Never dumped.
	TransactionSecret string               `mapstructure:"transaction-secret" yaml:"-"`
}

type Gate struct {
	VerifySession bool `mapstructure:"verify-session" yaml:"verify-session"`
}

type Cache struct {
	RevalidateSeconds    int `mapstructure:"revalidate-seconds" yaml:"revalidate-seconds" validate:"min=1"`
	EvictScheduleMinutes int `mapstructure:"evict-schedule-minutes" yaml:"evict-schedule-minutes" validate:"min=1"`
}

type Invalidation struct {
	NotifyUrls     []string `mapstructure:"notify-urls" yaml:"notify-urls" validate:"dive,url"`
	TimeoutSeconds int      `mapstructure:"timeout-seconds" yaml:"timeout-seconds" validate:"min=1"`
}

type ProxyConfiguration struct {
	Port          int          `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
	LogLevel      LogLevel     `mapstructure:"log-level" yaml:"log-level"`
	LogTemplate   string       `mapstructure:"log-template" yaml:"log-template"`
	PublicBaseUrl string       `mapstructure:"public-base-url" yaml:"public-base-url" validate:"omitempty,url"`
	Backend       Backend      `mapstructure:"backend" yaml:"backend"`
	Session       Session      `mapstructure:"session" yaml:"session"`
	OAuth         OAuth        `mapstructure:"oauth" yaml:"oauth"`
	Gate          Gate         `mapstructure:"gate" yaml:"gate"`
	Cache         Cache        `mapstructure:"cache" yaml:"cache"`
	Invalidation  Invalidation `mapstructure:"invalidation" yaml:"invalidation"`
}

var validate = validator.New()

func (config *ProxyConfiguration) Validate() error {
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("Invalid configuration: %v", err)
	}
	return nil
}
