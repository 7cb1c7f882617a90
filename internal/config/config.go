// Package config provides unified configuration loading from files,
// environment variables, and CLI flags using viper and pflag.
//
// Resolution order (highest wins):
//  1. CLI flags
//  2. Environment variables (prefix GREENTIC_)
//  3. Config file (config.yaml in . or /etc/greentic-messaging/)
//  4. Compiled defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ConfigOption struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

const (
	KeyEnv       = "env"
	KeyBusURL    = "bus.url"
	KeyPacksRoot = "packs.root"
)

const (
	KeyIngressBind        = "ingress.bind"
	KeyIngressHMACSecret  = "ingress.hmac_secret"
	KeyIngressHMACHeader  = "ingress.hmac_header"
	KeyIngressBearerToken = "ingress.bearer_token"
	KeyIngressOrigins     = "ingress.allowed_origins"
)

const (
	KeyRatelimitRPS             = "ratelimit.rps"
	KeyRatelimitBurst           = "ratelimit.burst"
	KeyRatelimitTenantOverrides = "ratelimit.tenant_overrides"
	KeyRatelimitIPRPS           = "ratelimit.ip_rps"
	KeyRatelimitIPBurst         = "ratelimit.ip_burst"
)

const (
	KeyIdempotencyNamespace = "idempotency.namespace"
	KeyIdempotencyTTL       = "idempotency.ttl"
)

const (
	KeyTenantDefaultTeam = "tenant.default_team"
)

const (
	KeyEgressTenant        = "egress.tenant"
	KeyEgressPlatforms     = "egress.platforms"
	KeyEgressMaxAckPending = "egress.max_ack_pending"
	KeyEgressBind          = "egress.bind"
	KeyEgressEndpoints     = "egress.endpoints"
)

const (
	KeyRunnerURL  = "runner.url"
	KeyOAuthURL   = "oauth.url"
	KeySecretsURL = "secrets.url"
)

const (
	KeyAppLinkSecret = "applink.secret"
	KeyAppLinkAllow  = "applink.allow"
)

// CommonOptions are bound on every subcommand.
var CommonOptions = []ConfigOption{
	{Key: KeyEnv, Flag: flag(KeyEnv), Default: "dev", Description: "Deployment environment (subject token)"},
	{Key: KeyBusURL, Flag: flag(KeyBusURL), Default: "nats://127.0.0.1:4222", Description: "NATS server url"},
	{Key: KeyPacksRoot, Flag: flag(KeyPacksRoot), Default: "./packs", Description: "Adapter pack directory"},
}

var GatewayOptions = []ConfigOption{
	{Key: KeyIngressBind, Flag: flag(KeyIngressBind), Default: ":8299", Description: "Ingress listen address"},
	{Key: KeyIngressHMACSecret, Flag: flag(KeyIngressHMACSecret), Default: "", Description: "Ingress webhook hmac secret"},
	{Key: KeyIngressHMACHeader, Flag: flag(KeyIngressHMACHeader), Default: "x-signature", Description: "Ingress webhook hmac header"},
	{Key: KeyIngressBearerToken, Flag: flag(KeyIngressBearerToken), Default: "", Description: "Ingress webhook bearer token"},
	{Key: KeyIngressOrigins, Flag: flag(KeyIngressOrigins), Default: []string{}, Description: "Ingress webchat allowed origins"},
	{Key: KeyRatelimitIPRPS, Flag: flag(KeyRatelimitIPRPS), Default: 25, Description: "Source ip rate limit (requests per second)"},
	{Key: KeyRatelimitIPBurst, Flag: flag(KeyRatelimitIPBurst), Default: 50, Description: "Source ip burst"},
	{Key: KeyIdempotencyNamespace, Flag: flag(KeyIdempotencyNamespace), Default: "greentic-msg-idem", Description: "Idempotency kv bucket"},
	{Key: KeyIdempotencyTTL, Flag: flag(KeyIdempotencyTTL), Default: 24 * time.Hour, Description: "Idempotency key ttl"},
	{Key: KeyTenantDefaultTeam, Flag: flag(KeyTenantDefaultTeam), Default: "default", Description: "Team token for ingress subjects"},
}

var EgressOptions = []ConfigOption{
	{Key: KeyEgressTenant, Flag: flag(KeyEgressTenant), Default: "", Description: "Egress tenant to drain"},
	{Key: KeyEgressPlatforms, Flag: flag(KeyEgressPlatforms), Default: []string{}, Description: "Egress platforms (empty means all)"},
	{Key: KeyEgressMaxAckPending, Flag: flag(KeyEgressMaxAckPending), Default: 256, Description: "Egress max unacked deliveries"},
	{Key: KeyEgressBind, Flag: flag(KeyEgressBind), Default: ":8301", Description: "Egress metrics listen address"},
	{Key: KeyEgressEndpoints, Flag: flag(KeyEgressEndpoints), Default: "", Description: "Platform delivery endpoints (json map)"},
	{Key: KeyRatelimitRPS, Flag: flag(KeyRatelimitRPS), Default: 5, Description: "Default tenant rate limit (requests per second)"},
	{Key: KeyRatelimitBurst, Flag: flag(KeyRatelimitBurst), Default: 10, Description: "Default tenant burst"},
	{Key: KeyRatelimitTenantOverrides, Flag: flag(KeyRatelimitTenantOverrides), Default: "", Description: "Per-tenant limit overrides (json map)"},
	{Key: KeyOAuthURL, Flag: flag(KeyOAuthURL), Default: "", Description: "OAuth broker base url"},
	{Key: KeySecretsURL, Flag: flag(KeySecretsURL), Default: "", Description: "Secrets service base url"},
	{Key: KeyAppLinkSecret, Flag: flag(KeyAppLinkSecret), Default: "", Description: "App-link signing secret"},
	{Key: KeyAppLinkAllow, Flag: flag(KeyAppLinkAllow), Default: []string{}, Description: "Allowed action url prefixes"},
}

var DLQOptions = []ConfigOption{
	{Key: KeyRunnerURL, Flag: flag(KeyRunnerURL), Default: "", Description: "Flow runner base url (replay target)"},
}

type Config struct {
	v *viper.Viper
}

func New() (*Config, error) {
	v := viper.New()

	// default values
	for _, options := range [][]ConfigOption{CommonOptions, GatewayOptions, EgressOptions, DLQOptions} {
		for _, o := range options {
			v.SetDefault(o.Key, o.Default)
		}
	}

	// load config from file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/greentic-messaging/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// load config from environment variables
	v.SetEnvPrefix("GREENTIC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

func (c *Config) BindFlags(fs *pflag.FlagSet, options []ConfigOption) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

func (c *Config) Env() string {
	return c.v.GetString(KeyEnv) // GREENTIC_ENV
}

func (c *Config) BusURL() string {
	return c.v.GetString(KeyBusURL) // GREENTIC_BUS_URL
}

func (c *Config) PacksRoot() string {
	return c.v.GetString(KeyPacksRoot) // GREENTIC_PACKS_ROOT
}

func (c *Config) IngressBind() string {
	return c.v.GetString(KeyIngressBind) // GREENTIC_INGRESS_BIND
}

func (c *Config) IngressHMACSecret() string {
	return c.v.GetString(KeyIngressHMACSecret) // GREENTIC_INGRESS_HMAC_SECRET
}

func (c *Config) IngressHMACHeader() string {
	return c.v.GetString(KeyIngressHMACHeader) // GREENTIC_INGRESS_HMAC_HEADER
}

func (c *Config) IngressBearerToken() string {
	return c.v.GetString(KeyIngressBearerToken) // GREENTIC_INGRESS_BEARER_TOKEN
}

func (c *Config) IngressAllowedOrigins() []string {
	return c.v.GetStringSlice(KeyIngressOrigins) // GREENTIC_INGRESS_ALLOWED_ORIGINS
}

func (c *Config) RatelimitRPS() int {
	return c.v.GetInt(KeyRatelimitRPS) // GREENTIC_RATELIMIT_RPS
}

func (c *Config) RatelimitBurst() int {
	return c.v.GetInt(KeyRatelimitBurst) // GREENTIC_RATELIMIT_BURST
}

func (c *Config) RatelimitTenantOverrides() string {
	return c.v.GetString(KeyRatelimitTenantOverrides) // GREENTIC_RATELIMIT_TENANT_OVERRIDES
}

func (c *Config) RatelimitIPRPS() int {
	return c.v.GetInt(KeyRatelimitIPRPS) // GREENTIC_RATELIMIT_IP_RPS
}

func (c *Config) RatelimitIPBurst() int {
	return c.v.GetInt(KeyRatelimitIPBurst) // GREENTIC_RATELIMIT_IP_BURST
}

func (c *Config) IdempotencyNamespace() string {
	return c.v.GetString(KeyIdempotencyNamespace) // GREENTIC_IDEMPOTENCY_NAMESPACE
}

func (c *Config) IdempotencyTTL() time.Duration {
	return c.v.GetDuration(KeyIdempotencyTTL) // GREENTIC_IDEMPOTENCY_TTL
}

func (c *Config) TenantDefaultTeam() string {
	return c.v.GetString(KeyTenantDefaultTeam) // GREENTIC_TENANT_DEFAULT_TEAM
}

func (c *Config) EgressTenant() string {
	return c.v.GetString(KeyEgressTenant) // GREENTIC_EGRESS_TENANT
}

func (c *Config) EgressPlatforms() []string {
	return c.v.GetStringSlice(KeyEgressPlatforms) // GREENTIC_EGRESS_PLATFORMS
}

func (c *Config) EgressMaxAckPending() int {
	return c.v.GetInt(KeyEgressMaxAckPending) // GREENTIC_EGRESS_MAX_ACK_PENDING
}

func (c *Config) EgressBind() string {
	return c.v.GetString(KeyEgressBind) // GREENTIC_EGRESS_BIND
}

func (c *Config) EgressEndpoints() string {
	return c.v.GetString(KeyEgressEndpoints) // GREENTIC_EGRESS_ENDPOINTS
}

func (c *Config) RunnerURL() string {
	return c.v.GetString(KeyRunnerURL) // GREENTIC_RUNNER_URL
}

func (c *Config) OAuthURL() string {
	return c.v.GetString(KeyOAuthURL) // GREENTIC_OAUTH_URL
}

func (c *Config) SecretsURL() string {
	return c.v.GetString(KeySecretsURL) // GREENTIC_SECRETS_URL
}

func (c *Config) AppLinkSecret() string {
	return c.v.GetString(KeyAppLinkSecret) // GREENTIC_APPLINK_SECRET
}

func (c *Config) AppLinkAllow() []string {
	return c.v.GetStringSlice(KeyAppLinkAllow) // GREENTIC_APPLINK_ALLOW
}

func flag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	return flag
}
