package config

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

func LoadDB() DB {
	return DB{
		Host: getenv("DB_HOST", "127.0.0.1"),
		Port: getenv("DB_PORT", "3306"),
		User: getenv("DB_USER", "root"),
		Pass: getenv("DB_PASS", ""),
		Name: getenv("DB_NAME", "order-pipeline-db"),
	}
}

type Redis struct {
	Addr string
}

func LoadRedis() Redis {
	return Redis{Addr: getenv("REDIS_ADDR", "localhost:6379")}
}

// Gateway configures the redirect-based checkout provider.
type Gateway struct {
	APIKey      string
	SecretKey   string
	BaseURL     string
	CallbackURL string
	Timeout     time.Duration
	Currency    string
}

func LoadGateway() Gateway {
	return Gateway{
		APIKey:      getenv("GATEWAY_API_KEY", ""),
		SecretKey:   getenv("GATEWAY_SECRET_KEY", ""),
		BaseURL:     getenv("GATEWAY_BASE_URL", "https://sandbox-api.gateway.example"),
		CallbackURL: getenv("GATEWAY_CALLBACK_URL", ""),
		Timeout:     getdur("GATEWAY_TIMEOUT", 10*time.Second),
		Currency:    getenv("GATEWAY_CURRENCY", "TRY"),
	}
}

// Webhooks holds the carrier authenticity material. Either the HMAC secret or
// the shared token may be set per source; neither set means every delivery is
// rejected.
type Webhooks struct {
	ShippingSecret string
	ShippingToken  string
	ReturnsSecret  string
	ReturnsToken   string
	ReplayWindow   time.Duration
}

func LoadWebhooks() Webhooks {
	return Webhooks{
		ShippingSecret: getenv("SHIPPING_WEBHOOK_SECRET", ""),
		ShippingToken:  getenv("SHIPPING_WEBHOOK_TOKEN", ""),
		ReturnsSecret:  getenv("RETURNS_WEBHOOK_SECRET", ""),
		ReturnsToken:   getenv("RETURNS_WEBHOOK_TOKEN", ""),
		ReplayWindow:   getdur("WEBHOOK_REPLAY_WINDOW", 5*time.Minute),
	}
}

// Housekeeper windows: the no-token grace is longer because a stored token is
// stronger payment-intent evidence than its absence.
type Housekeeper struct {
	Interval     time.Duration
	NoTokenGrace time.Duration
	TokenGrace   time.Duration
	BatchLimit   int
}

func LoadHousekeeper() Housekeeper {
	return Housekeeper{
		Interval:     getdur("HOUSEKEEPER_INTERVAL", time.Minute),
		NoTokenGrace: getdur("HOUSEKEEPER_NO_TOKEN_GRACE", 30*time.Minute),
		TokenGrace:   getdur("HOUSEKEEPER_TOKEN_GRACE", 15*time.Minute),
		BatchLimit:   getint("HOUSEKEEPER_BATCH_LIMIT", 1000),
	}
}

// Notifier credentials; a channel with missing credentials is disabled, never
// an error.
type Notifier struct {
	EmailAPIKey    string
	EmailFrom      string
	SMSAccountSID  string
	SMSAuthToken   string
	SMSFromNumber  string
	ChatWebhookURL string
	WebhookURL     string
	Timeout        time.Duration
	Debug          bool
}

func LoadNotifier() Notifier {
	return Notifier{
		EmailAPIKey:    getenv("EMAIL_API_KEY", ""),
		EmailFrom:      getenv("EMAIL_FROM", "Orders <noreply@example.com>"),
		SMSAccountSID:  getenv("SMS_ACCOUNT_SID", ""),
		SMSAuthToken:   getenv("SMS_AUTH_TOKEN", ""),
		SMSFromNumber:  getenv("SMS_FROM_NUMBER", ""),
		ChatWebhookURL: getenv("CHAT_WEBHOOK_URL", ""),
		WebhookURL:     getenv("NOTIFY_WEBHOOK_URL", ""),
		Timeout:        getdur("NOTIFY_TIMEOUT", 5*time.Second),
		Debug:          getenv("NOTIFY_DEBUG", "") == "true",
	}
}

type RateLimit struct {
	Limit  int
	Window time.Duration
}

func LoadRateLimit() RateLimit {
	return RateLimit{
		Limit:  getint("RATE_LIMIT_PER_WINDOW", 60),
		Window: getdur("RATE_LIMIT_WINDOW", time.Minute),
	}
}

type Server struct {
	Port       string
	JWTSecret  string
	SuccessURL string // browser redirect target after payment callback
}

func LoadServer() Server {
	return Server{
		Port:       getenv("PORT", "8082"),
		JWTSecret:  getenv("JWT_SECRET", "secret"),
		SuccessURL: getenv("PAYMENT_SUCCESS_URL", ""),
	}
}
