package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config regroupe la configuration de l'application (lecture via Viper
// depuis l'environnement et optionnellement un fichier).
type Config struct {
	App     AppConfig
	DB      DBConfig
	JWT     JWTConfig
	HTTP    HTTPConfig
	TTN     TTNConfig
	Billing BillingConfig
}

// TTNConfig configuration de la plateforme El Fatoora (TTN) et du
// matériel de signature.
type TTNConfig struct {
	Environment    string // dev (pas d'envoi), test, prod
	BaseURL        string // Vide = URL par défaut de l'environnement
	BearerToken    string
	TimeoutSeconds int
	CertPath       string // .p12/.pfx ou certificat PEM (vide = signature simulée impossible)
	CertKeyPath    string // Clé privée PEM si CertPath est un certificat PEM
	CertPassword   string // Mot de passe du .p12
}

// Timeout délai total d'un appel à la plateforme.
func (c TTNConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BillingConfig paramètres fiscaux de la facturation.
type BillingConfig struct {
	StampDutyAmount  string // Droit de timbre en dinars, décimal exact (ex: "1.000")
	StampDutyEnabled bool
}

// AppConfig configuration générale de l'application.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuration PostgreSQL. Si DatabaseURL est non vide, elle
// sert de chaîne de connexion complète.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString retourne le DSN à utiliser: DATABASE_URL si défini,
// sinon celui construit par DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN construit la chaîne de connexion PostgreSQL, avec encodage URL des
// caractères spéciaux du mot de passe.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuration des jetons d'authentification.
type JWTConfig struct {
	Secret     string
	Expiration int // minutes
	Issuer     string
}

// HTTPConfig configuration du serveur HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr adresse d'écoute (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lit la configuration depuis les variables d'environnement (et
// optionnellement un fichier .env). Les variables priment sur le fichier.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "fattoura-api"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "fattoura"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "fattoura-api"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		TTN: TTNConfig{
			Environment:    getString(v, "TTN_ENVIRONMENT", "dev"),
			BaseURL:        getString(v, "TTN_BASE_URL", ""),
			BearerToken:    getString(v, "TTN_BEARER_TOKEN", ""),
			TimeoutSeconds: getInt(v, "TTN_TIMEOUT_SECONDS", 60),
			CertPath:       getString(v, "TTN_CERT_PATH", ""),
			CertKeyPath:    getString(v, "TTN_CERT_KEY_PATH", ""),
			CertPassword:   getString(v, "TTN_CERT_PASSWORD", ""),
		},
		Billing: BillingConfig{
			StampDutyAmount:  getString(v, "STAMP_DUTY_AMOUNT", "1.000"),
			StampDutyEnabled: getBool(v, "STAMP_DUTY_ENABLED", true),
		},
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, _ := strconv.Atoi(v.GetString(key))
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getBool(v *viper.Viper, key string, def bool) bool {
	if v.IsSet(key) {
		return v.GetBool(key)
	}
	return def
}
