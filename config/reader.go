package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SmsConfig - креды провайдеров SMS, порядок опроса задается списком Providers
type SmsConfig struct {
	Providers []string `yaml:"providers"`
	Twilio    struct {
		AccountSID  string `yaml:"account_sid"`
		AuthToken   string `yaml:"auth_token"`
		PhoneNumber string `yaml:"phone_number"`
	} `yaml:"twilio"`
	Vonage struct {
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		From      string `yaml:"from"`
	} `yaml:"vonage"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
}

type ConfigSchema struct {
	Databases struct {
		Master   DBConfig   `yaml:"master"`
		Replicas []DBConfig `yaml:"replicas"`
	} `yaml:"db"`
	Redis   RedisConfig `yaml:"redis"`
	Backend struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"backend"`
	Logs struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"logs"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	RabbitMQ struct {
		URL string `yaml:"url"`
	} `yaml:"rabbitmq"`
	Notifications struct {
		FanoutTimeout time.Duration `yaml:"fanout_timeout"`
	} `yaml:"notifications"`
	Push struct {
		CredentialsFile string `yaml:"credentials_file"`
		ProjectID       string `yaml:"project_id"`
	} `yaml:"push"`
	Sms SmsConfig `yaml:"sms"`
}

var AppConfig *ConfigSchema

// Default возвращает конфиг с дефолтами, которые не обязаны быть в yaml
func Default() *ConfigSchema {
	conf := &ConfigSchema{}
	conf.Backend.Port = 8080
	conf.Logs.Level = "info"
	conf.Notifications.FanoutTimeout = 5 * time.Second
	conf.Sms.Providers = []string{"twilio", "vonage", "telegram"}
	return conf
}

// LoadConfig читает yaml, затем поверх него накладывает переменные окружения
// (.env файлы подхватываются через godotenv, уже выставленные переменные не перетираются)
func LoadConfig(filePath string) error {
	conf := Default()
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal(data, conf); err != nil {
		return err
	}
	LoadDotEnvs()
	applyEnv(conf)
	AppConfig = conf
	return nil
}

// LoadDotEnvs подгружает .env.<env>.local, .env.local, .env.<env>, .env в порядке убывания приоритета
func LoadDotEnvs() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}
	_ = godotenv.Load(".env." + env + ".local")
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env." + env)
	_ = godotenv.Load(".env")
}

func applyEnv(conf *ConfigSchema) {
	setFromEnv(&conf.Auth.JWTSecret, "JWT_SECRET")
	setFromEnv(&conf.RabbitMQ.URL, "RABBITMQ_URL")
	setFromEnv(&conf.Push.CredentialsFile, "FCM_CREDENTIALS_FILE")
	setFromEnv(&conf.Push.ProjectID, "FCM_PROJECT_ID")
	setFromEnv(&conf.Databases.Master.Password, "DB_PASSWORD")
	setFromEnv(&conf.Redis.Password, "REDIS_PASSWORD")

	setFromEnv(&conf.Sms.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setFromEnv(&conf.Sms.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setFromEnv(&conf.Sms.Twilio.PhoneNumber, "TWILIO_PHONE_NUMBER")
	setFromEnv(&conf.Sms.Vonage.APIKey, "VONAGE_API_KEY")
	setFromEnv(&conf.Sms.Vonage.APISecret, "VONAGE_API_SECRET")
	setFromEnv(&conf.Sms.Vonage.From, "VONAGE_FROM")
	setFromEnv(&conf.Sms.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setFromEnv(&conf.Sms.Telegram.ChatID, "TELEGRAM_CHAT_ID")

	if providers := os.Getenv("SMS_PROVIDERS"); providers != "" {
		conf.Sms.Providers = strings.Split(providers, ",")
	}
}

func setFromEnv(target *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*target = v
	}
}
