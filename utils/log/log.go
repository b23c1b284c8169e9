package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// глобальный логгер сервиса
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// init нужен для тестов, где main не вызывается и InitLogger никто не дергает
func init() {
	InitLogger("sportsocial", "info", false)
}

func InitLogger(service string, level string, json bool) {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)

	if json {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	Log = logger.WithFields(logrus.Fields{"service": service})
}
