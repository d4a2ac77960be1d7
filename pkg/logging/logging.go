// Package logging はlogrusの初期化を一箇所にまとめる
package logging

import (
	"github.com/sirupsen/logrus"
)

// Setup はログレベルとフォーマットを設定
// 不正なレベル指定はinfoにフォールバックする
func Setup(level, format string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
		logrus.WithField("level", level).Warn("unknown log level, falling back to info")
	}
	logrus.SetLevel(parsed)

	if format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
}
