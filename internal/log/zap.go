package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 建立 logger：終端輸出到 stderr，file 不為空時另以 JSON 格式寫入檔案。
// stdout 保留給 CLI 的報告輸出。
func New(level, file string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("無效的日誌等級 %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), lvl), // 輸出到終端
	}

	if file = strings.TrimSpace(file); file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, fmt.Errorf("無法建立日誌目錄: %w", err)
		}
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("無法開啟日誌檔案: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), zap.DebugLevel)) // 寫入檔案 (JSON 格式)
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Nop 回傳不輸出任何內容的 logger，供測試使用。
func Nop() *zap.Logger {
	return zap.NewNop()
}
