package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KaiyuWei/chat-box/internal/apiclient"
	"github.com/KaiyuWei/chat-box/internal/config"
	"github.com/KaiyuWei/chat-box/internal/session"
	"github.com/KaiyuWei/chat-box/internal/storage"
	"github.com/KaiyuWei/chat-box/internal/tui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	statePath := cfg.StatePath
	if statePath == "" {
		statePath = storage.DefaultStatePath()
	}

	// La terminal es de bubbletea; los logs van a un archivo al lado del
	// estado local.
	logger := newFileLogger(filepath.Join(filepath.Dir(statePath), "chatbox.log"))
	defer logger.Sync()

	store := storage.NewSelectionStore(statePath, logger)
	api := apiclient.New(cfg.APIBaseURL, logger)
	ctrl := session.NewController(store, logger)

	model := tui.NewModel(ctrl, api, cfg.UserID, logger)

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatbox: %v\n", err)
		os.Exit(1)
	}
}

func newFileLogger(path string) *zap.Logger {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zap.NewNop()
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(f),
		zapcore.InfoLevel,
	)
	return zap.New(core)
}
