package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/orchestrator"
	"github.com/shaiso/craftflow/internal/repo"
)

// Handler — обработчики API.
type Handler struct {
	store        *repo.Store
	orchestrator *orchestrator.Orchestrator
	registry     *nodes.Registry
	logger       *slog.Logger
}

// Config — зависимости Handler.
type Config struct {
	Store        *repo.Store
	Orchestrator *orchestrator.Orchestrator
	Registry     *nodes.Registry
	Logger       *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = nodes.DefaultRegistry()
	}
	orch := cfg.Orchestrator
	if orch == nil {
		orch = orchestrator.New(orchestrator.Config{Store: cfg.Store, Registry: reg, Logger: logger})
	}
	return &Handler{
		store:        cfg.Store,
		orchestrator: orch,
		registry:     reg,
		logger:       logger,
	}
}

// maxBodySize — ограничение размера тела запроса.
const maxBodySize = 4 << 20

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	return body, nil
}
