package v1

import (
	"github.com/andreyxaxa/Ledger-Outbox/internal/usecase"
	"github.com/andreyxaxa/Ledger-Outbox/pkg/logger"
)

type V1 struct {
	ob     usecase.OutboxUseCase
	logger logger.Interface
}
