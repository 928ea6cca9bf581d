package invite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// LinkProcedure runs the stored linking operation and returns its raw result.
type LinkProcedure interface {
	Call(ctx context.Context, tenantID, accountID uuid.UUID) (any, error)
}

// LinkResponse is one of the wire shapes the linking procedure can return:
// LegacyLinkResponse or StructuredLinkResponse.
type LinkResponse interface {
	Normalize() *domain.LinkResult
}

// LegacyLinkResponse is the bare boolean returned by older deployments.
type LegacyLinkResponse struct {
	Linked bool
}

// Normalize maps true to success with a LEGACY_FORMAT warning.
func (r LegacyLinkResponse) Normalize() *domain.LinkResult {
	if r.Linked {
		return &domain.LinkResult{
			Success: true,
			Message: "linked",
			Warning: domain.LinkWarnLegacyFormat,
		}
	}
	return &domain.LinkResult{Success: false, Message: "legacy link failure"}
}

// StructuredLinkResponse is the JSON object returned by current deployments.
type StructuredLinkResponse struct {
	Result domain.LinkResult
}

// Normalize returns the object unchanged.
func (r StructuredLinkResponse) Normalize() *domain.LinkResult {
	result := r.Result
	return &result
}

// DecodeLinkResponse classifies a raw procedure value. lib/pq scans a boolean
// column as bool and a json column as []byte.
func DecodeLinkResponse(raw any) (LinkResponse, error) {
	switch v := raw.(type) {
	case bool:
		return LegacyLinkResponse{Linked: v}, nil
	case []byte:
		return decodeLinkJSON(v)
	case string:
		return decodeLinkJSON([]byte(v))
	case json.RawMessage:
		return decodeLinkJSON(v)
	case nil:
		return nil, errors.New("link procedure returned no value")
	default:
		return nil, fmt.Errorf("unexpected link procedure result type %T", raw)
	}
}

func decodeLinkJSON(data []byte) (LinkResponse, error) {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("t")):
		return LegacyLinkResponse{Linked: true}, nil
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("f")):
		return LegacyLinkResponse{Linked: false}, nil
	}

	var wire struct {
		Success   *bool                `json:"success"`
		Message   string               `json:"message"`
		ErrorCode domain.LinkErrorCode `json:"error_code"`
		Warning   domain.LinkWarning   `json:"warning"`
		Details   json.RawMessage      `json:"details"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode link result: %w", err)
	}
	if wire.Success == nil {
		return nil, errors.New("decode link result: missing success field")
	}
	if bytes.Equal(bytes.TrimSpace(wire.Details), []byte("null")) {
		wire.Details = nil
	}

	return StructuredLinkResponse{Result: domain.LinkResult{
		Success:   *wire.Success,
		Message:   wire.Message,
		ErrorCode: wire.ErrorCode,
		Warning:   wire.Warning,
		Details:   wire.Details,
	}}, nil
}

// Linker attaches accounts to tenant records. It does not retry.
type Linker struct {
	proc    LinkProcedure
	timeout time.Duration
	logger  *slog.Logger
}

// NewLinker creates a linker. A zero timeout leaves the caller's deadline in place.
func NewLinker(proc LinkProcedure, timeout time.Duration, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{proc: proc, timeout: timeout, logger: logger}
}

// Link runs the procedure and always returns a normalized result.
// Transport and decode failures come back as DATABASE_ERROR.
func (l *Linker) Link(ctx context.Context, tenantID, accountID uuid.UUID) *domain.LinkResult {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	raw, err := l.proc.Call(ctx, tenantID, accountID)
	if err != nil {
		l.logger.Error("link procedure call failed",
			"error", err,
			"tenant_id", tenantID,
			"account_id", accountID,
		)
		return databaseErrorResult()
	}

	resp, err := DecodeLinkResponse(raw)
	if err != nil {
		l.logger.Error("link procedure returned an unreadable result",
			"error", err,
			"tenant_id", tenantID,
			"account_id", accountID,
		)
		return databaseErrorResult()
	}

	result := resp.Normalize()
	switch {
	case !result.Success:
		l.logger.Warn("account link failed",
			"tenant_id", tenantID,
			"account_id", accountID,
			"error_code", result.ErrorCode,
			"message", result.Message,
		)
	case result.Warning == domain.LinkWarnLegacyFormat:
		l.logger.Info("link procedure returned legacy result", "tenant_id", tenantID, "account_id", accountID)
	case result.AlreadyLinked():
		l.logger.Info("tenant already linked to account", "tenant_id", tenantID, "account_id", accountID)
	default:
		l.logger.Info("account linked to tenant", "tenant_id", tenantID, "account_id", accountID)
	}
	return result
}

func databaseErrorResult() *domain.LinkResult {
	return &domain.LinkResult{
		Success:   false,
		Message:   "link procedure failed",
		ErrorCode: domain.LinkErrDatabaseError,
	}
}
