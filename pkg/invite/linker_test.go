package invite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/tendant/tenant-invite/pkg/domain"
)

func TestDecodeLinkResponse(t *testing.T) {
	tests := []struct {
		name        string
		raw         any
		wantLegacy  bool
		wantSuccess bool
		wantCode    domain.LinkErrorCode
		wantWarning domain.LinkWarning
		wantErr     bool
	}{
		{name: "legacy true", raw: true, wantLegacy: true, wantSuccess: true, wantWarning: domain.LinkWarnLegacyFormat},
		{name: "legacy false", raw: false, wantLegacy: true, wantSuccess: false},
		{name: "json boolean", raw: []byte(" true "), wantLegacy: true, wantSuccess: true, wantWarning: domain.LinkWarnLegacyFormat},
		{name: "text boolean", raw: "f", wantLegacy: true, wantSuccess: false},
		{
			name:        "structured success",
			raw:         []byte(`{"success":true,"message":"tenant linked"}`),
			wantSuccess: true,
		},
		{
			name:        "structured already linked",
			raw:         `{"success":true,"message":"x","warning":"ALREADY_LINKED"}`,
			wantSuccess: true,
			wantWarning: domain.LinkWarnAlreadyLinked,
		},
		{
			name:     "structured failure",
			raw:      json.RawMessage(`{"success":false,"message":"email mismatch","error_code":"EMAIL_MISMATCH","details":{"tenant_email":"a@x.com"}}`),
			wantCode: domain.LinkErrEmailMismatch,
		},
		{
			name:     "unknown code passes through",
			raw:      []byte(`{"success":false,"message":"?","error_code":"SOMETHING_NEW"}`),
			wantCode: domain.LinkErrorCode("SOMETHING_NEW"),
		},
		{name: "missing success", raw: []byte(`{"message":"hi"}`), wantErr: true},
		{name: "invalid json", raw: []byte(`{"success":`), wantErr: true},
		{name: "nil", raw: nil, wantErr: true},
		{name: "number", raw: int64(1), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := DecodeLinkResponse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeLinkResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}

			_, isLegacy := resp.(LegacyLinkResponse)
			if isLegacy != tt.wantLegacy {
				t.Errorf("legacy = %v, want %v (got %T)", isLegacy, tt.wantLegacy, resp)
			}

			result := resp.Normalize()
			if result.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", result.Success, tt.wantSuccess)
			}
			if result.ErrorCode != tt.wantCode {
				t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, tt.wantCode)
			}
			if result.Warning != tt.wantWarning {
				t.Errorf("Warning = %q, want %q", result.Warning, tt.wantWarning)
			}
		})
	}
}

func TestDecodeLinkResponse_NullDetailsDropped(t *testing.T) {
	resp, err := DecodeLinkResponse([]byte(`{"success":true,"message":"ok","details":null}`))
	if err != nil {
		t.Fatalf("DecodeLinkResponse: %v", err)
	}
	if d := resp.Normalize().Details; d != nil {
		t.Errorf("Details = %s, want nil", d)
	}
}

func TestLegacyFailureMessage(t *testing.T) {
	result := LegacyLinkResponse{Linked: false}.Normalize()
	if result.Message != "legacy link failure" {
		t.Errorf("Message = %q", result.Message)
	}
	if result.UserMessage() != domain.GenericLinkMessage {
		t.Errorf("UserMessage() = %q, want the generic fallback", result.UserMessage())
	}
}

func TestLinker_CallFailureBecomesDatabaseError(t *testing.T) {
	w := newWorld(t)
	tenant := w.addTenant("a@x.com")
	account := w.accounts.add("a@x.com", true)
	w.proc.failWith = errBoom

	result := NewLinker(w.proc, time.Second, discardLogger()).Link(context.Background(), tenant.ID, account.ID)
	if result.Success {
		t.Fatal("Link should fail when the procedure call fails")
	}
	if result.ErrorCode != domain.LinkErrDatabaseError {
		t.Errorf("ErrorCode = %q, want DATABASE_ERROR", result.ErrorCode)
	}
	if result.Message == errBoom.Error() {
		t.Error("raw backend error text must not be carried in the result")
	}
}

func TestLinker_Timeout(t *testing.T) {
	slow := procFunc(func(ctx context.Context, _, _ uuid.UUID) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	result := NewLinker(slow, 10*time.Millisecond, discardLogger()).Link(context.Background(), uuid.New(), uuid.New())
	if result.Success || result.ErrorCode != domain.LinkErrDatabaseError {
		t.Errorf("timeout result = %+v, want DATABASE_ERROR", result)
	}
}

func TestLinker_UnreadableResult(t *testing.T) {
	garbage := procFunc(func(context.Context, uuid.UUID, uuid.UUID) (any, error) {
		return []byte("not json"), nil
	})

	result := NewLinker(garbage, 0, discardLogger()).Link(context.Background(), uuid.New(), uuid.New())
	if result.Success || result.ErrorCode != domain.LinkErrDatabaseError {
		t.Errorf("result = %+v, want DATABASE_ERROR", result)
	}
}

func TestLinker_ProcedureErrorCodes(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	linker := NewLinker(w.proc, time.Second, discardLogger())

	tenant := w.addTenant("a@x.com")
	other := w.addTenant("b@x.com")
	account := w.accounts.add("a@x.com", true)
	intruder := w.accounts.add("b@x.com", true)

	if r := linker.Link(ctx, uuid.New(), account.ID); r.ErrorCode != domain.LinkErrTenantNotFound {
		t.Errorf("unknown tenant code = %q", r.ErrorCode)
	}
	if r := linker.Link(ctx, tenant.ID, uuid.New()); r.ErrorCode != domain.LinkErrUserNotFound {
		t.Errorf("unknown account code = %q", r.ErrorCode)
	}
	if r := linker.Link(ctx, tenant.ID, intruder.ID); r.ErrorCode != domain.LinkErrEmailMismatch || len(r.Details) == 0 {
		t.Errorf("mismatch result = %+v", r)
	}

	if r := linker.Link(ctx, other.ID, intruder.ID); !r.Success {
		t.Fatalf("link other tenant: %+v", r)
	}
	w.tenants.mu.Lock()
	w.tenants.rows[other.ID].Email = "a@x.com"
	w.tenants.mu.Unlock()
	if r := linker.Link(ctx, other.ID, account.ID); r.ErrorCode != domain.LinkErrAlreadyLinkedOtherUser {
		t.Errorf("linked-elsewhere code = %q", r.ErrorCode)
	}
}

type procFunc func(ctx context.Context, tenantID, accountID uuid.UUID) (any, error)

func (f procFunc) Call(ctx context.Context, tenantID, accountID uuid.UUID) (any, error) {
	return f(ctx, tenantID, accountID)
}

func TestLinker_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("linking the same pair twice succeeds both times, second is ALREADY_LINKED", prop.ForAll(
		func(local string, legacy bool) bool {
			w := newWorld(t)
			w.proc.legacy = legacy
			email := local + "@example.com"
			tenant := w.addTenant(email)
			account := w.accounts.add(email, true)
			linker := NewLinker(w.proc, time.Second, discardLogger())

			first := linker.Link(context.Background(), tenant.ID, account.ID)
			second := linker.Link(context.Background(), tenant.ID, account.ID)
			if !first.Success || !second.Success {
				return false
			}
			if legacy {
				return second.Warning == domain.LinkWarnLegacyFormat
			}
			return first.Warning == "" && second.AlreadyLinked()
		},
		gen.RegexMatch("[a-z][a-z0-9]{2,12}"),
		gen.Bool(),
	))

	properties.Property("bare booleans normalize with matching success", prop.ForAll(
		func(linked bool) bool {
			raw := procFunc(func(context.Context, uuid.UUID, uuid.UUID) (any, error) { return linked, nil })
			result := NewLinker(raw, 0, discardLogger()).Link(context.Background(), uuid.New(), uuid.New())
			if result.Success != linked {
				return false
			}
			if linked {
				return result.Warning == domain.LinkWarnLegacyFormat
			}
			return result.Message == "legacy link failure" && result.ErrorCode == ""
		},
		gen.Bool(),
	))

	properties.Property("failed results always map to a fixed user message", prop.ForAll(
		func(code string) bool {
			payload, _ := json.Marshal(map[string]any{"success": false, "message": "backend said " + code, "error_code": code})
			raw := procFunc(func(context.Context, uuid.UUID, uuid.UUID) (any, error) { return payload, nil })
			result := NewLinker(raw, 0, discardLogger()).Link(context.Background(), uuid.New(), uuid.New())

			msg := result.UserMessage()
			if domain.LinkErrorCode(code).Known() {
				return msg == domain.LinkErrorCode(code).UserMessage()
			}
			return msg == domain.GenericLinkMessage
		},
		gen.OneConstOf(
			"TENANT_NOT_FOUND", "USER_NOT_FOUND", "EMAIL_MISMATCH",
			"ALREADY_LINKED_OTHER_USER", "VERIFICATION_FAILED", "DATABASE_ERROR",
			"", "SURPRISE", "constraint violated",
		),
	))

	properties.TestingRun(t)
}
