package invite

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/tenant-invite/pkg/domain"
)

// memInvitations mirrors the invitations repository: one pending row per
// tenant, stale pending rows flipped to expired before inserts.
type memInvitations struct {
	mu   sync.Mutex
	now  func() time.Time
	rows []*domain.Invitation

	failWith error
}

func (s *memInvitations) clone(inv *domain.Invitation) *domain.Invitation {
	c := *inv
	return &c
}

func (s *memInvitations) expireStale(tenantID, keep uuid.UUID) {
	now := s.now()
	for _, inv := range s.rows {
		if inv.TenantID == tenantID && inv.ID != keep && inv.Status == domain.InvitationStatusPending && inv.IsExpired(now) {
			inv.Status = domain.InvitationStatusExpired
			inv.UpdatedAt = now
		}
	}
}

func (s *memInvitations) hasPending(tenantID, except uuid.UUID) bool {
	for _, inv := range s.rows {
		if inv.TenantID == tenantID && inv.ID != except && inv.Status == domain.InvitationStatusPending {
			return true
		}
	}
	return false
}

func (s *memInvitations) Create(ctx context.Context, tenantID uuid.UUID, email, tokenHash string, expiresAt time.Time) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	s.expireStale(tenantID, uuid.Nil)
	if s.hasPending(tenantID, uuid.Nil) {
		return nil, domain.ErrDuplicateActiveInvitation
	}

	now := s.now()
	inv := &domain.Invitation{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Email:     email,
		TokenHash: tokenHash,
		Status:    domain.InvitationStatusPending,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		UpdatedAt: now,
	}
	s.rows = append(s.rows, inv)
	return s.clone(inv), nil
}

func (s *memInvitations) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	now := s.now()
	for i := len(s.rows) - 1; i >= 0; i-- {
		inv := s.rows[i]
		if inv.TenantID == tenantID && inv.IsActive(now) {
			return s.clone(inv), nil
		}
	}
	return nil, domain.ErrInvitationNotFound
}

func (s *memInvitations) FindByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, inv := range s.rows {
		if inv.TokenHash == tokenHash {
			return s.clone(inv), nil
		}
	}
	return nil, domain.ErrInvitationNotFound
}

func (s *memInvitations) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, inv := range s.rows {
		if inv.ID == id {
			return s.clone(inv), nil
		}
	}
	return nil, domain.ErrInvitationNotFound
}

func (s *memInvitations) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InvitationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	for _, inv := range s.rows {
		if inv.ID == id {
			now := s.now()
			inv.Status = status
			inv.UpdatedAt = now
			if status == domain.InvitationStatusAccepted {
				inv.AcceptedAt = &now
			}
			return nil
		}
	}
	return domain.ErrInvitationNotFound
}

func (s *memInvitations) Regenerate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) (*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, inv := range s.rows {
		if inv.ID != id {
			continue
		}
		s.expireStale(inv.TenantID, id)
		if s.hasPending(inv.TenantID, id) {
			return nil, domain.ErrDuplicateActiveInvitation
		}
		inv.TokenHash = tokenHash
		inv.ExpiresAt = expiresAt
		inv.Status = domain.InvitationStatusPending
		inv.AcceptedAt = nil
		inv.UpdatedAt = s.now()
		return s.clone(inv), nil
	}
	return nil, domain.ErrInvitationNotFound
}

func (s *memInvitations) List(ctx context.Context, filter domain.InvitationFilter) ([]*domain.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	now := s.now()
	var out []*domain.Invitation
	// newest first; rows are appended in creation order
	for i := len(s.rows) - 1; i >= 0; i-- {
		inv := s.rows[i]
		if filter.TenantID != nil && inv.TenantID != *filter.TenantID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, inv.EffectiveStatus(now)) {
			continue
		}
		out = append(out, s.clone(inv))
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *memInvitations) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func containsStatus(statuses []domain.InvitationStatus, s domain.InvitationStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

type memTenants struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Tenant

	failWith error
}

func (s *memTenants) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	t, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrTenantNotFound
	}
	c := *t
	return &c, nil
}

func (s *memTenants) GetByIdentityID(ctx context.Context, accountID uuid.UUID) (*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	for _, t := range s.rows {
		if t.IsLinkedTo(accountID) {
			c := *t
			return &c, nil
		}
	}
	return nil, domain.ErrTenantNotFound
}

func (s *memTenants) ListByEmail(ctx context.Context, email string) ([]*domain.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	var out []*domain.Tenant
	for _, t := range s.rows {
		if strings.EqualFold(t.Email, email) {
			c := *t
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].IsLinked() && out[j].IsLinked()
	})
	return out, nil
}

func (s *memTenants) setIdentity(tenantID, accountID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := accountID
	s.rows[tenantID].IdentityID = &id
}

type memAccounts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Account
}

func (s *memAccounts) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (s *memAccounts) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if strings.EqualFold(a.Email, email) {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *memAccounts) add(email string, tenantClass bool) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &domain.Account{
		ID:       uuid.New(),
		Email:    strings.ToLower(email),
		Metadata: domain.AccountMetadata{TenantClass: tenantClass},
	}
	s.rows[a.ID] = a
	return a
}

func (s *memAccounts) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// fakeProvisioner creates accounts in memAccounts with a minimal password rule.
type fakeProvisioner struct {
	accounts *memAccounts
	calls    int
	failWith error
}

func (p *fakeProvisioner) CreateAccount(ctx context.Context, email, password string, metadata domain.AccountMetadata) (uuid.UUID, error) {
	p.calls++
	if p.failWith != nil {
		return uuid.Nil, p.failWith
	}
	if len(password) < 8 {
		return uuid.Nil, domain.ErrWeakCredential
	}
	if _, err := p.accounts.GetByEmail(ctx, email); err == nil {
		return uuid.Nil, domain.ErrEmailAlreadyRegistered
	}
	return p.accounts.add(email, metadata.TenantClass).ID, nil
}

// fakeLinkProcedure mirrors link_tenant_account. With legacy set it returns
// a bare bool instead of the JSON object.
type fakeLinkProcedure struct {
	tenants  *memTenants
	accounts *memAccounts
	legacy   bool
	calls    int
	failWith error
	override *domain.LinkResult
}

func (p *fakeLinkProcedure) Call(ctx context.Context, tenantID, accountID uuid.UUID) (any, error) {
	p.calls++
	if p.failWith != nil {
		return nil, p.failWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := p.override
	if result == nil {
		result = p.link(ctx, tenantID, accountID)
	}
	if p.legacy {
		return result.Success, nil
	}
	return json.Marshal(result)
}

func (p *fakeLinkProcedure) link(ctx context.Context, tenantID, accountID uuid.UUID) *domain.LinkResult {
	tenant, err := p.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return &domain.LinkResult{Message: "tenant not found", ErrorCode: domain.LinkErrTenantNotFound}
	}
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return &domain.LinkResult{Message: "user not found", ErrorCode: domain.LinkErrUserNotFound}
	}
	if !strings.EqualFold(tenant.Email, account.Email) {
		return &domain.LinkResult{
			Message:   "email mismatch",
			ErrorCode: domain.LinkErrEmailMismatch,
			Details:   json.RawMessage(`{"tenant_email":"` + tenant.Email + `","user_email":"` + account.Email + `"}`),
		}
	}
	if tenant.IsLinkedTo(accountID) {
		return &domain.LinkResult{Success: true, Message: "tenant already linked to this user", Warning: domain.LinkWarnAlreadyLinked}
	}
	if tenant.IsLinked() {
		return &domain.LinkResult{Message: "tenant linked to another user", ErrorCode: domain.LinkErrAlreadyLinkedOtherUser}
	}
	if _, err := p.tenants.GetByIdentityID(ctx, accountID); err == nil {
		// unique index on identity_id
		return &domain.LinkResult{Message: "duplicate key value", ErrorCode: domain.LinkErrDatabaseError}
	}
	p.tenants.setIdentity(tenantID, accountID)
	return &domain.LinkResult{Success: true, Message: "tenant linked"}
}

type recordingDispatcher struct {
	mu       sync.Mutex
	sent     []Notification
	failWith error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) last() (Notification, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sent) == 0 {
		return Notification{}, false
	}
	return d.sent[len(d.sent)-1], true
}

// world wires a Manager and Reconciler over in-memory fakes with a manual clock.
type world struct {
	now time.Time

	invitations *memInvitations
	tenants     *memTenants
	accounts    *memAccounts
	provisioner *fakeProvisioner
	proc        *fakeLinkProcedure
	dispatcher  *recordingDispatcher

	manager    *Manager
	reconciler *Reconciler
}

const testOrigin = "https://portal.example.com"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWorld(tb testing.TB) *world {
	tb.Helper()

	w := &world{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return w.now }

	w.invitations = &memInvitations{now: clock}
	w.tenants = &memTenants{rows: make(map[uuid.UUID]*domain.Tenant)}
	w.accounts = &memAccounts{rows: make(map[uuid.UUID]*domain.Account)}
	w.provisioner = &fakeProvisioner{accounts: w.accounts}
	w.proc = &fakeLinkProcedure{tenants: w.tenants, accounts: w.accounts}
	w.dispatcher = &recordingDispatcher{}

	logger := discardLogger()
	linker := NewLinker(w.proc, time.Second, logger)

	w.manager = NewManager(ManagerConfig{
		Invitations: w.invitations,
		Tenants:     w.tenants,
		Accounts:    w.accounts,
		Provisioner: w.provisioner,
		Linker:      linker,
		Issuer:      NewTokenIssuer(domain.InvitationTTL, clock),
		Dispatcher:  w.dispatcher,
		AppOrigin:   testOrigin,
		CallTimeout: time.Second,
		Logger:      logger,
		Now:         clock,
	})
	w.reconciler = NewReconciler(w.accounts, w.tenants, linker, logger)
	return w
}

func (w *world) advance(d time.Duration) {
	w.now = w.now.Add(d)
}

func (w *world) addTenant(email string) *domain.Tenant {
	t := &domain.Tenant{
		ID:         uuid.New(),
		PropertyID: uuid.New(),
		Email:      email,
		Name:       "Tenant " + email,
		CreatedAt:  w.now,
		UpdatedAt:  w.now,
	}
	w.tenants.mu.Lock()
	w.tenants.rows[t.ID] = t
	w.tenants.mu.Unlock()
	c := *t
	return &c
}

func (w *world) tenant(tb testing.TB, id uuid.UUID) *domain.Tenant {
	tb.Helper()
	t, err := w.tenants.GetByID(context.Background(), id)
	if err != nil {
		tb.Fatalf("tenant %s: %v", id, err)
	}
	return t
}

func (w *world) invitation(tb testing.TB, id uuid.UUID) *domain.Invitation {
	tb.Helper()
	inv, err := w.invitations.GetByID(context.Background(), id)
	if err != nil {
		tb.Fatalf("invitation %s: %v", id, err)
	}
	return inv
}

var errBoom = errors.New("boom: connection reset by peer")
