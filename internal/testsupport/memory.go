// Package testsupport holds in-memory stores for handler and router tests.
// They mirror the Postgres repositories' contracts, including the atomic
// approve-and-credit and the guarded campaign insert.
package testsupport

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gloads/portal/internal/auth"
	"github.com/gloads/portal/internal/campaigns"
	"github.com/gloads/portal/internal/models"
	"github.com/gloads/portal/internal/payments"
	"github.com/gloads/portal/internal/reach"
	"github.com/gloads/portal/pkg/queue"
	"github.com/gloads/portal/pkg/storage"
)

// DB is one in-memory database shared by every store, guarded by a single lock
// so that approvals and campaign guards see consistent wallets.
type DB struct {
	mu          sync.Mutex
	advertisers map[uuid.UUID]*models.Advertiser
	wallets     map[uuid.UUID]*models.WalletStats
	requests    map[uuid.UUID]*models.PaymentRequest
	campaigns   map[uuid.UUID]*models.Campaign
	clock       time.Time
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		advertisers: map[uuid.UUID]*models.Advertiser{},
		wallets:     map[uuid.UUID]*models.WalletStats{},
		requests:    map[uuid.UUID]*models.PaymentRequest{},
		campaigns:   map[uuid.UUID]*models.Campaign{},
		clock:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// now returns strictly increasing timestamps so newest-first ordering is stable.
func (db *DB) now() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

// Advertisers returns the auth.Store view.
func (db *DB) Advertisers() *Advertisers { return &Advertisers{db: db} }

// Payments returns the payments.Store view.
func (db *DB) Payments() *Payments { return &Payments{db: db} }

// Campaigns returns the campaigns.Store view.
func (db *DB) Campaigns() *Campaigns { return &Campaigns{db: db} }

// Wallets returns the wallet reader view.
func (db *DB) Wallets() *Wallets { return &Wallets{db: db} }

// Advertisers implements auth.Store.
type Advertisers struct{ db *DB }

func (s *Advertisers) Create(_ context.Context, p auth.CreateParams) (*models.Advertiser, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range s.db.advertisers {
		if a.Handle == p.Handle {
			return nil, auth.ErrHandleTaken
		}
	}
	role := p.Role
	if role == "" {
		role = models.RoleAdvertiser
	}
	now := s.db.now()
	a := &models.Advertiser{
		ID:           uuid.New(),
		Handle:       p.Handle,
		BusinessName: p.BusinessName,
		FullName:     p.FullName,
		Email:        p.Email,
		Phone:        p.Phone,
		Password:     p.PasswordHash,
		Role:         role,
		Status:       models.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.db.advertisers[a.ID] = a
	cp := *a
	return &cp, nil
}

func (s *Advertisers) GetByID(_ context.Context, id uuid.UUID) (*models.Advertiser, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.advertisers[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Advertisers) GetByHandle(_ context.Context, handle string) (*models.Advertiser, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, a := range s.db.advertisers {
		if a.Handle == handle {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Advertisers) List(_ context.Context) ([]models.AdvertiserPublic, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	list := []models.AdvertiserPublic{}
	for _, a := range s.db.advertisers {
		list = append(list, a.ToPublic())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (s *Advertisers) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.advertisers[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Password = passwordHash
	a.UpdatedAt = s.db.now()
	return nil
}

func (s *Advertisers) SetRole(_ context.Context, id uuid.UUID, role models.Role) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.advertisers[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.Role = role
	return nil
}

func (s *Advertisers) SetStatus(_ context.Context, id uuid.UUID, status string) (*models.AdvertiserPublic, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	a, ok := s.db.advertisers[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = s.db.now()
	pub := a.ToPublic()
	return &pub, nil
}

// Wallets reads balances.
type Wallets struct{ db *DB }

func (s *Wallets) Get(_ context.Context, advertiserID uuid.UUID) (*models.WalletStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if w, ok := s.db.wallets[advertiserID]; ok {
		cp := *w
		return &cp, nil
	}
	return &models.WalletStats{AdvertiserID: advertiserID}, nil
}

// Seed credits a wallet directly.
func (s *Wallets) Seed(advertiserID uuid.UUID, amount int64) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.credit(advertiserID, amount)
}

func (db *DB) credit(advertiserID uuid.UUID, amount int64) *models.WalletStats {
	w, ok := db.wallets[advertiserID]
	if !ok {
		w = &models.WalletStats{AdvertiserID: advertiserID}
		db.wallets[advertiserID] = w
	}
	w.Balance += amount
	w.TotalDeposited += amount
	w.UpdatedAt = db.now()
	cp := *w
	return &cp
}

// Payments implements payments.Store.
type Payments struct{ db *DB }

func (s *Payments) Create(_ context.Context, p payments.CreateParams) (*models.PaymentRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, r := range s.db.requests {
		if r.TransactionRef == p.TransactionRef && r.Status != models.PaymentStatusRejected {
			return nil, fmt.Errorf("%w: %s", payments.ErrDuplicateReference, p.TransactionRef)
		}
	}
	now := s.db.now()
	r := &models.PaymentRequest{
		ID:               uuid.New(),
		AdvertiserID:     p.AdvertiserID,
		AdvertiserHandle: p.AdvertiserHandle,
		AdvertiserEmail:  p.AdvertiserEmail,
		AdvertiserName:   p.AdvertiserName,
		Amount:           p.Amount,
		TransactionRef:   p.TransactionRef,
		UPIID:            p.UPIID,
		Status:           models.PaymentStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	s.db.requests[r.ID] = r
	cp := *r
	return &cp, nil
}

func (s *Payments) GetByID(_ context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.requests[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Payments) list(match func(*models.PaymentRequest) bool) []models.PaymentRequest {
	list := []models.PaymentRequest{}
	for _, r := range s.db.requests {
		if match(r) {
			list = append(list, *r)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func (s *Payments) ListByAdvertiser(_ context.Context, advertiserID uuid.UUID) ([]models.PaymentRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.list(func(r *models.PaymentRequest) bool { return r.AdvertiserID == advertiserID }), nil
}

func (s *Payments) List(_ context.Context, status string) ([]models.PaymentRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.list(func(r *models.PaymentRequest) bool { return status == "" || r.Status == status }), nil
}

func (s *Payments) pending(id uuid.UUID) (*models.PaymentRequest, error) {
	r, ok := s.db.requests[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	if r.Status != models.PaymentStatusPending {
		return nil, payments.ErrNotPending
	}
	return r, nil
}

func (s *Payments) Approve(_ context.Context, id, adminID uuid.UUID) (*models.PaymentRequest, *models.WalletStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, err := s.pending(id)
	if err != nil {
		return nil, nil, err
	}
	now := s.db.now()
	r.Status = models.PaymentStatusApproved
	r.ApprovedAt = &now
	r.ApprovedBy = &adminID
	r.UpdatedAt = now
	w := s.db.credit(r.AdvertiserID, r.Amount)
	cp := *r
	return &cp, w, nil
}

func (s *Payments) Reject(_ context.Context, id uuid.UUID, reason string) (*models.PaymentRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, err := s.pending(id)
	if err != nil {
		return nil, err
	}
	now := s.db.now()
	r.Status = models.PaymentStatusRejected
	r.RejectReason = reason
	r.RejectedAt = &now
	r.UpdatedAt = now
	cp := *r
	return &cp, nil
}

func (s *Payments) Delete(_ context.Context, id uuid.UUID) (*models.PaymentRequest, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	r, ok := s.db.requests[id]
	if !ok {
		return nil, payments.ErrNotFound
	}
	delete(s.db.requests, id)
	cp := *r
	return &cp, nil
}

// Campaigns implements campaigns.Store and the worker's campaign store.
type Campaigns struct{ db *DB }

func (s *Campaigns) Create(_ context.Context, p campaigns.CreateParams) (*models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var balance int64
	if w, ok := s.db.wallets[p.AdvertiserID]; ok {
		balance = w.Balance
	}
	if !campaigns.CanAfford(balance, p.Budget) {
		return nil, fmt.Errorf("%w: balance %d, budget %d", campaigns.ErrInsufficientBalance, balance, p.Budget)
	}
	now := s.db.now()
	c := &models.Campaign{
		ID:           uuid.New(),
		AdvertiserID: p.AdvertiserID,
		Title:        p.Title,
		TargetURL:    p.TargetURL,
		VideoURL:     p.VideoURL,
		VideoKey:     p.VideoKey,
		Placement:    p.Placement,
		Budget:       p.Budget,
		Reach:        p.Reach,
		Status:       models.CampaignStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.db.campaigns[c.ID] = c
	cp := *c
	return &cp, nil
}

func (s *Campaigns) GetByID(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok {
		return nil, campaigns.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Campaigns) list(match func(*models.Campaign) bool) []models.Campaign {
	list := []models.Campaign{}
	for _, c := range s.db.campaigns {
		if match(c) {
			list = append(list, *c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list
}

func (s *Campaigns) ListByAdvertiser(_ context.Context, advertiserID uuid.UUID) ([]models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.list(func(c *models.Campaign) bool { return c.AdvertiserID == advertiserID }), nil
}

func (s *Campaigns) List(_ context.Context, status string) ([]models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.list(func(c *models.Campaign) bool { return status == "" || c.Status == status }), nil
}

func (s *Campaigns) UpdateStatus(_ context.Context, id uuid.UUID, status string) (*models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok {
		return nil, campaigns.ErrNotFound
	}
	if c.Status != models.CampaignStatusPending {
		return nil, campaigns.ErrNotPending
	}
	c.Status = status
	c.UpdatedAt = s.db.now()
	cp := *c
	return &cp, nil
}

func (s *Campaigns) AddViews(_ context.Context, id uuid.UUID, count int64) (*models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok {
		return nil, campaigns.ErrNotFound
	}
	c.Views += count
	c.Spend = reach.Spend(c.Budget, c.Views)
	c.UpdatedAt = s.db.now()
	cp := *c
	return &cp, nil
}

func (s *Campaigns) SetVideo(_ context.Context, id uuid.UUID, videoURL, videoKey string) (*models.Campaign, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.campaigns[id]
	if !ok {
		return nil, campaigns.ErrNotFound
	}
	c.VideoURL = videoURL
	c.VideoKey = videoKey
	c.UpdatedAt = s.db.now()
	cp := *c
	return &cp, nil
}

// Notification is one recorded Notify call.
type Notification struct {
	Event   string
	Payload interface{}
	Topics  []string
}

// Notifier records events instead of publishing them.
type Notifier struct {
	mu     sync.Mutex
	events []Notification
}

func (n *Notifier) Notify(_ context.Context, event string, payload interface{}, topics ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Notification{Event: event, Payload: payload, Topics: topics})
}

// Events returns the recorded notifications.
func (n *Notifier) Events() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.events...)
}

// Names returns the recorded event names in order.
func (n *Notifier) Names() []string {
	var names []string
	for _, e := range n.Events() {
		names = append(names, e.Event)
	}
	return names
}

// Jobs records enqueued background jobs.
type Jobs struct {
	mu      sync.Mutex
	Imports []queue.VideoImportPayload
	Resets  []queue.PasswordResetEmailPayload
	Err     error
}

func (j *Jobs) EnqueueVideoImport(_ context.Context, p queue.VideoImportPayload) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Err != nil {
		return j.Err
	}
	j.Imports = append(j.Imports, p)
	return nil
}

func (j *Jobs) EnqueuePasswordResetEmail(_ context.Context, p queue.PasswordResetEmailPayload) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Err != nil {
		return j.Err
	}
	j.Resets = append(j.Resets, p)
	return nil
}

// LastReset returns the most recent reset mail payload.
func (j *Jobs) LastReset() (queue.PasswordResetEmailPayload, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.Resets) == 0 {
		return queue.PasswordResetEmailPayload{}, false
	}
	return j.Resets[len(j.Resets)-1], true
}

// Videos is an in-memory object store for uploaded ad videos.
type Videos struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

// NewVideos creates an empty store.
func NewVideos() *Videos { return &Videos{Objects: map[string][]byte{}} }

// Put stores an object directly.
func (v *Videos) Put(key string, body []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.Objects[key] = body
}

// PublicObjectURL mirrors the S3 virtual-hosted URL shape.
func (v *Videos) PublicObjectURL(key string) string {
	return "https://videos.test.s3.amazonaws.com/" + strings.TrimPrefix(key, "/")
}

func (v *Videos) UploadVideo(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	v.Put(key, data)
	return v.PublicObjectURL(key), nil
}

func (v *Videos) VideoExists(_ context.Context, key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.Objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	return nil
}

func (v *Videos) GeneratePresignedUploadURL(_ context.Context, key, contentType string, size int64) (string, error) {
	return fmt.Sprintf("%s?X-Amz-Signature=test&content-type=%s&content-length=%d", v.PublicObjectURL(key), contentType, size), nil
}

func (v *Videos) PresignExpire() time.Duration { return 15 * time.Minute }
