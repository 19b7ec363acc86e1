package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"mailsprint/mailer"
	"mailsprint/models"
	"mailsprint/store"
)

// fakeStore is an in-memory Store with the same JSON round-trip semantics
// as the Redis-backed one: records are stored serialized, lists come back
// in creation order, secondary lookups only see explicitly indexed records.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]map[string][]byte
	order   map[string][]string
	indexes map[string][]string
	claims  map[string]bool

	// failCreates[kind] > 0 makes the next Create of that kind fail,
	// decrementing per attempt.
	failCreates map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:     make(map[string]map[string][]byte),
		order:       make(map[string][]string),
		indexes:     make(map[string][]string),
		claims:      make(map[string]bool),
		failCreates: make(map[string]int),
	}
}

func indexKey(kind, field, value string) string {
	return kind + "/" + field + "/" + value
}

func (s *fakeStore) Create(_ context.Context, kind string, e store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failCreates[kind] > 0 {
		s.failCreates[kind]--
		return fmt.Errorf("injected create failure for %s", kind)
	}

	s.seq++
	meta := e.Meta()
	meta.ID = fmt.Sprintf("%s-%d", kind, s.seq)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
	meta.CreatedAt = ts
	meta.UpdatedAt = ts

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if s.records[kind] == nil {
		s.records[kind] = make(map[string][]byte)
	}
	s.records[kind][meta.ID] = raw
	s.order[kind] = append(s.order[kind], meta.ID)
	return nil
}

func (s *fakeStore) Get(_ context.Context, kind, id string, dest store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.records[kind][id]
	if !ok {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, dest)
}

func (s *fakeStore) Update(_ context.Context, kind, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.records[kind][id]
	if !ok {
		return store.ErrNotFound
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	for k, v := range fields {
		m[k] = v
	}
	m["updated_at"] = time.Now().UTC()
	merged, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.records[kind][id] = merged
	return nil
}

func (s *fakeStore) List(_ context.Context, kind string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeList(kind, s.order[kind], dest)
}

func (s *fakeStore) ListByField(_ context.Context, kind, field, value string, dest interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeList(kind, s.indexes[indexKey(kind, field, value)], dest)
}

func (s *fakeStore) decodeList(kind string, ids []string, dest interface{}) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	for _, id := range ids {
		raw, ok := s.records[kind][id]
		if !ok {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
		n++
	}
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), dest)
}

func (s *fakeStore) IndexByField(_ context.Context, kind, id, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := indexKey(kind, field, value)
	for _, existing := range s.indexes[key] {
		if existing == id {
			return nil
		}
	}
	s.indexes[key] = append(s.indexes[key], id)
	return nil
}

func (s *fakeStore) Incr(_ context.Context, kind, id, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.records[kind][id]
	if !ok {
		return store.ErrNotFound
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	cur, _ := m[field].(float64)
	m[field] = cur + float64(delta)
	merged, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.records[kind][id] = merged
	return nil
}

func (s *fakeStore) Claim(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claims[name] {
		return false, nil
	}
	s.claims[name] = true
	return true, nil
}

func (s *fakeStore) Release(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, name)
	return nil
}

// fakeTransport records messages and fails on demand per recipient.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFor: make(map[string]string)}
}

func (t *fakeTransport) Send(_ context.Context, _ mailer.Connection, msg mailer.Message) mailer.Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	if reason, ok := t.failFor[msg.To]; ok {
		return mailer.Result{Success: false, Err: reason}
	}
	t.sent = append(t.sent, msg)
	return mailer.Result{Success: true, MessageID: fmt.Sprintf("out-%d@fake.test", len(t.sent))}
}

func (t *fakeTransport) sentTo() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var to []string
	for _, m := range t.sent {
		to = append(to, m.To)
	}
	return to
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fixture wires a dispatcher against the fakes and offers seed helpers
// that index records the way the API layer does.
type fixture struct {
	ctx        context.Context
	store      *fakeStore
	transport  *fakeTransport
	dispatcher *Dispatcher
}

func newFixture() *fixture {
	st := newFakeStore()
	tr := newFakeTransport()
	return &fixture{
		ctx:        context.Background(),
		store:      st,
		transport:  tr,
		dispatcher: NewDispatcher(st, tr, testLogger(), "https://track.test", ""),
	}
}

func (f *fixture) seedAccount() models.SendingAccount {
	account := models.SendingAccount{
		EmailAddress: "outreach@sender.test",
		DisplayName:  "Outreach",
		Status:       models.AccountStatusActive,
		SMTPHost:     "smtp.sender.test",
		SMTPPort:     587,
	}
	if err := f.store.Create(f.ctx, store.KindAccounts, &account); err != nil {
		panic(err)
	}
	return account
}

func (f *fixture) seedCampaign(accountID, leadListID string, limit int) models.Campaign {
	campaign := models.Campaign{
		Name:             "Launch",
		Status:           models.CampaignStatusActive,
		SendingAccountID: accountID,
		LeadListID:       leadListID,
		DailySendLimit:   limit,
	}
	if err := f.store.Create(f.ctx, store.KindCampaigns, &campaign); err != nil {
		panic(err)
	}
	return campaign
}

func (f *fixture) seedStep(campaignID string, number int, subject, body string) models.SequenceStep {
	step := models.SequenceStep{
		CampaignID: campaignID,
		StepNumber: number,
		Subject:    subject,
		Body:       body,
	}
	if err := f.store.Create(f.ctx, store.KindSequences, &step); err != nil {
		panic(err)
	}
	if err := f.store.IndexByField(f.ctx, store.KindSequences, step.ID, "campaign_id", campaignID); err != nil {
		panic(err)
	}
	return step
}

func (f *fixture) seedLeadList() models.LeadList {
	list := models.LeadList{Name: "Prospects"}
	if err := f.store.Create(f.ctx, store.KindLeadLists, &list); err != nil {
		panic(err)
	}
	return list
}

func (f *fixture) seedLead(leadListID, email, firstName string) models.Lead {
	lead := models.Lead{
		LeadListID: leadListID,
		Email:      email,
		FirstName:  firstName,
		Status:     models.LeadStatusActive,
	}
	if err := f.store.Create(f.ctx, store.KindLeads, &lead); err != nil {
		panic(err)
	}
	if err := f.store.IndexByField(f.ctx, store.KindLeads, lead.ID, "lead_list_id", leadListID); err != nil {
		panic(err)
	}
	return lead
}

// seedReadyCampaign builds an active campaign with one step and n active leads.
func (f *fixture) seedReadyCampaign(limit, leads int) (models.Campaign, []models.Lead) {
	account := f.seedAccount()
	list := f.seedLeadList()
	campaign := f.seedCampaign(account.ID, list.ID, limit)
	f.seedStep(campaign.ID, 1, "Hi {{first_name}}", "Hello {{first_name}} from {{company}}")
	var seeded []models.Lead
	for i := 0; i < leads; i++ {
		seeded = append(seeded, f.seedLead(list.ID, fmt.Sprintf("lead%d@corp.test", i+1), fmt.Sprintf("Lead%d", i+1)))
	}
	return campaign, seeded
}
