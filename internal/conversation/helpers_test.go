package conversation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/veraclinic/agendabot/internal/registry"
	"github.com/veraclinic/agendabot/internal/scheduling"
	"github.com/veraclinic/agendabot/internal/session"
)

const (
	testUser     = "5511999990000"
	testProvider = "prov-1"
)

var clinicTZ = time.FixedZone("UTC-03:00", -3*3600)

// testNow is 08:00 local on a Monday; with the 6h lead time, slots today
// from 14:00 on are eligible.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, clinicTZ)

type sentMessage struct {
	body    string
	choices []Choice
}

func (m sentMessage) choiceIDs() []string {
	ids := make([]string, 0, len(m.choices))
	for _, c := range m.choices {
		ids = append(ids, c.ID)
	}
	return ids
}

type fakeMessenger struct {
	sent []sentMessage
	err  error
}

func (m *fakeMessenger) SendText(_ context.Context, _, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{body: body})
	return nil
}

func (m *fakeMessenger) SendChoices(_ context.Context, _, body string, choices []Choice) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMessage{body: body, choices: choices})
	return nil
}

func (m *fakeMessenger) last() sentMessage {
	if len(m.sent) == 0 {
		return sentMessage{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMessenger) reset() { m.sent = nil }

type upsertCall struct {
	existingID string
	form       registry.ProfileForm
}

// fakeRegistry is an in-memory patient portal. Upserts materialize a profile
// from the form so post-commit re-validation sees what was written.
type fakeRegistry struct {
	ids      map[string]string
	profiles map[string]*registry.PatientProfile

	findErr    error
	profileErr error
	upsertErr  error
	resetErr   error

	upserts []upsertCall
	resets  []string
	nextID  string

	// mangleOnUpsert, when set, mutates the stored profile after an upsert,
	// simulating a portal that drops or rewrites fields on write.
	mangleOnUpsert func(*registry.PatientProfile)
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		ids:      map[string]string{},
		profiles: map[string]*registry.PatientProfile{},
		nextID:   "pat-new",
	}
}

func (r *fakeRegistry) FindIDByNationalID(_ context.Context, nationalID string) (string, error) {
	if r.findErr != nil {
		return "", r.findErr
	}
	id, ok := r.ids[registry.OnlyDigits(nationalID)]
	if !ok {
		return "", registry.ErrNotFound
	}
	return id, nil
}

func (r *fakeRegistry) GetProfile(_ context.Context, patientID string) (*registry.PatientProfile, error) {
	if r.profileErr != nil {
		return nil, r.profileErr
	}
	p, ok := r.profiles[patientID]
	if !ok {
		return nil, registry.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRegistry) UpsertProfile(_ context.Context, existingID string, form registry.ProfileForm) (string, error) {
	r.upserts = append(r.upserts, upsertCall{existingID: existingID, form: form})
	if r.upsertErr != nil {
		return "", r.upsertErr
	}
	id := existingID
	if id == "" {
		id = r.nextID
	}
	r.ids[form.NationalID] = id
	r.profiles[id] = &registry.PatientProfile{
		PatientID:    id,
		FullName:     form.FullName,
		NationalID:   form.NationalID,
		Email:        form.Email,
		MobileNumber: form.MobileNumber,
		PostalCode:   form.PostalCode,
		Street:       form.Street,
		Number:       form.Number,
		Complement:   form.Complement,
		Neighborhood: form.Neighborhood,
		City:         form.City,
		BirthDate:    form.BirthDate,
		Sex:          form.Sex,
	}
	if r.mangleOnUpsert != nil {
		r.mangleOnUpsert(r.profiles[id])
	}
	return id, nil
}

func (r *fakeRegistry) RequestCredentialReset(_ context.Context, nationalID, _ string) error {
	r.resets = append(r.resets, registry.OnlyDigits(nationalID))
	return r.resetErr
}

type bookingCall struct {
	providerID, patientID, plan, slotID string
}

type fakeAgenda struct {
	slots map[string][]scheduling.RawSlot

	listErr    error
	confirmErr error
	historyErr error

	confirm *scheduling.Confirmation
	history []scheduling.Booking

	listCalls []string
	bookings  []bookingCall
}

func newFakeAgenda() *fakeAgenda {
	return &fakeAgenda{slots: map[string][]scheduling.RawSlot{}}
}

func (a *fakeAgenda) ListSlots(_ context.Context, _, _, date string) ([]scheduling.RawSlot, error) {
	a.listCalls = append(a.listCalls, date)
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.slots[date], nil
}

func (a *fakeAgenda) ConfirmBooking(_ context.Context, providerID, patientID, planCode, slotID string) (*scheduling.Confirmation, error) {
	a.bookings = append(a.bookings, bookingCall{providerID, patientID, planCode, slotID})
	if a.confirmErr != nil {
		return nil, a.confirmErr
	}
	if a.confirm != nil {
		return a.confirm, nil
	}
	return &scheduling.Confirmation{Code: "AG-1"}, nil
}

func (a *fakeAgenda) GetBookingHistory(_ context.Context, _ string) ([]scheduling.Booking, error) {
	if a.historyErr != nil {
		return nil, a.historyErr
	}
	return a.history, nil
}

type harness struct {
	t      *testing.T
	engine *Engine
	store  *session.Store
	mr     *miniredis.Miniredis
	msgr   *fakeMessenger
	reg    *fakeRegistry
	agenda *fakeAgenda
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := session.NewStore(client, 24*time.Hour, nil)
	msgr := &fakeMessenger{}
	reg := newFakeRegistry()
	agenda := newFakeAgenda()
	slots := scheduling.NewEligibility(6*time.Hour, clinicTZ, 10, 3, 3)

	engine := NewEngine(store, reg, agenda, slots, msgr, nil, nil, Options{
		ProviderID:           testProvider,
		ResetKeyword:         "REINICIAR",
		SupportHandoffNumber: "5519933005596",
	})
	engine.now = func() time.Time { return testNow }

	return &harness{
		t:      t,
		engine: engine,
		store:  store,
		mr:     mr,
		msgr:   msgr,
		reg:    reg,
		agenda: agenda,
	}
}

func (h *harness) send(text string) {
	h.t.Helper()
	err := h.engine.HandleEvent(context.Background(), InboundEvent{UserID: testUser, Text: text})
	require.NoError(h.t, err)
}

func saveSession(t *testing.T, h *harness, sess *session.Session) {
	t.Helper()
	require.NoError(t, h.store.Save(context.Background(), testUser, sess))
}

func (h *harness) session() *session.Session {
	h.t.Helper()
	sess, err := h.store.Load(context.Background(), testUser)
	require.NoError(h.t, err)
	require.NotNil(h.t, sess)
	return sess
}

// date returns testNow shifted by days, in wire format.
func testDate(days int) string {
	return testNow.AddDate(0, 0, days).Format(scheduling.DateFormat)
}

// completeRegistryPatient seeds the fake portal with a bookable record.
func (h *harness) completeRegistryPatient(cpf, patientID string) {
	h.reg.ids[cpf] = patientID
	h.reg.profiles[patientID] = &registry.PatientProfile{
		PatientID:    patientID,
		FullName:     "Maria Souza",
		NationalID:   cpf,
		Email:        "maria@example.com",
		MobileNumber: testUser,
		PostalCode:   "13010200",
		Street:       "Rua das Flores",
		Number:       "100",
		Complement:   "Apto 12 REGION:SP",
		Neighborhood: "Centro",
		City:         "Campinas",
		BirthDate:    "1960-05-01",
	}
}

// seedSlots gives a date n bookable afternoon slots (15:00, 15:30, ...),
// all past the lead time at testNow.
func (h *harness) seedSlots(date string, n int) {
	var raw []scheduling.RawSlot
	for i := 0; i < n; i++ {
		raw = append(raw, scheduling.RawSlot{
			ID:       fmt.Sprintf("%s-s%d", date, i+1),
			Time:     fmt.Sprintf("%02d:%02d", 15+i/2, 30*(i%2)),
			Bookable: true,
		})
	}
	h.agenda.slots[date] = raw
}

// startBookingFromMenu drives the conversation from the main menu to the
// point where the CPF is requested.
func (h *harness) startBookingFromMenu() {
	h.t.Helper()
	h.send("oi")      // greeting shows the menu
	h.send("2")       // convênios
	h.send("5")       // MedSênior
	h.send("1")       // iniciar agendamento
	require.Equal(h.t, session.StateWizardNationalID, h.session().State)
	h.msgr.reset()
}
