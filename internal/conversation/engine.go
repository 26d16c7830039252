package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/veraclinic/agendabot/internal/observability/metrics"
	"github.com/veraclinic/agendabot/internal/registry"
	"github.com/veraclinic/agendabot/internal/scheduling"
	"github.com/veraclinic/agendabot/internal/session"
	"github.com/veraclinic/agendabot/pkg/logging"
)

// helpKeyword is recognized from any state and routes to the human hand-off.
const helpKeyword = "AJUDA"

// Options configures the engine.
type Options struct {
	// ProviderID is the scheduling provider every booking is made against.
	ProviderID string
	// ResetKeyword, when non-empty, wipes the session from any state.
	ResetKeyword string
	// SupportHandoffNumber is the WhatsApp number of the human support
	// channel, used to build pre-filled hand-off links.
	SupportHandoffNumber string
}

// Engine is the top-level conversation state machine. It is invoked once per
// inbound event, synchronously to completion; all per-user state lives in
// the session store, so instances are interchangeable.
type Engine struct {
	sessions  *session.Store
	registry  registry.Client
	agenda    scheduling.Client
	slots     *scheduling.Eligibility
	messenger Messenger
	metrics   *metrics.ConversationMetrics
	logger    *logging.Logger
	opts      Options

	// now is swappable for tests.
	now func() time.Time

	handlers map[session.State]handlerFunc
}

// flow bundles the per-event mutable state threaded through handlers.
type flow struct {
	userID string
	raw    string
	sess   *session.Session
}

type handlerFunc func(ctx context.Context, f *flow, input string) error

// NewEngine wires the state machine with its collaborators.
func NewEngine(
	sessions *session.Store,
	registryClient registry.Client,
	agendaClient scheduling.Client,
	slots *scheduling.Eligibility,
	messenger Messenger,
	m *metrics.ConversationMetrics,
	logger *logging.Logger,
	opts Options,
) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		sessions:  sessions,
		registry:  registryClient,
		agenda:    agendaClient,
		slots:     slots,
		messenger: messenger,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
	e.handlers = map[session.State]handlerFunc{
		session.StateMain:               e.handleMain,
		session.StatePrivatePayInfo:     e.handlePrivatePay,
		session.StateInsuranceMenu:      e.handleInsuranceMenu,
		session.StateInsuranceDetail:    e.handleInsuranceDetail,
		session.StateNamedPlan:          e.handleNamedPlan,
		session.StatePostOpMenu:         e.handlePostOpMenu,
		session.StatePostOpRecent:       e.handlePostOpRecent,
		session.StatePostOpLate:         e.handlePostOpLate,
		session.StateAgent:              e.handleHandoff,
		session.StateAwaitingHelpReason: e.handleHandoff,

		session.StateWizardNationalID:   e.handleWizardNationalID,
		session.StateWizardName:         e.handleWizardField,
		session.StateWizardBirthDate:    e.handleWizardField,
		session.StateWizardSex:          e.handleWizardField,
		session.StateWizardPlan:         e.handleWizardField,
		session.StateWizardEmail:        e.handleWizardField,
		session.StateWizardPostalCode:   e.handleWizardField,
		session.StateWizardStreet:       e.handleWizardField,
		session.StateWizardNumber:       e.handleWizardField,
		session.StateWizardComplement:   e.handleWizardField,
		session.StateWizardNeighborhood: e.handleWizardField,
		session.StateWizardCity:         e.handleWizardField,
		session.StateWizardRegion:       e.handleWizardField,

		session.StateAwaitingDateChoice:       e.handleDateChoice,
		session.StateAwaitingSlotChoice:       e.handleSlotChoice,
		session.StateAwaitingSlotConfirmation: e.handleSlotConfirmation,
	}
	return e
}

// HandleEvent runs one inbound event through the machine and persists the
// session exactly once, after every emission for the event was attempted.
func (e *Engine) HandleEvent(ctx context.Context, ev InboundEvent) error {
	started := time.Now()

	sess, err := e.sessions.Load(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("conversation: load session: %w", err)
	}
	if sess == nil {
		sess = session.New(e.now())
	}
	entryState := sess.State
	if ev.RoutingHint != "" {
		sess.ChannelRouting = ev.RoutingHint
	}
	sess.LastActivityAt = e.now()

	f := &flow{userID: ev.UserID, raw: ev.Text, sess: sess}
	input := normalizeInput(ev.Text)

	outcome := "ok"
	if err := e.dispatch(ctx, f, input); err != nil {
		outcome = "error"
		e.logger.Error("event handling failed",
			"user_id", ev.UserID,
			"state", string(entryState),
			"error", err,
		)
	}

	if err := e.sessions.Save(ctx, ev.UserID, sess); err != nil {
		return fmt.Errorf("conversation: persist session: %w", err)
	}

	e.metrics.ObserveInbound(string(entryState), outcome)
	e.metrics.ObserveEventLatency(string(entryState), time.Since(started).Seconds())
	return nil
}

// dispatch applies the fixed transition precedence: reset keyword, help
// keyword, then the current state's handler.
func (e *Engine) dispatch(ctx context.Context, f *flow, input string) error {
	if e.opts.ResetKeyword != "" && input == normalizeInput(e.opts.ResetKeyword) {
		f.sess.Reset(e.now())
		return e.sendText(ctx, f, msgMenu)
	}
	if input == helpKeyword {
		f.sess.State = session.StateAwaitingHelpReason
		return e.sendText(ctx, f, msgAjudaPrompt)
	}
	if h, ok := e.handlers[f.sess.State]; ok {
		return h(ctx, f, input)
	}
	// A stored state outside the known set means the schema moved under an
	// old session. Start the user over.
	e.logger.Warn("unknown session state, resetting", "user_id", f.userID, "state", string(f.sess.State))
	f.sess.Reset(e.now())
	return e.sendText(ctx, f, msgMenu)
}

// toMain abandons any sub-flow and shows the main menu.
func (e *Engine) toMain(ctx context.Context, f *flow) error {
	f.sess.Reset(e.now())
	return e.sendText(ctx, f, msgMenu)
}

// fallback implements the shared tail of every menu state: an unrecognized
// digit re-displays the state's own menu, anything else goes back to MAIN.
func (e *Engine) fallback(ctx context.Context, f *flow, input, menu string) error {
	if isDigits(input) {
		return e.sendText(ctx, f, menu)
	}
	return e.toMain(ctx, f)
}

func (e *Engine) handleMain(ctx context.Context, f *flow, input string) error {
	switch input {
	case "1":
		f.sess.State = session.StatePrivatePayInfo
		return e.sendText(ctx, f, msgParticular)
	case "2":
		f.sess.State = session.StateInsuranceMenu
		return e.sendText(ctx, f, msgConvenios)
	case "3":
		f.sess.State = session.StatePostOpMenu
		return e.sendText(ctx, f, msgPosMenu)
	case "4":
		f.sess.State = session.StateAgent
		return e.sendText(ctx, f, msgAtendente)
	}
	return e.fallback(ctx, f, input, msgMenu)
}

func (e *Engine) handlePrivatePay(ctx context.Context, f *flow, input string) error {
	switch input {
	case "1":
		f.sess.State = session.StateMain
		if err := e.sendText(ctx, f, msgLinkAgendamento); err != nil {
			return err
		}
		return e.sendText(ctx, f, msgMenu)
	case "0":
		return e.toMain(ctx, f)
	}
	return e.fallback(ctx, f, input, msgParticular)
}

func (e *Engine) handleInsuranceMenu(ctx context.Context, f *flow, input string) error {
	if entry, ok := insuranceLines[input]; ok {
		f.sess.State = session.StateInsuranceDetail
		f.sess.PlanDetail = entry.Plan
		return e.sendText(ctx, f, msgConvenioNaoAgenda(entry.Line))
	}
	switch input {
	case "5":
		f.sess.State = session.StateNamedPlan
		return e.sendText(ctx, f, msgMedSenior)
	case "0":
		return e.toMain(ctx, f)
	}
	return e.fallback(ctx, f, input, msgConvenios)
}

func (e *Engine) handleInsuranceDetail(ctx context.Context, f *flow, input string) error {
	switch input {
	case "9":
		f.sess.State = session.StatePrivatePayInfo
		f.sess.PlanDetail = ""
		return e.sendText(ctx, f, msgParticular)
	case "0":
		f.sess.State = session.StateInsuranceMenu
		f.sess.PlanDetail = ""
		return e.sendText(ctx, f, msgConvenios)
	}
	return e.fallback(ctx, f, input, e.insuranceDetailMenu(f))
}

func (e *Engine) insuranceDetailMenu(f *flow) string {
	for _, entry := range insuranceLines {
		if entry.Plan == f.sess.PlanDetail {
			return msgConvenioNaoAgenda(entry.Line)
		}
	}
	return msgConvenios
}

func (e *Engine) handleNamedPlan(ctx context.Context, f *flow, input string) error {
	switch input {
	case "1":
		f.sess.Portal = &session.PortalWizardContext{
			Form: registry.ProfileForm{
				Plan:         string(session.PlanMedSenior),
				MobileNumber: f.userID,
			},
		}
		f.sess.State = session.StateWizardNationalID
		return e.sendText(ctx, f, msgAskNationalID)
	case "0":
		f.sess.State = session.StateInsuranceMenu
		return e.sendText(ctx, f, msgConvenios)
	}
	return e.fallback(ctx, f, input, msgMedSenior)
}

func (e *Engine) handlePostOpMenu(ctx context.Context, f *flow, input string) error {
	switch input {
	case "1":
		f.sess.State = session.StatePostOpRecent
		return e.sendText(ctx, f, msgPosRecente)
	case "2":
		f.sess.State = session.StatePostOpLate
		return e.sendText(ctx, f, msgPosTardio)
	case "0":
		return e.toMain(ctx, f)
	}
	return e.fallback(ctx, f, input, msgPosMenu)
}

func (e *Engine) handlePostOpRecent(ctx context.Context, f *flow, input string) error {
	if input == "0" {
		return e.toMain(ctx, f)
	}
	return e.fallback(ctx, f, input, msgPosRecente)
}

func (e *Engine) handlePostOpLate(ctx context.Context, f *flow, input string) error {
	switch input {
	case "1":
		f.sess.State = session.StatePrivatePayInfo
		return e.sendText(ctx, f, msgParticular)
	case "2":
		f.sess.State = session.StateInsuranceMenu
		return e.sendText(ctx, f, msgConvenios)
	case "0":
		return e.toMain(ctx, f)
	}
	return e.fallback(ctx, f, input, msgPosTardio)
}

// handleHandoff treats any input as the free-text description of what the
// user needs and routes them to the human channel with a pre-filled link.
func (e *Engine) handleHandoff(ctx context.Context, f *flow, _ string) error {
	reason := strings.TrimSpace(f.raw)
	f.sess.State = session.StateMain
	if err := e.sendText(ctx, f, msgHandoff(e.opts.SupportHandoffNumber, reason)); err != nil {
		return err
	}
	return e.sendText(ctx, f, msgMenu)
}

func (e *Engine) sendText(ctx context.Context, f *flow, body string) error {
	if err := e.messenger.SendText(ctx, f.userID, body); err != nil {
		e.metrics.ObserveOutbound("text", "error")
		return fmt.Errorf("conversation: send text: %w", err)
	}
	e.metrics.ObserveOutbound("text", "ok")
	return nil
}

func (e *Engine) sendChoices(ctx context.Context, f *flow, body string, choices []Choice) error {
	if err := e.messenger.SendChoices(ctx, f.userID, body, choices); err != nil {
		e.metrics.ObserveOutbound("choices", "error")
		return fmt.Errorf("conversation: send choices: %w", err)
	}
	e.metrics.ObserveOutbound("choices", "ok")
	return nil
}
