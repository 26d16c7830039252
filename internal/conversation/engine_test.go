package conversation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veraclinic/agendabot/internal/session"
)

func TestFirstContactShowsMenu(t *testing.T) {
	h := newHarness(t)

	h.send("oi, bom dia!")

	assert.Equal(t, session.StateMain, h.session().State)
	assert.Equal(t, msgMenu, h.msgr.last().body)
}

func TestMainMenuNavigation(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantState session.State
		wantBody  string
	}{
		{"private pay", "1", session.StatePrivatePayInfo, msgParticular},
		{"insurance", "2", session.StateInsuranceMenu, msgConvenios},
		{"post op", "3", session.StatePostOpMenu, msgPosMenu},
		{"agent", "4", session.StateAgent, msgAtendente},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.send("oi")
			h.send(tt.input)

			assert.Equal(t, tt.wantState, h.session().State)
			assert.Equal(t, tt.wantBody, h.msgr.last().body)
		})
	}
}

func TestUnrecognizedDigitRedisplaysMenu(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("7")

	assert.Equal(t, session.StateMain, h.session().State)
	assert.Equal(t, msgMenu, h.msgr.last().body)
}

func TestFreeTextInSubMenuFallsBackToMain(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("2")
	require.Equal(t, session.StateInsuranceMenu, h.session().State)

	h.send("quero falar sobre outra coisa")

	assert.Equal(t, session.StateMain, h.session().State)
	assert.Equal(t, msgMenu, h.msgr.last().body)
}

func TestResetKeywordWipesSessionFromAnyState(t *testing.T) {
	h := newHarness(t)
	h.startBookingFromMenu()
	require.Equal(t, session.StateWizardNationalID, h.session().State)

	h.send("reiniciar")

	sess := h.session()
	assert.Equal(t, session.StateMain, sess.State)
	assert.Nil(t, sess.Portal)
	assert.Equal(t, msgMenu, h.msgr.last().body)
}

func TestHelpKeywordFromAnyState(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("1") // private pay info
	h.send("ajuda")

	assert.Equal(t, session.StateAwaitingHelpReason, h.session().State)
	assert.Equal(t, msgAjudaPrompt, h.msgr.last().body)
}

func TestHelpReasonBuildsHandoffLink(t *testing.T) {
	h := newHarness(t)
	h.send("ajuda")
	h.msgr.reset()

	h.send("não consigo abrir o link")

	require.Len(t, h.msgr.sent, 2)
	handoff := h.msgr.sent[0].body
	assert.Contains(t, handoff, "https://wa.me/5519933005596")
	assert.Contains(t, handoff, "text=")
	assert.Equal(t, msgMenu, h.msgr.sent[1].body)
	assert.Equal(t, session.StateMain, h.session().State)
}

func TestAgentFlowAcceptsFreeText(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("4")
	require.Equal(t, session.StateAgent, h.session().State)
	h.msgr.reset()

	h.send("preciso remarcar por telefone")

	assert.Equal(t, session.StateMain, h.session().State)
	assert.Contains(t, h.msgr.sent[0].body, "wa.me")
}

func TestInsuranceMenuNonBookablePlan(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("2")
	h.send("1") // GoCare

	sess := h.session()
	assert.Equal(t, session.StateInsuranceDetail, sess.State)
	assert.Equal(t, session.PlanGoCare, sess.PlanDetail)
	assert.Contains(t, h.msgr.last().body, "GoCare")
	assert.Contains(t, h.msgr.last().body, "Não realizamos o agendamento por aqui")
}

func TestInsuranceDetailNavigation(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("2")
	h.send("3") // Salusmed

	// Unrecognized digit re-displays the same referral screen.
	h.send("7")
	assert.Equal(t, session.StateInsuranceDetail, h.session().State)
	assert.Contains(t, h.msgr.last().body, "Salusmed")

	// 9 jumps to private pay.
	h.send("9")
	assert.Equal(t, session.StatePrivatePayInfo, h.session().State)
	assert.Equal(t, msgParticular, h.msgr.last().body)
}

func TestInsuranceDetailBackToPlans(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("2")
	h.send("4") // Proasa
	h.send("0")

	sess := h.session()
	assert.Equal(t, session.StateInsuranceMenu, sess.State)
	assert.Empty(t, sess.PlanDetail)
	assert.Equal(t, msgConvenios, h.msgr.last().body)
}

func TestMedSeniorEntryStartsWizard(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("2")
	h.send("5")
	require.Equal(t, session.StateNamedPlan, h.session().State)

	h.send("1")

	sess := h.session()
	assert.Equal(t, session.StateWizardNationalID, sess.State)
	require.NotNil(t, sess.Portal)
	assert.Equal(t, string(session.PlanMedSenior), sess.Portal.Form.Plan)
	assert.Equal(t, testUser, sess.Portal.Form.MobileNumber)
	assert.Equal(t, msgAskNationalID, h.msgr.last().body)
}

func TestPrivatePayLinkThenMenu(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("1")
	h.msgr.reset()

	h.send("1")

	require.Len(t, h.msgr.sent, 2)
	assert.Contains(t, h.msgr.sent[0].body, "https://agendamento.consultorio.com")
	assert.Equal(t, msgMenu, h.msgr.sent[1].body)
	assert.Equal(t, session.StateMain, h.session().State)
}

func TestPostOpRecentShowsChannel(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("3")
	h.send("1")

	assert.Equal(t, session.StatePostOpRecent, h.session().State)
	assert.Contains(t, h.msgr.last().body, "wa.me/5519933005596")

	h.send("0")
	assert.Equal(t, session.StateMain, h.session().State)
}

func TestPostOpLateRoutesToBookingMenus(t *testing.T) {
	h := newHarness(t)
	h.send("oi")
	h.send("3")
	h.send("2")
	require.Equal(t, session.StatePostOpLate, h.session().State)

	h.send("2")
	assert.Equal(t, session.StateInsuranceMenu, h.session().State)
	assert.Equal(t, msgConvenios, h.msgr.last().body)
}

func TestUnknownStoredStateResets(t *testing.T) {
	h := newHarness(t)
	sess := session.New(testNow)
	sess.State = session.State("RETIRED_STATE")
	require.NoError(t, h.store.Save(context.Background(), testUser, sess))

	h.send("1")

	assert.Equal(t, session.StateMain, h.session().State)
	assert.Equal(t, msgMenu, h.msgr.last().body)
}

func TestCorruptedSessionStartsFresh(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.mr.Set("session:"+testUser, "{broken"))

	h.send("oi")

	assert.Equal(t, session.StateMain, h.session().State)
	assert.Equal(t, msgMenu, h.msgr.last().body)
}

func TestRoutingHintCachedOnSession(t *testing.T) {
	h := newHarness(t)
	err := h.engine.HandleEvent(context.Background(), InboundEvent{
		UserID:      testUser,
		Text:        "oi",
		RoutingHint: "pn-123",
	})
	require.NoError(t, err)
	assert.Equal(t, "pn-123", h.session().ChannelRouting)

	// A later event without a hint keeps the cached one.
	h.send("1")
	assert.Equal(t, "pn-123", h.session().ChannelRouting)
}

func TestSessionPersistedEvenWhenSendFails(t *testing.T) {
	h := newHarness(t)
	h.send("oi")

	h.msgr.err = assert.AnError
	err := h.engine.HandleEvent(context.Background(), InboundEvent{UserID: testUser, Text: "1"})
	require.NoError(t, err)

	// The transition happened and was saved; only the emission failed.
	assert.Equal(t, session.StatePrivatePayInfo, h.session().State)
}

func TestNormalizeInput(t *testing.T) {
	assert.Equal(t, "AJUDA", normalizeInput("  ajuda  "))
	assert.Equal(t, "OLA MUNDO", normalizeInput("ola\n  mundo"))
	assert.Equal(t, "1", normalizeInput(" 1 "))
}

func TestFormatDateBR(t *testing.T) {
	assert.Equal(t, "12/03/2025", formatDateBR("2025-03-12"))
	// Unparseable values pass through untouched.
	assert.Equal(t, "amanhã", formatDateBR("amanhã"))
}

func TestMenuTextsCarryAllOptions(t *testing.T) {
	for _, opt := range []string{"1)", "2)", "3)", "4)"} {
		assert.True(t, strings.Contains(msgMenu, opt), "menu missing %s", opt)
	}
	for _, opt := range []string{"1)", "2)", "3)", "4)", "5)", "0)"} {
		assert.True(t, strings.Contains(msgConvenios, opt), "convenios missing %s", opt)
	}
}
